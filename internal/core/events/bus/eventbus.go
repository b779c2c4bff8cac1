package bus

import (
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// simpleEvent is the Event implementation produced by NewEvent.
type simpleEvent struct {
	typeStr string
	source  string
	ts      time.Time
	args    []any
}

func (e simpleEvent) Type() string         { return e.typeStr }
func (e simpleEvent) Source() string       { return e.source }
func (e simpleEvent) Timestamp() time.Time { return e.ts }
func (e simpleEvent) Args() []any          { return e.args }

// NewEvent creates an Event carrying the given positional arguments.
func NewEvent(typ, src string, args ...any) Event {
	return simpleEvent{typeStr: typ, source: src, ts: time.Now(), args: args}
}

type subscription struct {
	id        string
	eventType string
	handler   EventHandler
	active    atomic.Bool
	cancel    func()
}

func (s *subscription) ID() string        { return s.id }
func (s *subscription) EventType() string { return s.eventType }
func (s *subscription) IsActive() bool    { return s.active.Load() }
func (s *subscription) Cancel() error {
	if s.active.CompareAndSwap(true, false) && s.cancel != nil {
		s.cancel()
	}
	return nil
}

// inMemoryBus is a thread-safe implementation of EventBus.
type inMemoryBus struct {
	mu sync.RWMutex
	// handlers: eventType -> subscriptions in registration order
	handlers  map[string][]*subscription
	metrics   EventBusMetrics
	observers map[EventBusObserver]struct{}
}

// New creates a new EventBus instance.
func New() EventBus {
	return &inMemoryBus{
		handlers:  make(map[string][]*subscription),
		observers: make(map[EventBusObserver]struct{}),
	}
}

func (b *inMemoryBus) Publish(event Event) error {
	return b.deliver(event)
}

func (b *inMemoryBus) PublishWithFilters(event Event, filters ...EventFilter) error {
	for _, f := range filters {
		if !f(event) {
			b.mu.Lock()
			if len(b.observers) > 0 {
				b.metrics.DroppedByFilters++
			}
			b.mu.Unlock()
			return nil
		}
	}
	return b.deliver(event)
}

func (b *inMemoryBus) Subscribe(eventType string, handler EventHandler) (Subscription, error) {
	if eventType == "" {
		return nil, ErrEmptyEventType
	}
	if handler == nil {
		return nil, ErrNilHandler
	}
	return b.subscribe(eventType, handler), nil
}

func (b *inMemoryBus) SubscribeAll(handler EventHandler) (Subscription, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	return b.subscribe(Wildcard, handler), nil
}

func (b *inMemoryBus) subscribe(eventType string, handler EventHandler) *subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := &subscription{id: uuid.NewString(), eventType: eventType, handler: handler}
	s.active.Store(true)
	s.cancel = func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.handlers[eventType]
		b.handlers[eventType] = slices.DeleteFunc(slices.Clone(subs), func(o *subscription) bool { return o == s })
		if len(b.handlers[eventType]) == 0 {
			delete(b.handlers, eventType)
		}
	}
	b.handlers[eventType] = append(b.handlers[eventType], s)
	return s
}

func (b *inMemoryBus) Unsubscribe(sub Subscription) error {
	if sub == nil {
		return nil
	}
	return sub.Cancel()
}

func (b *inMemoryBus) AddObserver(obs EventBusObserver) {
	b.mu.Lock()
	b.observers[obs] = struct{}{}
	b.mu.Unlock()
}

func (b *inMemoryBus) RemoveObserver(obs EventBusObserver) {
	b.mu.Lock()
	delete(b.observers, obs)
	b.mu.Unlock()
}

func (b *inMemoryBus) GetMetrics() EventBusMetrics {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.metrics
}

func (b *inMemoryBus) EventTypes() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.handlers))
	for t := range b.handlers {
		if t != Wildcard {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return out
}

func (b *inMemoryBus) deliver(event Event) error {
	if event == nil || event.Type() == "" {
		return ErrEmptyEventType
	}

	start := time.Now()
	etype := event.Type()

	b.mu.RLock()
	typed := b.handlers[etype]
	wild := b.handlers[Wildcard]
	subs := make([]*subscription, 0, len(typed)+len(wild))
	subs = append(subs, typed...)
	if etype != Wildcard {
		subs = append(subs, wild...)
	}
	var observers []EventBusObserver
	for obs := range b.observers {
		observers = append(observers, obs)
	}
	b.mu.RUnlock()

	for _, obs := range observers {
		obs.OnPublish(etype, event)
	}

	var all error
	delivered := 0
	for _, s := range subs {
		if !s.IsActive() {
			continue
		}
		delivered++
		if err := s.handler(event); err != nil {
			all = errors.Join(all, err)
		}
	}

	if len(observers) > 0 {
		dur := time.Since(start)
		for _, obs := range observers {
			obs.OnDelivered(etype, delivered, all, dur)
		}
		b.mu.Lock()
		b.metrics.Published++
		b.metrics.DeliveredHandlers += uint64(delivered)
		if all != nil {
			b.metrics.Errors++
		}
		var active uint64
		for _, m := range b.handlers {
			active += uint64(len(m))
		}
		b.metrics.SubscribersActive = active
		b.mu.Unlock()
	}
	return all
}
