package hub

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeusync/hubdash/internal/core/events/bus"
	"github.com/zeusync/hubdash/internal/core/observability/log"
)

// Source is the bus source recorded for events emitted through the hub.
const Source = "hub"

// EventModuleAttached is emitted with the module name after a successful Attach.
const EventModuleAttached = "hub.module.attached"

type attachment struct {
	module Module
	events []string
	subs   []bus.Subscription
	at     time.Time
}

// Hub routes events between attached modules over an EventBus and keeps the
// module registry used for topology reports.
type Hub struct {
	bus    bus.EventBus
	logger log.Log
	now    func() time.Time

	started time.Time

	mu      sync.RWMutex
	modules []*attachment
	byName  map[string]*attachment

	closed atomic.Bool
}

// Option customises a Hub.
type Option func(*Hub)

// WithClock overrides the time source used for uptime and attach timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

// New creates a hub on top of b.
func New(b bus.EventBus, logger log.Log, opts ...Option) *Hub {
	h := &Hub{
		bus:    b,
		logger: logger.With(log.String("component", "hub")),
		now:    time.Now,
		byName: make(map[string]*attachment),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.started = h.now()
	return h
}

// Bus exposes the underlying event bus.
func (h *Hub) Bus() bus.EventBus {
	return h.bus
}

// Attach registers a module: its event handlers are subscribed first, then
// Init is called. A failing Init rolls the registration back.
func (h *Hub) Attach(ctx context.Context, m Module) error {
	if h.closed.Load() {
		return ErrHubClosed
	}
	name := m.Name()
	if name == "" {
		return ErrUnnamedModule
	}

	h.mu.Lock()
	if _, exists := h.byName[name]; exists {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateModule, name)
	}
	a := &attachment{module: m, at: h.now()}
	h.byName[name] = a
	h.modules = append(h.modules, a)
	h.mu.Unlock()

	if src, ok := m.(EventSource); ok {
		for eventType, handler := range src.Events() {
			sub, err := h.bus.Subscribe(eventType, func(e bus.Event) error {
				return handler(e.Args()...)
			})
			if err != nil {
				h.rollback(a)
				return fmt.Errorf("subscribe %s to %s: %w", name, eventType, err)
			}
			a.subs = append(a.subs, sub)
			a.events = append(a.events, eventType)
		}
		slices.Sort(a.events)
	}

	if init, ok := m.(Initializer); ok {
		if err := init.Init(ctx); err != nil {
			h.rollback(a)
			return fmt.Errorf("init %s: %w", name, err)
		}
	}

	h.logger.Info("Module attached",
		log.String("module", name),
		log.Strings("events", a.events))

	_ = h.Emit(EventModuleAttached, name)
	return nil
}

func (h *Hub) rollback(a *attachment) {
	for _, sub := range a.subs {
		_ = sub.Cancel()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.byName, a.module.Name())
	h.modules = slices.DeleteFunc(h.modules, func(o *attachment) bool { return o == a })
}

// Emit publishes eventType with args to every subscriber.
func (h *Hub) Emit(eventType string, args ...any) error {
	if h.closed.Load() {
		return ErrHubClosed
	}
	return h.bus.Publish(bus.NewEvent(eventType, Source, args...))
}

// SubscribeAll registers handler for every emitted event and returns the
// function that removes it.
func (h *Hub) SubscribeAll(handler func(eventType string, args []any)) (func(), error) {
	sub, err := h.bus.SubscribeAll(func(e bus.Event) error {
		handler(e.Type(), e.Args())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return func() { _ = sub.Cancel() }, nil
}

// Attached lists attached modules in attach order.
func (h *Hub) Attached() []ModuleInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]ModuleInfo, 0, len(h.modules))
	for _, a := range h.modules {
		info := ModuleInfo{
			Name:          a.module.Name(),
			HandledEvents: slices.Clone(a.events),
			AttachedAt:    a.at,
		}
		if snap, ok := a.module.(Snapshotter); ok {
			info.State = snap.Snapshot()
		}
		out = append(out, info)
	}
	return out
}

// Uptime reports how long the hub has been running.
func (h *Hub) Uptime() time.Duration {
	return h.now().Sub(h.started)
}

// Instance returns the attached module with the given name.
func (h *Hub) Instance(name string) (Module, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	a, ok := h.byName[name]
	if !ok {
		return nil, false
	}
	return a.module, true
}

// Shutdown finalizes modules in reverse attach order. Further emissions fail
// with ErrHubClosed.
func (h *Hub) Shutdown() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}

	h.mu.Lock()
	modules := slices.Clone(h.modules)
	h.mu.Unlock()

	var all error
	for i := len(modules) - 1; i >= 0; i-- {
		a := modules[i]
		for _, sub := range a.subs {
			_ = sub.Cancel()
		}
		if fin, ok := a.module.(Finalizer); ok {
			if err := fin.Done(); err != nil {
				h.logger.Error("Module shutdown failed",
					log.String("module", a.module.Name()),
					log.Error(err))
				all = errors.Join(all, err)
			}
		}
		h.logger.Debug("Module detached", log.String("module", a.module.Name()))
	}
	return all
}
