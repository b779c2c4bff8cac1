package bus

import "time"

// Wildcard is the event type matched by SubscribeAll subscriptions.
const Wildcard = "*"

// EventBus defines a thread-safe, in-process pub/sub event bus.
//
// Key characteristics:
//   - Type-based fan-out: handlers subscribe by Event.Type() string.
//   - Wildcard subscriptions receive every published event, after the typed handlers.
//   - Synchronous delivery: Publish calls handler callbacks in the caller goroutine,
//     in subscription order, so a single publisher observes emission order.
//   - Error aggregation: multiple handler errors are joined and returned from Publish.
//   - Optional observability: metrics are produced only when observers are registered.
//
// Handlers may publish from inside a callback; the bus holds no lock while
// delivering.
type EventBus interface {
	// Publish delivers the event synchronously to all active subscribers of
	// event.Type() and then to wildcard subscribers.
	Publish(event Event) error
	// PublishWithFilters applies filters before delivery; if any filter returns false,
	// the event is dropped and not delivered to handlers.
	PublishWithFilters(event Event, filters ...EventFilter) error

	// Subscribe registers a handler for a specific event type.
	Subscribe(eventType string, handler EventHandler) (Subscription, error)
	// SubscribeAll registers a handler receiving every event.
	SubscribeAll(handler EventHandler) (Subscription, error)
	// Unsubscribe cancels the given Subscription. It is safe to call with nil.
	Unsubscribe(Subscription) error

	// AddObserver registers an observer to receive delivery callbacks.
	AddObserver(obs EventBusObserver)
	// RemoveObserver unregisters a previously added observer.
	RemoveObserver(obs EventBusObserver)
	// GetMetrics returns a best-effort snapshot of accumulated metrics.
	GetMetrics() EventBusMetrics
	// EventTypes lists the event types that currently have typed subscribers.
	EventTypes() []string
}

// Event is an immutable message transported by the EventBus.
//
// Args carries the positional arguments of the emission, the way a module
// hub passes `emit(type, ...args)` through to its handlers. Implementations
// should treat Event values as read-only.
type Event interface {
	Type() string
	Source() string
	Timestamp() time.Time
	Args() []any
}

type (
	// EventHandler is a user callback invoked per delivered event. If it returns an
	// error, Publish aggregates and returns it.
	EventHandler func(event Event) error
	// EventFilter decides whether an event should be delivered. If any filter
	// returns false, the event is dropped silently.
	EventFilter func(event Event) bool
)

// Subscription represents a registered handler bound to an event type.
type Subscription interface {
	ID() string
	EventType() string
	IsActive() bool
	// Cancel de-registers the handler from the bus. Multiple calls are safe.
	Cancel() error
}

// EventBusObserver is notified about deliveries and errors. Observers should
// return quickly.
type EventBusObserver interface {
	OnPublish(eventType string, event Event)
	OnDelivered(eventType string, handlers int, err error, duration time.Duration)
}

// EventBusMetrics represents a minimal set of counters; it is updated only when
// at least one observer is registered.
type EventBusMetrics struct {
	Published         uint64
	DeliveredHandlers uint64
	Errors            uint64
	DroppedByFilters  uint64
	SubscribersActive uint64
}
