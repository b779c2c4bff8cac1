package hub

import (
	"context"
	"time"
)

// Module is the unit of composition attached to a Hub. Everything beyond a
// unique name is optional and discovered through the interfaces below.
type Module interface {
	Name() string
}

// Initializer is implemented by modules that need to start work once attached.
type Initializer interface {
	Init(ctx context.Context) error
}

// Finalizer is implemented by modules that hold resources until hub shutdown.
type Finalizer interface {
	Done() error
}

// EventSource is implemented by modules that handle hub events. Keys are
// event types.
type EventSource interface {
	Events() map[string]Handler
}

// Accessor is the opt-in capability for live inspection and mutation of a
// module's state by dotted path ("props.counter", "data.foo.bar").
type Accessor interface {
	Get(path string) (any, bool)
	Set(path string, value any) error
}

// Snapshotter exposes a read-only copy of module state for topology reports.
type Snapshotter interface {
	Snapshot() map[string]any
}

// Handler receives the positional arguments of an emitted event.
type Handler func(args ...any) error

// Callback is appended to an event's arguments when the emitter expects an
// answer in (err, result) form.
type Callback func(err error, result any)

// PopCallback splits a trailing Callback off args.
func PopCallback(args []any) ([]any, Callback) {
	if len(args) == 0 {
		return args, nil
	}
	if cb, ok := args[len(args)-1].(Callback); ok {
		return args[:len(args)-1], cb
	}
	return args, nil
}

// ModuleInfo is the topology entry reported for an attached module.
type ModuleInfo struct {
	Name          string         `json:"name"`
	HandledEvents []string       `json:"handledEvents"`
	AttachedAt    time.Time      `json:"attachedAt"`
	State         map[string]any `json:"state,omitempty"`
}

// Well-known events emitted by the web-server integration.
const (
	// EventServerPreStart carries a chi.Router before the server listens.
	EventServerPreStart = "server.pre-start"
	// EventChannelReady carries a channel.Layer once real-time transport is up.
	EventChannelReady = "server.channel.ready"
)
