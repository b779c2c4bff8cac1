// Package channel declares the real-time transport contract used by hub
// modules. Implementations live in sibling packages (see websocket).
package channel

import (
	"encoding/json"
	"errors"
	"time"
)

// GeneralScope is the default namespace selected when a client does not ask
// for one.
const GeneralScope = "/"

var (
	ErrSessionClosed = errors.New("session is closed")
	ErrSendQueueFull = errors.New("send queue is full")
	ErrUnknownScope  = errors.New("unknown scope")
	ErrLayerClosed   = errors.New("channel layer is closed")
)

// ClientInfo describes a connected client at connect time.
type ClientInfo struct {
	IP        string    `json:"ip"`
	UserAgent string    `json:"ua"`
	Since     time.Time `json:"since"`
	Secure    bool      `json:"secure"`
}

// Frame is the JSON envelope of every text message on the wire.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame encodes payload into a frame named event.
func NewFrame(event string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: event, Data: data}, nil
}

// MessageHandler receives the raw data of an inbound frame.
type MessageHandler func(data json.RawMessage)

// ClientLister enumerates connected clients.
type ClientLister interface {
	Clients() []ClientInfo
}

// Layer is a real-time transport hosting any number of namespaces.
type Layer interface {
	ClientLister
	// Namespace returns the namespace called name, creating it on first use.
	Namespace(name string) Namespace
	Close() error
}

// Namespace groups sessions connected to the same scope.
type Namespace interface {
	Name() string
	// OnConnect registers fn for every new session. Handlers run before the
	// session starts reading, so On registrations made inside fn see the
	// first inbound frame.
	OnConnect(fn func(Session))
	// Broadcast sends event to every connected session. Slow sessions drop
	// the frame instead of blocking the caller.
	Broadcast(event string, payload any)
	Len() int
}

// Session is a single client connection inside a namespace.
type Session interface {
	ID() string
	Info() ClientInfo
	Emit(event string, payload any) error
	On(event string, handler MessageHandler)
	OnDisconnect(fn func())
	Close() error
}
