package dashboard

import (
	"encoding/json"
	"time"

	"github.com/zeusync/hubdash/internal/core/hub"
	"github.com/zeusync/hubdash/internal/core/protocol/channel"
)

// Outbound frames.
const (
	EventAppInfo  = "app.info"
	EventHubInfo  = "hub.info"
	EventHubEvent = "hub.event"
)

// Inbound frames on the dashboard scope.
const (
	EventRelay        = "relay"
	EventModuleUpdate = "module.update"
)

// Hub events emitted by the dashboard itself. They carry the module prefix
// so the relay never forwards them.
const (
	EventStats = Name + ".stats"
	EventReady = Name + ".ready"

	// EventHello is the sanity-check event answered through its callback.
	EventHello = "hello.world"
)

// Sample is one point of the stats history.
type Sample struct {
	TS      time.Time            `json:"ts"`
	Events  uint64               `json:"events"`
	CPU     int                  `json:"cpu"`
	Memory  uint64               `json:"memory"`
	Clients []channel.ClientInfo `json:"clients"`
}

type AppInfo struct {
	Title   string `json:"title"`
	Version string `json:"version"`
}

// HubInfo is the periodic topology and stats report. Uptime is in
// milliseconds.
type HubInfo struct {
	Topology []hub.ModuleInfo `json:"topology"`
	Uptime   int64            `json:"uptime"`
	History  []Sample         `json:"history"`
}

// RelayRequest asks the dashboard to emit an event on the hub. When
// EventCallback is set the handler's answer comes back as a frame with that
// name.
type RelayRequest struct {
	EventType     string `json:"eventType"`
	EventArgs     []any  `json:"eventArgs"`
	EventCallback string `json:"eventCallback,omitempty"`
}

// ModuleUpdate assigns Val at Key inside module Name.
type ModuleUpdate struct {
	Name string `json:"name"`
	Key  string `json:"key"`
	Val  any    `json:"val"`
}

// callbackReply encodes the (err, result) pair sent back for a relay.
func callbackReply(err error, result any) []any {
	if err != nil {
		return []any{err.Error(), result}
	}
	return []any{nil, result}
}

// encodableArgs replaces callbacks, which JSON cannot carry, with nil.
func encodableArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		switch a.(type) {
		case hub.Callback, func(error, any):
			out[i] = nil
		default:
			if _, err := json.Marshal(a); err != nil {
				out[i] = nil
				continue
			}
			out[i] = a
		}
	}
	return out
}
