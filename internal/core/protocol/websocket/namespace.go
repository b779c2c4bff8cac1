package websocket

import (
	"encoding/json"
	"errors"
	"slices"
	"sync"

	"github.com/zeusync/hubdash/internal/core/observability/log"
	"github.com/zeusync/hubdash/internal/core/protocol/channel"
)

var _ channel.Namespace = (*Namespace)(nil)

// Namespace holds the connections of one scope.
type Namespace struct {
	name   string
	logger log.Log

	mu        sync.RWMutex
	conns     map[string]*Connection
	onConnect []func(channel.Session)
}

func newNamespace(name string, logger log.Log) *Namespace {
	return &Namespace{
		name:   name,
		logger: logger.With(log.String("scope", name)),
		conns:  make(map[string]*Connection),
	}
}

func (n *Namespace) Name() string { return n.name }

func (n *Namespace) OnConnect(fn func(channel.Session)) {
	n.mu.Lock()
	n.onConnect = append(n.onConnect, fn)
	n.mu.Unlock()
}

// Len returns the number of sessions in the namespace.
func (n *Namespace) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.conns)
}

// Broadcast encodes the frame once and queues it on every connection.
func (n *Namespace) Broadcast(event string, payload any) {
	frame, err := channel.NewFrame(event, payload)
	if err != nil {
		n.logger.Warn("Broadcast payload not encodable", log.String("event", event), log.Error(err))
		return
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		n.logger.Warn("Broadcast frame not encodable", log.String("event", event), log.Error(err))
		return
	}

	n.mu.RLock()
	conns := make([]*Connection, 0, len(n.conns))
	for _, c := range n.conns {
		conns = append(conns, c)
	}
	n.mu.RUnlock()

	for _, c := range conns {
		if err = c.enqueue(raw); err != nil && !errors.Is(err, channel.ErrSessionClosed) {
			c.logger.Debug("Broadcast frame dropped", log.String("event", event), log.Error(err))
		}
	}
}

func (n *Namespace) add(c *Connection) {
	n.mu.Lock()
	n.conns[c.id] = c
	n.mu.Unlock()
}

func (n *Namespace) remove(c *Connection) {
	n.mu.Lock()
	delete(n.conns, c.id)
	n.mu.Unlock()
}

func (n *Namespace) connected(c *Connection) {
	n.mu.RLock()
	hooks := slices.Clone(n.onConnect)
	n.mu.RUnlock()

	for _, fn := range hooks {
		fn(c)
	}
}
