package dashboard

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zeusync/hubdash/internal/core/hub"
	"github.com/zeusync/hubdash/internal/core/observability/log"
	"github.com/zeusync/hubdash/internal/core/protocol/channel"
)

type pendingCallback struct {
	session channel.Session
	event   string
	timer   *time.Timer
}

// callbackTable correlates relayed events with the session waiting for their
// answer. An entry is answered at most once: by the handler, by the timeout,
// or never when its session disconnects first.
type callbackTable struct {
	timeout time.Duration
	logger  log.Log

	mu        sync.Mutex
	closed    bool
	pending   map[string]*pendingCallback
	bySession map[string]map[string]struct{}
}

func newCallbackTable(timeout time.Duration, logger log.Log) *callbackTable {
	return &callbackTable{
		timeout:   timeout,
		logger:    logger,
		pending:   make(map[string]*pendingCallback),
		bySession: make(map[string]map[string]struct{}),
	}
}

// register returns the hub.Callback that answers s with a frame named event.
// It fails with ErrAlreadyStopped once the table is closed.
func (t *callbackTable) register(s channel.Session, event string) (hub.Callback, error) {
	id := uuid.NewString()
	p := &pendingCallback{session: s, event: event}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrAlreadyStopped
	}
	t.pending[id] = p
	ids, ok := t.bySession[s.ID()]
	if !ok {
		ids = make(map[string]struct{})
		t.bySession[s.ID()] = ids
	}
	ids[id] = struct{}{}
	p.timer = time.AfterFunc(t.timeout, func() {
		if t.take(id) != nil {
			t.reply(p, ErrRelayTimeout, nil)
		}
	})
	t.mu.Unlock()

	return func(err error, result any) {
		if t.take(id) == nil {
			t.logger.Debug("Late relay callback ignored", log.String("callback", event))
			return
		}
		p.timer.Stop()
		t.reply(p, err, result)
	}, nil
}

func (t *callbackTable) reply(p *pendingCallback, err error, result any) {
	if sendErr := p.session.Emit(p.event, callbackReply(err, result)); sendErr != nil {
		t.logger.Debug("Relay callback not delivered",
			log.String("callback", p.event),
			log.String("session", p.session.ID()),
			log.Error(sendErr))
	}
}

func (t *callbackTable) take(id string) *pendingCallback {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[id]
	if !ok {
		return nil
	}
	delete(t.pending, id)
	if ids := t.bySession[p.session.ID()]; ids != nil {
		delete(ids, id)
		if len(ids) == 0 {
			delete(t.bySession, p.session.ID())
		}
	}
	return p
}

// dropSession forgets every callback of sessionID and returns how many.
func (t *callbackTable) dropSession(sessionID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := t.bySession[sessionID]
	for id := range ids {
		if p, ok := t.pending[id]; ok {
			p.timer.Stop()
			delete(t.pending, id)
		}
	}
	delete(t.bySession, sessionID)
	return len(ids)
}

func (t *callbackTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

func (t *callbackTable) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for _, p := range t.pending {
		p.timer.Stop()
	}
	clear(t.pending)
	clear(t.bySession)
}
