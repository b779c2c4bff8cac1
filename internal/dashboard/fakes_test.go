package dashboard

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zeusync/hubdash/internal/core/events/bus"
	"github.com/zeusync/hubdash/internal/core/hub"
	"github.com/zeusync/hubdash/internal/core/observability/log"
	"github.com/zeusync/hubdash/internal/core/protocol/channel"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeProc struct {
	mu     sync.Mutex
	cpu    time.Duration
	rss    uint64
	cpuErr error
	rssErr error
}

func (p *fakeProc) CPUTime() (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cpu, p.cpuErr
}

func (p *fakeProc) RSS() (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rss, p.rssErr
}

func (p *fakeProc) Burn(d time.Duration) {
	p.mu.Lock()
	p.cpu += d
	p.mu.Unlock()
}

type sent struct {
	Event   string
	Payload any
}

type fakeSession struct {
	id   string
	info channel.ClientInfo

	mu           sync.Mutex
	frames       []sent
	handlers     map[string]channel.MessageHandler
	onDisconnect []func()
	closed       bool
}

func newFakeSession(id string) *fakeSession {
	return &fakeSession{
		id:       id,
		info:     channel.ClientInfo{IP: "10.0.0.1", UserAgent: "test", Since: time.Unix(0, 0)},
		handlers: make(map[string]channel.MessageHandler),
	}
}

func (s *fakeSession) ID() string               { return s.id }
func (s *fakeSession) Info() channel.ClientInfo { return s.info }

func (s *fakeSession) Emit(event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return channel.ErrSessionClosed
	}
	s.frames = append(s.frames, sent{Event: event, Payload: payload})
	return nil
}

func (s *fakeSession) On(event string, h channel.MessageHandler) {
	s.mu.Lock()
	s.handlers[event] = h
	s.mu.Unlock()
}

func (s *fakeSession) OnDisconnect(fn func()) {
	s.mu.Lock()
	s.onDisconnect = append(s.onDisconnect, fn)
	s.mu.Unlock()
}

func (s *fakeSession) Close() error { return nil }

// receive delivers an inbound frame as the transport would.
func (s *fakeSession) receive(t *testing.T, event string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	s.mu.Lock()
	h, ok := s.handlers[event]
	s.mu.Unlock()
	require.True(t, ok, "no handler for %s", event)
	h(raw)
}

func (s *fakeSession) disconnect() {
	s.mu.Lock()
	s.closed = true
	hooks := s.onDisconnect
	s.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func (s *fakeSession) all() []sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sent(nil), s.frames...)
}

func (s *fakeSession) named(event string) []sent {
	var out []sent
	for _, f := range s.all() {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

type fakeNamespace struct {
	name string

	mu        sync.Mutex
	onConnect []func(channel.Session)
	sessions  []*fakeSession
	frames    []sent
}

func (n *fakeNamespace) Name() string { return n.name }

func (n *fakeNamespace) OnConnect(fn func(channel.Session)) {
	n.mu.Lock()
	n.onConnect = append(n.onConnect, fn)
	n.mu.Unlock()
}

func (n *fakeNamespace) Broadcast(event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.frames = append(n.frames, sent{Event: event, Payload: payload})
}

func (n *fakeNamespace) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sessions)
}

func (n *fakeNamespace) connect(s *fakeSession) {
	n.mu.Lock()
	n.sessions = append(n.sessions, s)
	hooks := append([]func(channel.Session){}, n.onConnect...)
	n.mu.Unlock()
	for _, fn := range hooks {
		fn(s)
	}
}

func (n *fakeNamespace) broadcasts(event string) []sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sent
	for _, f := range n.frames {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

type fakeLayer struct {
	mu         sync.Mutex
	namespaces map[string]*fakeNamespace
	clients    []channel.ClientInfo
}

func newFakeLayer() *fakeLayer {
	return &fakeLayer{namespaces: make(map[string]*fakeNamespace)}
}

func (l *fakeLayer) Namespace(name string) channel.Namespace {
	return l.ns(name)
}

func (l *fakeLayer) ns(name string) *fakeNamespace {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.namespaces[name]
	if !ok {
		n = &fakeNamespace{name: name}
		l.namespaces[name] = n
	}
	return n
}

func (l *fakeLayer) Clients() []channel.ClientInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]channel.ClientInfo(nil), l.clients...)
}

func (l *fakeLayer) Close() error { return nil }

// spoke is a hub module with accessible state.
type spoke struct {
	*hub.State
	name string
}

func newSpoke(name string) *spoke {
	return &spoke{
		State: hub.NewState(
			map[string]any{"counter": 0},
			map[string]any{"foo": map[string]any{"bar": 1}, "increment": 1},
		),
		name: name,
	}
}

func (s *spoke) Name() string { return s.name }

// opaque is a module that does not expose its state.
type opaque struct{}

func (opaque) Name() string { return "Opaque" }

type fixture struct {
	hub   *hub.Hub
	dash  *Dashboard
	clock *fakeClock
	proc  *fakeProc
	layer *fakeLayer
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Title = "test hub"
	opts.Version = "1.2.3"
	opts.StatsInterval = time.Hour
	opts.StatsHistory = 3
	opts.RelayTimeout = time.Minute
	return opts
}

// newFixture attaches a dashboard to a fresh hub. The ticker never fires on
// its own; tests drive Tick directly.
func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	clock := newFakeClock()
	proc := &fakeProc{rss: 4096}
	h := hub.New(bus.New(), log.NewNop(), hub.WithClock(clock.Now))

	d, err := New(h, opts, log.NewNop(), WithClock(clock), WithProcessStats(proc))
	require.NoError(t, err)
	require.NoError(t, h.Attach(t.Context(), d))
	t.Cleanup(func() { _ = h.Shutdown() })
	// hub.module.attached is a qualifying event
	d.counter.Swap()

	return &fixture{hub: h, dash: d, clock: clock, proc: proc, layer: newFakeLayer()}
}

func (f *fixture) attachLayer(t *testing.T) {
	t.Helper()
	require.NoError(t, f.hub.Emit(hub.EventChannelReady, channel.Layer(f.layer)))
	f.dash.counter.Swap()
}

func (f *fixture) dashScope() *fakeNamespace {
	return f.layer.ns(f.dash.opts.Namespace)
}
