package dashboard

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/hubdash/internal/core/events/bus"
	"github.com/zeusync/hubdash/internal/core/hub"
	"github.com/zeusync/hubdash/internal/core/observability/log"
	"github.com/zeusync/hubdash/internal/core/protocol/channel"
)

// answering handles "math.add" and keeps its callback for later use.
type answering struct {
	pending hub.Callback
	answer  bool
}

func (a *answering) Name() string { return "Math" }

func (a *answering) Events() map[string]hub.Handler {
	return map[string]hub.Handler{
		"math.add": func(args ...any) error {
			rest, cb := hub.PopCallback(args)
			if cb == nil {
				return nil
			}
			if !a.answer {
				a.pending = cb
				return nil
			}
			sum := 0.0
			for _, v := range rest {
				sum += v.(float64)
			}
			cb(nil, sum)
			return nil
		},
		"math.fail": func(args ...any) error {
			if _, cb := hub.PopCallback(args); cb != nil {
				cb(errors.New("division by zero"), nil)
			}
			return nil
		},
	}
}

func TestSessions_ConnectGreetings(t *testing.T) {
	f := newFixture(t, testOptions())
	f.attachLayer(t)

	general := newFakeSession("g1")
	f.layer.ns(channel.GeneralScope).connect(general)
	frames := general.all()
	require.Len(t, frames, 1)
	assert.Equal(t, EventAppInfo, frames[0].Event)
	assert.Equal(t, AppInfo{Title: "test hub", Version: "1.2.3"}, frames[0].Payload)

	dash := newFakeSession("d1")
	f.dashScope().connect(dash)
	frames = dash.all()
	require.Len(t, frames, 2)
	assert.Equal(t, EventAppInfo, frames[0].Event)
	assert.Equal(t, EventHubInfo, frames[1].Event)
	assert.Len(t, frames[1].Payload.(HubInfo).History, 3)
	assert.Equal(t, 1, f.dash.Sessions())

	dash.disconnect()
	assert.Zero(t, f.dash.Sessions())
}

func TestSessions_ChannelAttachedOnce(t *testing.T) {
	f := newFixture(t, testOptions())
	f.attachLayer(t)
	f.attachLayer(t)

	s := newFakeSession("d1")
	f.dashScope().connect(s)
	assert.Len(t, s.named(EventAppInfo), 1)
}

func TestSessions_RelayEmitsOnHub(t *testing.T) {
	f := newFixture(t, testOptions())
	f.attachLayer(t)

	var got []any
	_, err := f.hub.Bus().Subscribe("client.ping", func(e bus.Event) error {
		got = e.Args()
		return nil
	})
	require.NoError(t, err)

	s := newFakeSession("d1")
	f.dashScope().connect(s)
	s.receive(t, EventRelay, RelayRequest{EventType: "client.ping", EventArgs: []any{"a", 1}})

	assert.Equal(t, []any{"a", float64(1)}, got)
	assert.Equal(t, uint64(1), f.dash.IntervalEvents())
}

func TestSessions_RelayCallbackAnswers(t *testing.T) {
	f := newFixture(t, testOptions())
	require.NoError(t, f.hub.Attach(t.Context(), &answering{answer: true}))
	f.attachLayer(t)

	s := newFakeSession("d1")
	f.dashScope().connect(s)
	s.receive(t, EventRelay, RelayRequest{EventType: "math.add", EventArgs: []any{1, 2}, EventCallback: "nonce-1"})
	s.receive(t, EventRelay, RelayRequest{EventType: "math.fail", EventArgs: []any{}, EventCallback: "nonce-2"})

	replies := s.named("nonce-1")
	require.Len(t, replies, 1)
	assert.Equal(t, []any{nil, float64(3)}, replies[0].Payload)

	replies = s.named("nonce-2")
	require.Len(t, replies, 1)
	assert.Equal(t, []any{"division by zero", nil}, replies[0].Payload)
	assert.Zero(t, f.dash.callbacks.Len())
}

func TestSessions_RelayCallbackTimeout(t *testing.T) {
	opts := testOptions()
	opts.RelayTimeout = 20 * time.Millisecond
	f := newFixture(t, opts)
	math := &answering{}
	require.NoError(t, f.hub.Attach(t.Context(), math))
	f.attachLayer(t)

	s := newFakeSession("d1")
	f.dashScope().connect(s)
	s.receive(t, EventRelay, RelayRequest{EventType: "math.add", EventArgs: []any{1}, EventCallback: "nonce"})
	require.NotNil(t, math.pending)

	require.Eventually(t, func() bool { return len(s.named("nonce")) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []any{ErrRelayTimeout.Error(), nil}, s.named("nonce")[0].Payload)
	assert.Zero(t, f.dash.callbacks.Len())

	// a late answer is dropped
	math.pending(nil, 1)
	assert.Len(t, s.named("nonce"), 1)
}

func TestSessions_DisconnectDropsCallbacks(t *testing.T) {
	f := newFixture(t, testOptions())
	math := &answering{}
	require.NoError(t, f.hub.Attach(t.Context(), math))
	f.attachLayer(t)

	s := newFakeSession("d1")
	f.dashScope().connect(s)
	s.receive(t, EventRelay, RelayRequest{EventType: "math.add", EventArgs: []any{}, EventCallback: "nonce"})
	require.Equal(t, 1, f.dash.callbacks.Len())

	s.disconnect()
	assert.Zero(t, f.dash.callbacks.Len())

	math.pending(nil, 0)
	assert.Empty(t, s.named("nonce"))
}

func TestSessions_RelayAfterShutdownRegistersNothing(t *testing.T) {
	f := newFixture(t, testOptions())
	math := &answering{}
	require.NoError(t, f.hub.Attach(t.Context(), math))
	f.attachLayer(t)

	s := newFakeSession("d1")
	f.dashScope().connect(s)
	require.NoError(t, f.dash.Shutdown())

	s.receive(t, EventRelay, RelayRequest{EventType: "math.add", EventArgs: []any{1}, EventCallback: "nonce"})
	assert.Zero(t, f.dash.callbacks.Len())
	assert.Nil(t, math.pending, "relay must not reach the hub")
	assert.Empty(t, s.named("nonce"))
}

func TestCallbackTable_RejectsAfterClose(t *testing.T) {
	table := newCallbackTable(time.Minute, log.NewNop())
	table.close()

	cb, err := table.register(newFakeSession("d1"), "nonce")
	assert.ErrorIs(t, err, ErrAlreadyStopped)
	assert.Nil(t, cb)
	assert.Zero(t, table.Len())
}

func TestSessions_MalformedRelayDropped(t *testing.T) {
	f := newFixture(t, testOptions())
	f.attachLayer(t)

	s := newFakeSession("d1")
	f.dashScope().connect(s)
	s.receive(t, EventRelay, "not an object")
	s.receive(t, EventRelay, RelayRequest{EventArgs: []any{1}})

	assert.Zero(t, f.dash.IntervalEvents())
}

func TestSessions_ModuleUpdate(t *testing.T) {
	f := newFixture(t, testOptions())
	sp := newSpoke("TestSpoke")
	require.NoError(t, f.hub.Attach(t.Context(), sp))
	require.NoError(t, f.hub.Attach(t.Context(), opaque{}))
	f.attachLayer(t)

	s := newFakeSession("d1")
	f.dashScope().connect(s)

	s.receive(t, EventModuleUpdate, ModuleUpdate{Name: "TestSpoke", Key: "data.foo.bar", Val: 42})
	v, ok := sp.Get("data.foo.bar")
	require.True(t, ok)
	assert.Equal(t, float64(42), v)

	s.receive(t, EventModuleUpdate, ModuleUpdate{Name: "TestSpoke", Key: "props.counter", Val: 7})
	v, _ = sp.Get("props.counter")
	assert.Equal(t, float64(7), v)

	s.receive(t, EventModuleUpdate, ModuleUpdate{Name: "TestSpoke", Key: "secret.token", Val: "x"})
	_, ok = sp.Get("secret.token")
	assert.False(t, ok)

	s.receive(t, EventModuleUpdate, ModuleUpdate{Name: "Missing", Key: "data.x", Val: 1})
	s.receive(t, EventModuleUpdate, "garbage")
}

func TestUpdateModule_Errors(t *testing.T) {
	f := newFixture(t, testOptions())
	require.NoError(t, f.hub.Attach(t.Context(), newSpoke("TestSpoke")))
	require.NoError(t, f.hub.Attach(t.Context(), opaque{}))

	assert.ErrorIs(t, f.dash.UpdateModule("TestSpoke", "secret.token", 1), ErrInvalidPathPrefix)
	assert.ErrorIs(t, f.dash.UpdateModule("TestSpoke", "data", 1), ErrInvalidPathPrefix)
	assert.ErrorIs(t, f.dash.UpdateModule("datax", "datax.y", 1), ErrInvalidPathPrefix)
	assert.ErrorIs(t, f.dash.UpdateModule("Missing", "data.x", 1), ErrModuleNotFound)
	assert.ErrorIs(t, f.dash.UpdateModule("Opaque", "data.x", 1), ErrNotAccessible)
	assert.ErrorIs(t, f.dash.UpdateModule("TestSpoke", "data.nope.deep", 1), hub.ErrPathNotFound)
	assert.NoError(t, f.dash.UpdateModule("TestSpoke", "data.added", 1))
}
