package hub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/hubdash/internal/core/events/bus"
	"github.com/zeusync/hubdash/internal/core/observability/log"
)

type spoke struct {
	*State
	name    string
	initErr error
	inited  bool
	done    bool
	got     [][]any
}

func newSpoke(name string) *spoke {
	return &spoke{
		State: NewState(map[string]any{"counter": 0}, map[string]any{"foo": map[string]any{"bar": 1}}),
		name:  name,
	}
}

func (s *spoke) Name() string { return s.name }

func (s *spoke) Init(context.Context) error {
	s.inited = true
	return s.initErr
}

func (s *spoke) Done() error {
	s.done = true
	return nil
}

func (s *spoke) Events() map[string]Handler {
	return map[string]Handler{
		"spoke.poke": func(args ...any) error {
			s.got = append(s.got, args)
			return nil
		},
	}
}

func newTestHub(now func() time.Time) *Hub {
	opts := []Option{}
	if now != nil {
		opts = append(opts, WithClock(now))
	}
	return New(bus.New(), log.NewNop(), opts...)
}

func TestAttachWiresEventsAndInit(t *testing.T) {
	h := newTestHub(nil)
	s := newSpoke("TestSpoke")

	require.NoError(t, h.Attach(context.Background(), s))
	assert.True(t, s.inited)

	require.NoError(t, h.Emit("spoke.poke", 1, "a"))
	require.Len(t, s.got, 1)
	assert.Equal(t, []any{1, "a"}, s.got[0])

	got, ok := h.Instance("TestSpoke")
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = h.Instance("missing")
	assert.False(t, ok)
}

func TestAttachRejectsDuplicatesAndRollsBackFailedInit(t *testing.T) {
	h := newTestHub(nil)
	require.NoError(t, h.Attach(context.Background(), newSpoke("a")))

	err := h.Attach(context.Background(), newSpoke("a"))
	assert.ErrorIs(t, err, ErrDuplicateModule)

	bad := newSpoke("b")
	bad.initErr = errors.New("boom")
	require.Error(t, h.Attach(context.Background(), bad))

	_, ok := h.Instance("b")
	assert.False(t, ok)
	require.NoError(t, h.Emit("spoke.poke"))
	assert.Empty(t, bad.got, "handlers of a failed module are removed")
}

func TestAttachedReportsTopology(t *testing.T) {
	h := newTestHub(nil)
	require.NoError(t, h.Attach(context.Background(), newSpoke("one")))
	require.NoError(t, h.Attach(context.Background(), newSpoke("two")))

	infos := h.Attached()
	require.Len(t, infos, 2)
	assert.Equal(t, "one", infos[0].Name)
	assert.Equal(t, []string{"spoke.poke"}, infos[0].HandledEvents)
	assert.Equal(t, 0, infos[1].State[RootProps].(map[string]any)["counter"])
}

func TestUptimeUsesClock(t *testing.T) {
	now := time.Unix(1000, 0)
	h := newTestHub(func() time.Time { return now })
	now = now.Add(90 * time.Second)
	assert.Equal(t, 90*time.Second, h.Uptime())
}

func TestSubscribeAllAndShutdown(t *testing.T) {
	h := newTestHub(nil)
	s := newSpoke("s")
	require.NoError(t, h.Attach(context.Background(), s))

	var types []string
	unsubscribe, err := h.SubscribeAll(func(eventType string, _ []any) {
		types = append(types, eventType)
	})
	require.NoError(t, err)

	require.NoError(t, h.Emit("x"))
	unsubscribe()
	require.NoError(t, h.Emit("y"))
	assert.Equal(t, []string{"x"}, types)

	require.NoError(t, h.Shutdown())
	assert.True(t, s.done)
	assert.ErrorIs(t, h.Emit("z"), ErrHubClosed)
	assert.NoError(t, h.Shutdown())
}

func TestPopCallback(t *testing.T) {
	var cb Callback = func(error, any) {}
	rest, got := PopCallback([]any{1, cb})
	assert.Equal(t, []any{1}, rest)
	assert.NotNil(t, got)

	rest, got = PopCallback([]any{1, 2})
	assert.Equal(t, []any{1, 2}, rest)
	assert.Nil(t, got)
}
