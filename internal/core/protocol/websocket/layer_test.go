package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/hubdash/internal/core/observability/log"
	"github.com/zeusync/hubdash/internal/core/protocol/channel"
)

func newTestLayer(t *testing.T, cfg Config) (*Layer, string) {
	t.Helper()
	l := NewLayer(cfg, log.NewNop())
	s := httptest.NewServer(l.Handler())
	t.Cleanup(func() {
		_ = l.Close()
		s.Close()
	})
	return l, "ws" + strings.TrimPrefix(s.URL, "http")
}

func dial(t *testing.T, u string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(u, http.Header{"User-Agent": []string{"layer-test"}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) channel.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f channel.Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestLayer_ConnectEmitsToSession(t *testing.T) {
	l, u := newTestLayer(t, DefaultConfig())
	l.Namespace(channel.GeneralScope).OnConnect(func(s channel.Session) {
		_ = s.Emit("app.info", map[string]string{"title": "Hub"})
	})

	conn := dial(t, u)
	f := readFrame(t, conn)
	assert.Equal(t, "app.info", f.Event)
	assert.JSONEq(t, `{"title":"Hub"}`, string(f.Data))
}

func TestLayer_GreetingPrecedesBroadcasts(t *testing.T) {
	l, u := newTestLayer(t, DefaultConfig())
	dash := l.Namespace("/dashboard")
	dash.OnConnect(func(s channel.Session) {
		// a slow greeting widens the window a broadcast could slip into
		time.Sleep(2 * time.Millisecond)
		_ = s.Emit("app.info", "hello")
	})

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				dash.Broadcast("hub.event", []any{"tick"})
				time.Sleep(100 * time.Microsecond)
			}
		}
	}()

	for i := 0; i < 20; i++ {
		conn := dial(t, u+"?ns=/dashboard")
		assert.Equal(t, "app.info", readFrame(t, conn).Event, "connection %d", i)
		_ = conn.Close()
	}
}

func TestLayer_InboundDispatch(t *testing.T) {
	l, u := newTestLayer(t, DefaultConfig())
	got := make(chan json.RawMessage, 1)
	l.Namespace("/dashboard").OnConnect(func(s channel.Session) {
		s.On("ping", func(data json.RawMessage) { got <- data })
	})

	conn := dial(t, u+"?ns=/dashboard")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, conn.WriteJSON(channel.Frame{Event: "ping", Data: json.RawMessage(`[1,2]`)}))

	select {
	case data := <-got:
		assert.JSONEq(t, `[1,2]`, string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
}

func TestLayer_BroadcastReachesScopeOnly(t *testing.T) {
	l, u := newTestLayer(t, DefaultConfig())
	dash := l.Namespace("/dashboard")
	ready := make(chan struct{}, 2)
	dash.OnConnect(func(channel.Session) { ready <- struct{}{} })
	l.Namespace(channel.GeneralScope).OnConnect(func(channel.Session) { ready <- struct{}{} })

	member := dial(t, u+"?ns=/dashboard")
	other := dial(t, u)
	<-ready
	<-ready
	// sessions join the scope once their connect hooks return
	require.Eventually(t, func() bool { return dash.Len() == 1 }, time.Second, 5*time.Millisecond)

	dash.Broadcast("hub.event", []any{"module.tick", 1})

	f := readFrame(t, member)
	assert.Equal(t, "hub.event", f.Event)
	assert.JSONEq(t, `["module.tick",1]`, string(f.Data))

	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := other.ReadMessage()
	assert.Error(t, err)
}

func TestLayer_UnknownScopeRejected(t *testing.T) {
	_, u := newTestLayer(t, DefaultConfig())

	_, resp, err := websocket.DefaultDialer.Dial(u+"?ns=/missing", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLayer_ClientsAndDisconnect(t *testing.T) {
	l, u := newTestLayer(t, DefaultConfig())
	gone := make(chan struct{})
	ready := make(chan struct{})
	l.Namespace(channel.GeneralScope).OnConnect(func(s channel.Session) {
		s.OnDisconnect(func() { close(gone) })
		close(ready)
	})

	conn := dial(t, u)
	<-ready

	require.Eventually(t, func() bool { return len(l.Clients()) == 1 }, time.Second, 10*time.Millisecond)
	info := l.Clients()[0]
	assert.Equal(t, "127.0.0.1", info.IP)
	assert.Equal(t, "layer-test", info.UserAgent)
	assert.False(t, info.Secure)
	require.Eventually(t, func() bool { return l.Namespace(channel.GeneralScope).Len() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	select {
	case <-gone:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect hook not called")
	}
	assert.Eventually(t, func() bool { return len(l.Clients()) == 0 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, l.Namespace(channel.GeneralScope).Len())
}

func TestLayer_OriginCheck(t *testing.T) {
	_, u := newTestLayer(t, Config{AllowedOrigins: []string{"dash.example.com"}})

	_, resp, err := websocket.DefaultDialer.Dial(u, http.Header{"Origin": []string{"http://evil.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(u, http.Header{"Origin": []string{"https://dash.example.com"}})
	require.NoError(t, err)
	_ = conn.Close()
}

func TestLayer_CloseRejectsUpgrades(t *testing.T) {
	l, u := newTestLayer(t, DefaultConfig())
	require.NoError(t, l.Close())

	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestClientInfo_ForwardedProto(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.RemoteAddr = "10.0.0.7"
	r.Header.Set("X-Forwarded-Proto", "https")

	info := clientInfo(r, time.Unix(0, 0))
	assert.Equal(t, "10.0.0.7", info.IP)
	assert.True(t, info.Secure)
}
