package websocket

import (
	"net/http"
	"net/url"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zeusync/hubdash/internal/core/observability/log"
	"github.com/zeusync/hubdash/internal/core/protocol/channel"
)

// ScopeParam is the query parameter selecting the namespace of a connection.
const ScopeParam = "ns"

var _ channel.Layer = (*Layer)(nil)

// Layer is a websocket implementation of channel.Layer. Mount Handler on the
// HTTP router; clients pick a namespace with ?ns=<scope>.
type Layer struct {
	config   Config
	logger   log.Log
	upgrader websocket.Upgrader
	now      func() time.Time

	mu         sync.RWMutex
	namespaces map[string]*Namespace

	conns  sync.Map // map[string]*Connection
	closed atomic.Bool
	wg     sync.WaitGroup
}

// NewLayer creates a layer with the general scope registered.
func NewLayer(config Config, logger log.Log) *Layer {
	config = config.withDefaults()
	l := &Layer{
		config:     config,
		logger:     logger.With(log.String("component", "websocket")),
		now:        time.Now,
		namespaces: make(map[string]*Namespace),
	}
	l.upgrader = websocket.Upgrader{
		ReadBufferSize:  config.ReadBufferSize,
		WriteBufferSize: config.WriteBufferSize,
		CheckOrigin:     originChecker(config.AllowedOrigins),
	}
	l.Namespace(channel.GeneralScope)
	return l
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if slices.Contains(allowed, origin) {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && slices.Contains(allowed, u.Host)
	}
}

// Namespace returns the namespace called name, creating it on first use.
func (l *Layer) Namespace(name string) channel.Namespace {
	return l.namespace(name, true)
}

func (l *Layer) namespace(name string, create bool) *Namespace {
	l.mu.RLock()
	ns, ok := l.namespaces[name]
	l.mu.RUnlock()
	if ok || !create {
		return ns
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if ns, ok = l.namespaces[name]; ok {
		return ns
	}
	ns = newNamespace(name, l.logger)
	l.namespaces[name] = ns
	return ns
}

// Clients lists every connected client ordered by connect time.
func (l *Layer) Clients() []channel.ClientInfo {
	out := make([]channel.ClientInfo, 0)
	l.conns.Range(func(_, v any) bool {
		c := v.(*Connection)
		if c.State() == StateConnected {
			out = append(out, c.Info())
		}
		return true
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Since.Before(out[j].Since) })
	return out
}

// Handler returns the HTTP endpoint upgrading requests to websocket.
func (l *Layer) Handler() http.Handler {
	return http.HandlerFunc(l.serveWS)
}

func (l *Layer) serveWS(w http.ResponseWriter, r *http.Request) {
	if l.closed.Load() {
		http.Error(w, channel.ErrLayerClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	scope := r.URL.Query().Get(ScopeParam)
	if scope == "" {
		scope = channel.GeneralScope
	}
	ns := l.namespace(scope, false)
	if ns == nil {
		http.Error(w, channel.ErrUnknownScope.Error(), http.StatusNotFound)
		return
	}

	wsConn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Warn("Upgrade failed", log.String("scope", scope), log.Error(err))
		return
	}

	l.wg.Add(1)
	defer l.wg.Done()

	c := newConnection(wsConn, clientInfo(r, l.now()), l.config, l.logger.With(log.String("scope", scope)))
	l.conns.Store(c.id, c)
	go c.writePump()

	c.markConnected()
	// greetings queued by the hooks go out before any broadcast
	ns.connected(c)
	ns.add(c)
	c.logger.Debug("Client connected", log.String("ip", c.info.IP))

	c.readPump()

	ns.remove(c)
	l.conns.Delete(c.id)
	c.disconnect()
	c.logger.Debug("Client disconnected")
}

// Close disconnects every client and rejects new upgrades.
func (l *Layer) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	l.conns.Range(func(_, v any) bool {
		_ = v.(*Connection).Close()
		return true
	})
	l.wg.Wait()
	return nil
}
