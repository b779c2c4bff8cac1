package dashboard

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/zeusync/hubdash/internal/core/hub"
	"github.com/zeusync/hubdash/internal/core/observability/log"
	"github.com/zeusync/hubdash/internal/core/protocol/channel"
)

type sessionTable struct {
	mu       sync.RWMutex
	sessions map[string]channel.Session
}

func newSessionTable() *sessionTable {
	return &sessionTable{sessions: make(map[string]channel.Session)}
}

func (t *sessionTable) add(s channel.Session) {
	t.mu.Lock()
	t.sessions[s.ID()] = s
	t.mu.Unlock()
}

func (t *sessionTable) remove(id string) {
	t.mu.Lock()
	delete(t.sessions, id)
	t.mu.Unlock()
}

func (t *sessionTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// attachChannel wires the dashboard into layer. Attaching the same layer
// twice is a no-op.
func (d *Dashboard) attachChannel(layer channel.Layer) {
	d.chMu.Lock()
	if d.layer == layer {
		d.chMu.Unlock()
		return
	}
	d.layer = layer
	d.scope = layer.Namespace(d.opts.Namespace)
	scope := d.scope
	d.chMu.Unlock()

	layer.Namespace(channel.GeneralScope).OnConnect(d.onGeneralConnect)
	scope.OnConnect(d.onDashboardConnect)
	d.logger.Info("Channel handlers registered", log.String("scope", scope.Name()))
}

// channel returns the attached layer and dashboard scope, nil when the
// transport is not up yet.
func (d *Dashboard) channel() (channel.Layer, channel.Namespace) {
	d.chMu.RLock()
	defer d.chMu.RUnlock()
	return d.layer, d.scope
}

func (d *Dashboard) appInfo() AppInfo {
	return AppInfo{Title: d.opts.Title, Version: d.opts.Version}
}

func (d *Dashboard) onGeneralConnect(s channel.Session) {
	if err := s.Emit(EventAppInfo, d.appInfo()); err != nil {
		d.logger.Debug("app.info not sent", log.String("session", s.ID()), log.Error(err))
	}
}

func (d *Dashboard) onDashboardConnect(s channel.Session) {
	logger := d.logger.With(log.String("session", s.ID()))
	logger.Debug("Dashboard client connected", log.String("ip", s.Info().IP))

	d.sessions.add(s)
	d.metrics.Sessions.Set(float64(d.sessions.Len()))

	s.On(EventRelay, func(raw json.RawMessage) { d.handleRelay(s, raw) })
	s.On(EventModuleUpdate, func(raw json.RawMessage) { d.handleModuleUpdate(s, raw) })
	s.OnDisconnect(func() {
		d.sessions.remove(s.ID())
		d.metrics.Sessions.Set(float64(d.sessions.Len()))
		dropped := d.callbacks.dropSession(s.ID())
		logger.Debug("Dashboard client disconnected", log.Int("pending_callbacks", dropped))
	})

	if err := s.Emit(EventAppInfo, d.appInfo()); err != nil {
		logger.Debug("app.info not sent", log.Error(err))
	}
	if err := s.Emit(EventHubInfo, d.hubInfo()); err != nil {
		logger.Debug("hub.info not sent", log.Error(err))
	}
}

func (d *Dashboard) handleRelay(s channel.Session, raw json.RawMessage) {
	var req RelayRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.EventType == "" {
		d.logger.Debug("Relay request dropped", log.String("session", s.ID()), log.Error(ErrMalformedMessage))
		return
	}
	d.logger.Debug("Relaying client event", log.String("session", s.ID()), log.String("event", req.EventType))

	args := req.EventArgs
	if req.EventCallback != "" {
		cb, err := d.callbacks.register(s, req.EventCallback)
		if err != nil {
			d.logger.Debug("Relay request dropped", log.String("session", s.ID()), log.Error(err))
			return
		}
		args = append(args, cb)
	}
	if err := d.hub.Emit(req.EventType, args...); err != nil {
		d.logger.Warn("Relayed event failed", log.String("event", req.EventType), log.Error(err))
	}
}

func (d *Dashboard) handleModuleUpdate(s channel.Session, raw json.RawMessage) {
	var u ModuleUpdate
	if err := json.Unmarshal(raw, &u); err != nil {
		d.logger.Debug("Module update dropped", log.String("session", s.ID()), log.Error(ErrMalformedMessage))
		return
	}
	if err := d.UpdateModule(u.Name, u.Key, u.Val); err != nil {
		d.logger.Debug("Module update ignored",
			log.String("module", u.Name),
			log.String("key", u.Key),
			log.Error(err))
	}
}

// UpdateModule assigns val at key in the state of module name. key must start
// with "data." or "props.".
func (d *Dashboard) UpdateModule(name, key string, val any) error {
	root, _, found := strings.Cut(key, ".")
	if !found || (root != hub.RootData && root != hub.RootProps) {
		return ErrInvalidPathPrefix
	}
	m, ok := d.hub.Instance(name)
	if !ok {
		return ErrModuleNotFound
	}
	acc, ok := m.(hub.Accessor)
	if !ok {
		return ErrNotAccessible
	}
	return acc.Set(key, val)
}
