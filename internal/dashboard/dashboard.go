// Package dashboard is a hub module that samples process health, keeps a
// rolling stats window and streams it, together with every hub event, to
// connected observer sessions.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zeusync/hubdash/internal/core/hub"
	"github.com/zeusync/hubdash/internal/core/observability/log"
	"github.com/zeusync/hubdash/internal/core/observability/metrics"
	"github.com/zeusync/hubdash/internal/core/protocol/channel"
)

// Hub is the part of the module host the dashboard relies on.
type Hub interface {
	SubscribeAll(handler func(eventType string, args []any)) (func(), error)
	Emit(eventType string, args ...any) error
	Attached() []hub.ModuleInfo
	Uptime() time.Duration
	Instance(name string) (hub.Module, bool)
}

// LoopState is the lifecycle of the broadcast loop.
type LoopState int32

const (
	LoopIdle LoopState = iota
	LoopArmed
	LoopStopped
)

func (s LoopState) String() string {
	switch s {
	case LoopIdle:
		return "idle"
	case LoopArmed:
		return "armed"
	case LoopStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var (
	_ hub.Module      = (*Dashboard)(nil)
	_ hub.Initializer = (*Dashboard)(nil)
	_ hub.Finalizer   = (*Dashboard)(nil)
	_ hub.EventSource = (*Dashboard)(nil)
	_ hub.Snapshotter = (*Dashboard)(nil)
)

// Dashboard owns the sampler, the stats history, the event counter and the
// broadcast loop of one attachment.
type Dashboard struct {
	opts    Options
	hub     Hub
	logger  log.Log
	metrics *metrics.Metrics
	clock   Clock

	sampler   *Sampler
	history   *History
	counter   Counter
	sessions  *sessionTable
	callbacks *callbackTable

	chMu  sync.RWMutex
	layer channel.Layer
	scope channel.Namespace

	state       atomic.Int32
	seeded      sync.Once
	tickMu      sync.Mutex
	stop        chan struct{}
	wg          sync.WaitGroup
	unsubscribe func()
}

// Option customises a Dashboard.
type Option func(*config)

type config struct {
	clock   Clock
	proc    ProcessStats
	metrics *metrics.Metrics
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(cfg *config) { cfg.clock = c }
}

// WithProcessStats replaces the gopsutil probe.
func WithProcessStats(p ProcessStats) Option {
	return func(cfg *config) { cfg.proc = p }
}

// WithMetrics records into m instead of a private registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(cfg *config) { cfg.metrics = m }
}

// New builds a dashboard for h. The sampler baseline is taken here.
func New(h Hub, opts Options, logger log.Log, options ...Option) (*Dashboard, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	cfg := config{clock: SystemClock()}
	for _, o := range options {
		o(&cfg)
	}
	if cfg.proc == nil {
		proc, err := NewProcessStats()
		if err != nil {
			return nil, fmt.Errorf("dashboard: process stats: %w", err)
		}
		cfg.proc = proc
	}
	if cfg.metrics == nil {
		cfg.metrics = metrics.New(nil)
	}

	logger = logger.With(log.String("component", "dashboard"))
	return &Dashboard{
		opts:      opts,
		hub:       h,
		logger:    logger,
		metrics:   cfg.metrics,
		clock:     cfg.clock,
		sampler:   NewSampler(cfg.clock, cfg.proc, logger),
		history:   NewHistory(opts.StatsHistory),
		sessions:  newSessionTable(),
		callbacks: newCallbackTable(opts.RelayTimeout, logger),
		stop:      make(chan struct{}),
	}, nil
}

func (d *Dashboard) Name() string { return Name }

// Options returns the options the dashboard was built with.
func (d *Dashboard) Options() Options { return d.opts }

// Events lists the hub events handled by the dashboard.
func (d *Dashboard) Events() map[string]hub.Handler {
	return map[string]hub.Handler{
		hub.EventServerPreStart: d.onPreStart,
		hub.EventChannelReady:   d.onChannelReady,
		EventHello:              d.onHello,
	}
}

// Snapshot reports the public settings in topology listings.
func (d *Dashboard) Snapshot() map[string]any {
	layer, _ := d.channel()
	return map[string]any{
		hub.RootProps: map[string]any{
			"enabled":       d.opts.Enabled,
			"title":         d.opts.Title,
			"version":       d.opts.Version,
			"statsInterval": d.opts.StatsInterval.Milliseconds(),
			"statsHistory":  d.opts.StatsHistory,
			"path":          d.opts.Path,
		},
		hub.RootData: map[string]any{
			"totalEvents":   d.counter.Total(),
			"sessions":      d.sessions.Len(),
			"socketEnabled": layer != nil,
		},
	}
}

// Init seeds the history and, when enabled, subscribes the relay and arms
// the broadcast loop.
func (d *Dashboard) Init(_ context.Context) error {
	switch LoopState(d.state.Load()) {
	case LoopStopped:
		return ErrAlreadyStopped
	case LoopArmed:
		return nil
	}

	d.seeded.Do(func() { d.history.Seed(d.clock.Now(), d.opts.StatsInterval) })
	if !d.opts.Enabled {
		d.logger.Info("Dashboard disabled")
		return nil
	}

	unsubscribe, err := d.hub.SubscribeAll(d.onHubEvent)
	if err != nil {
		return fmt.Errorf("dashboard: subscribe relay: %w", err)
	}
	if !d.state.CompareAndSwap(int32(LoopIdle), int32(LoopArmed)) {
		unsubscribe()
		return ErrAlreadyStopped
	}
	d.unsubscribe = unsubscribe

	ticker := time.NewTicker(d.opts.StatsInterval)
	d.wg.Add(1)
	go d.run(ticker)

	d.logger.Info("Broadcast loop armed",
		log.Duration("interval", d.opts.StatsInterval),
		log.Int("history", d.opts.StatsHistory))
	return nil
}

func (d *Dashboard) run(ticker *time.Ticker) {
	defer d.wg.Done()
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = d.Tick()
		case <-d.stop:
			return
		}
	}
}

// Tick runs one sampling round. Without a channel layer the round is skipped
// and nothing is reset.
func (d *Dashboard) Tick() error {
	d.tickMu.Lock()
	defer d.tickMu.Unlock()

	layer, scope := d.channel()
	if layer == nil {
		d.logger.Warn("No channel layer attached, stats skipped")
		d.metrics.Ticks.WithLabelValues(metrics.TickSkipped).Inc()
		return ErrChannelUnavailable
	}

	sample := d.sampler.Sample(d.counter.Swap(), layer)
	d.history.Push(sample)
	scope.Broadcast(EventHubInfo, d.hubInfo())

	d.metrics.CPUPercent.Set(float64(sample.CPU))
	d.metrics.MemoryBytes.Set(float64(sample.Memory))
	d.metrics.Ticks.WithLabelValues(metrics.TickSampled).Inc()

	if err := d.hub.Emit(EventStats, sample); err != nil && !errors.Is(err, hub.ErrHubClosed) {
		d.logger.Debug("Stats event failed", log.Error(err))
	}
	return nil
}

// Shutdown stops the loop and waits for an in-flight tick. It may be called
// once; the loop cannot be re-armed.
func (d *Dashboard) Shutdown() error {
	if LoopState(d.state.Swap(int32(LoopStopped))) == LoopStopped {
		return ErrAlreadyStopped
	}
	close(d.stop)
	d.wg.Wait()
	if d.unsubscribe != nil {
		d.unsubscribe()
	}
	d.callbacks.close()
	d.logger.Info("Dashboard stopped", log.Uint64("total_events", d.counter.Total()))
	return nil
}

// Done implements hub.Finalizer.
func (d *Dashboard) Done() error {
	if err := d.Shutdown(); err != nil && !errors.Is(err, ErrAlreadyStopped) {
		return err
	}
	return nil
}

// State returns the loop state.
func (d *Dashboard) State() LoopState { return LoopState(d.state.Load()) }

// History returns a copy of the stats window.
func (d *Dashboard) History() []Sample { return d.history.Snapshot() }

// TotalEvents returns the number of events seen since start.
func (d *Dashboard) TotalEvents() uint64 { return d.counter.Total() }

// IntervalEvents returns the events seen since the last tick.
func (d *Dashboard) IntervalEvents() uint64 { return d.counter.Interval() }

// Sessions returns the number of connected dashboard sessions.
func (d *Dashboard) Sessions() int { return d.sessions.Len() }

func (d *Dashboard) hubInfo() HubInfo {
	return HubInfo{
		Topology: d.hub.Attached(),
		Uptime:   d.hub.Uptime().Milliseconds(),
		History:  d.history.Snapshot(),
	}
}

func (d *Dashboard) onPreStart(args ...any) error {
	if !d.opts.Enabled {
		return nil
	}
	if len(args) == 0 {
		return fmt.Errorf("%s: missing router", hub.EventServerPreStart)
	}
	r, ok := args[0].(chi.Router)
	if !ok {
		return fmt.Errorf("%s: expected chi.Router, got %T", hub.EventServerPreStart, args[0])
	}
	d.Mount(r)
	return d.hub.Emit(EventReady, "listening on "+d.opts.Path)
}

func (d *Dashboard) onChannelReady(args ...any) error {
	if len(args) == 0 {
		return fmt.Errorf("%s: missing layer", hub.EventChannelReady)
	}
	layer, ok := args[0].(channel.Layer)
	if !ok {
		return fmt.Errorf("%s: expected channel.Layer, got %T", hub.EventChannelReady, args[0])
	}
	d.attachChannel(layer)
	return nil
}

func (d *Dashboard) onHello(args ...any) error {
	rest, cb := hub.PopCallback(args)
	if cb != nil {
		cb(nil, rest)
	}
	return nil
}
