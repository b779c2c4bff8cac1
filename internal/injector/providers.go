package injector

import (
	"errors"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/zeusync/hubdash/internal/bridge/redisbridge"
	"github.com/zeusync/hubdash/internal/config"
	"github.com/zeusync/hubdash/internal/core/events/bus"
	"github.com/zeusync/hubdash/internal/core/hub"
	"github.com/zeusync/hubdash/internal/core/observability/log"
	"github.com/zeusync/hubdash/internal/core/observability/metrics"
	"github.com/zeusync/hubdash/internal/core/protocol/websocket"
	"github.com/zeusync/hubdash/internal/dashboard"
	"github.com/zeusync/hubdash/internal/demo"
	"github.com/zeusync/hubdash/internal/server"
)

// ProviderSet builds the application graph.
var ProviderSet = wire.NewSet(
	ProvideLogger,
	wire.Bind(new(log.Log), new(*log.Logger)),
	ProvideRegistry,
	ProvideMetrics,
	ProvideBus,
	ProvideHub,
	ProvideLayer,
	ProvideServer,
	ProvideDashboard,
	ProvideModules,
	NewApp,
)

func ProvideLogger(cfg *config.Config) (*log.Logger, func(), error) {
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	logger := log.NewWithOptions(log.Options{
		Level:      level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	return logger, func() { _ = logger.Sync() }, nil
}

func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func ProvideMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

func ProvideBus(m *metrics.Metrics) bus.EventBus {
	b := bus.New()
	b.AddObserver(m.BusObserver())
	return b
}

func ProvideHub(b bus.EventBus, logger log.Log) *hub.Hub {
	return hub.New(b, logger)
}

func ProvideLayer(cfg *config.Config, logger log.Log) *websocket.Layer {
	ws := cfg.Server.WebSocket
	return websocket.NewLayer(websocket.Config{
		MaxMessageSize: ws.MaxMessageSize,
		SendQueueSize:  ws.SendQueueSize,
		WriteTimeout:   cfg.Server.WriteTimeout,
		PongTimeout:    ws.PongTimeout,
		PingInterval:   ws.PingInterval,
		InboundRate:    rate.Limit(ws.InboundRate),
		InboundBurst:   ws.InboundBurst,
		AllowedOrigins: cfg.Dashboard.Origins(),
	}, logger)
}

func ProvideServer(cfg *config.Config, h *hub.Hub, layer *websocket.Layer, reg *prometheus.Registry, logger log.Log) (*server.Server, error) {
	sc := server.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		WebSocketPath:   cfg.Server.WebSocket.Path,
	}
	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		sc.MetricsPath = cfg.Metrics.Path
		gatherer = reg
	}
	return server.NewServer(sc, h, layer, gatherer, logger)
}

func ProvideDashboard(cfg *config.Config, h *hub.Hub, m *metrics.Metrics, logger log.Log) (*dashboard.Dashboard, error) {
	d := cfg.Dashboard
	return dashboard.New(h, dashboard.Options{
		Enabled:       d.Enabled,
		Title:         d.Title,
		Version:       d.Version,
		StatsInterval: d.StatsInterval,
		StatsHistory:  d.StatsHistory,
		Path:          d.Path,
		User:          d.User,
		Pass:          d.Pass,
		CORS:          d.CORS,
		StaticDir:     d.StaticDir,
		Namespace:     d.Namespace,
		RelayTimeout:  d.RelayTimeout,
	}, logger, dashboard.WithMetrics(m))
}

// Modules are attached after the dashboard, in order.
type Modules []hub.Module

func ProvideModules(cfg *config.Config, h *hub.Hub, logger log.Log) (Modules, error) {
	var mods Modules
	if cfg.Demo.Enabled {
		mods = append(mods, demo.NewCounter(h, cfg.Demo.TickInterval, logger))
		if cfg.Demo.ModulesFile != "" {
			static, err := demo.LoadModules(cfg.Demo.ModulesFile, h)
			if err != nil {
				return nil, err
			}
			for _, m := range static {
				mods = append(mods, m)
			}
		}
	}
	if cfg.Redis.Enabled {
		if cfg.Redis.Addr == "" {
			return nil, errors.New("redis.addr is required")
		}
		mods = append(mods, redisbridge.New(redisbridge.Config{
			Addr:          cfg.Redis.Addr,
			Password:      cfg.Redis.Password,
			DB:            cfg.Redis.DB,
			Channel:       cfg.Redis.Channel,
			CBMaxRequests: cfg.Redis.CBMaxRequests,
			CBInterval:    cfg.Redis.CBInterval,
			CBTimeout:     cfg.Redis.CBTimeout,
			RetryAttempts: cfg.Redis.RetryAttempts,
			RetryDelay:    cfg.Redis.RetryDelay,
		}, h, logger))
	}
	return mods, nil
}
