// Package server hosts the HTTP surface of the hub: health and metrics
// endpoints, the websocket channel layer and whatever routes modules mount
// during server.pre-start.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zeusync/hubdash/internal/core/hub"
	"github.com/zeusync/hubdash/internal/core/observability/log"
	"github.com/zeusync/hubdash/internal/core/protocol/channel"
	"github.com/zeusync/hubdash/internal/core/protocol/websocket"
)

// Emitter publishes hub events.
type Emitter interface {
	Emit(eventType string, args ...any) error
}

// Config holds server configuration
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration

	// WebSocketPath is where the channel layer accepts upgrades.
	WebSocketPath string
	// MetricsPath serves Prometheus metrics; empty disables it.
	MetricsPath string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		WebSocketPath:   "/ws",
		MetricsPath:     "/metrics",
	}
}

func (c Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: empty address", ErrInvalidConfig)
	}
	if !strings.HasPrefix(c.WebSocketPath, "/") {
		return fmt.Errorf("%w: websocket path %q", ErrInvalidConfig, c.WebSocketPath)
	}
	if c.MetricsPath != "" && !strings.HasPrefix(c.MetricsPath, "/") {
		return fmt.Errorf("%w: metrics path %q", ErrInvalidConfig, c.MetricsPath)
	}
	return nil
}

// Server is the HTTP front of the hub.
type Server struct {
	config   Config
	logger   log.Log
	hub      Emitter
	layer    *websocket.Layer
	gatherer prometheus.Gatherer

	router   *chi.Mux
	prepared sync.Once
	prepErr  error

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener

	running atomic.Bool
	closed  atomic.Bool
}

// NewServer creates a server. gatherer may be nil when metrics are not
// exported.
func NewServer(config Config, h Emitter, layer *websocket.Layer, gatherer prometheus.Gatherer, logger log.Log) (*Server, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	s := &Server{
		config:   config,
		logger:   logger.With(log.String("component", "server")),
		hub:      h,
		layer:    layer,
		gatherer: gatherer,
		router:   chi.NewRouter(),
	}
	s.logger.Info("Server created", log.String("addr", config.Addr))
	return s, nil
}

// Handler returns the root router. Call Prepare first.
func (s *Server) Handler() http.Handler { return s.router }

// Prepare installs the built-in routes and lets modules mount theirs through
// server.pre-start. It runs once.
func (s *Server) Prepare() error {
	s.prepared.Do(func() {
		r := s.router
		r.Use(middleware.RequestID)
		r.Use(middleware.RealIP)
		r.Use(requestLogger(s.logger))
		r.Use(middleware.Recoverer)

		r.Get("/healthz", s.health)
		if s.config.MetricsPath != "" && s.gatherer != nil {
			r.Handle(s.config.MetricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
		}
		r.Handle(s.config.WebSocketPath, s.layer.Handler())

		if err := s.hub.Emit(hub.EventServerPreStart, chi.Router(r)); err != nil {
			s.prepErr = fmt.Errorf("pre-start handlers: %w", err)
		}
	})
	return s.prepErr
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if s.closed.Load() {
		return ErrServerClosed
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrServerAlreadyRunning
	}
	if err := s.Prepare(); err != nil {
		s.running.Store(false)
		return err
	}

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("%w: %w", ErrListenerFailed, err)
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.config.ReadTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	if err = s.hub.Emit(hub.EventChannelReady, channel.Layer(s.layer)); err != nil {
		s.logger.Warn("Channel ready handlers failed", log.Error(err))
	}

	s.mu.Lock()
	s.http = srv
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("Server listening", log.String("addr", ln.Addr().String()))

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	select {
	case err = <-serveErr:
		s.running.Store(false)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Addr returns the bound address once Run is listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown closes websocket sessions and drains HTTP requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.logger.Info("Stopping server")

	_ = s.layer.Close()

	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	s.running.Store(false)
	s.logger.Info("Server stopped")
	return err
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
