package injector

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/zeusync/hubdash/internal/config"
	"github.com/zeusync/hubdash/internal/core/hub"
	"github.com/zeusync/hubdash/internal/core/observability/log"
	"github.com/zeusync/hubdash/internal/dashboard"
	"github.com/zeusync/hubdash/internal/server"
)

// App is the assembled service.
type App struct {
	Config    *config.Config
	Logger    log.Log
	Hub       *hub.Hub
	Server    *server.Server
	Dashboard *dashboard.Dashboard
	Modules   Modules
}

func NewApp(cfg *config.Config, logger log.Log, h *hub.Hub, srv *server.Server, d *dashboard.Dashboard, mods Modules) *App {
	return &App{
		Config:    cfg,
		Logger:    logger,
		Hub:       h,
		Server:    srv,
		Dashboard: d,
		Modules:   mods,
	}
}

// Run attaches the modules, serves until ctx is done and then shuts the hub
// down.
func (a *App) Run(ctx context.Context) error {
	if err := a.Hub.Attach(ctx, a.Dashboard); err != nil {
		return fmt.Errorf("attach %s: %w", a.Dashboard.Name(), err)
	}
	for _, m := range a.Modules {
		if err := a.Hub.Attach(ctx, m); err != nil {
			_ = a.Hub.Shutdown()
			return fmt.Errorf("attach %s: %w", m.Name(), err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Server.Run(gctx) })

	err := g.Wait()
	if shutdownErr := a.Hub.Shutdown(); shutdownErr != nil {
		a.Logger.Warn("Hub shutdown reported errors", log.Error(shutdownErr))
	}
	return err
}
