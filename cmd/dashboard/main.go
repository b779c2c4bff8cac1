package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/zeusync/hubdash/internal/config"
	"github.com/zeusync/hubdash/internal/core/observability/log"
	"github.com/zeusync/hubdash/internal/injector"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to the configuration file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error loading config:", err)
		os.Exit(1)
	}

	app, cleanup, err := injector.InitializeApp(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error building application:", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app.Logger.Info("Starting hub dashboard",
		log.String("addr", cfg.Server.Addr),
		log.String("path", cfg.Dashboard.Path))

	if err = app.Run(ctx); err != nil {
		app.Logger.Error("Server stopped with error", log.Error(err))
		cleanup()
		os.Exit(1)
	}
	app.Logger.Info("Server stopped")
}
