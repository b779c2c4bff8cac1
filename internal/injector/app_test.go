package injector

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/hubdash/internal/bridge/redisbridge"
	"github.com/zeusync/hubdash/internal/config"
	"github.com/zeusync/hubdash/internal/core/observability/log"
	"github.com/zeusync/hubdash/internal/dashboard"
	"github.com/zeusync/hubdash/internal/demo"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Log.Level = "error"
	cfg.Server.Addr = "127.0.0.1:0"
	return cfg
}

func TestInitializeApp_RunsUntilCancelled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Demo.Enabled = true
	cfg.Demo.TickInterval = 10 * time.Millisecond

	app, cleanup, err := InitializeApp(cfg)
	require.NoError(t, err)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool { return app.Server.Addr() != "" }, 2*time.Second, 5*time.Millisecond)
	base := "http://" + app.Server.Addr()

	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + cfg.Dashboard.Path + "/static/config.js")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Contains(t, string(body), cfg.Dashboard.Path)

	resp, err = http.Get(base + cfg.Metrics.Path)
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Contains(t, string(body), "hubdash_bus_published_total")

	var names []string
	for _, m := range app.Hub.Attached() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{dashboard.Name, demo.CounterName}, names)

	cancel()
	select {
	case err = <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.Equal(t, dashboard.LoopStopped, app.Dashboard.State())
}

func TestProvideModules(t *testing.T) {
	cfg := testConfig(t)
	h := ProvideHub(ProvideBus(ProvideMetrics(ProvideRegistry())), log.NewNop())

	mods, err := ProvideModules(cfg, h, log.NewNop())
	require.NoError(t, err)
	assert.Empty(t, mods)

	file := filepath.Join(t.TempDir(), "modules.yaml")
	require.NoError(t, os.WriteFile(file, []byte("modules:\n  - name: Weather\n    props:\n      city: Oslo\n"), 0o600))
	cfg.Demo.Enabled = true
	cfg.Demo.ModulesFile = file
	cfg.Redis.Enabled = true

	mods, err = ProvideModules(cfg, h, log.NewNop())
	require.NoError(t, err)
	require.Len(t, mods, 3)
	assert.Equal(t, demo.CounterName, mods[0].Name())
	assert.Equal(t, "Weather", mods[1].Name())
	assert.Equal(t, redisbridge.Name, mods[2].Name())
}

func TestProvideLogger_RejectsUnknownLevel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Log.Level = "loud"
	_, _, err := ProvideLogger(cfg)
	assert.Error(t, err)
}
