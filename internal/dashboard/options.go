package dashboard

import (
	"errors"
	"strings"
	"time"
)

// Name is the module name and the prefix of every event the dashboard emits.
const Name = "HubDashboard"

// Options configures a Dashboard.
type Options struct {
	Enabled       bool
	Title         string
	Version       string
	StatsInterval time.Duration
	StatsHistory  int

	// Path is where the web UI is mounted.
	Path      string
	User      string
	Pass      string
	CORS      string
	StaticDir string

	// Namespace is the channel scope of dashboard sessions.
	Namespace    string
	RelayTimeout time.Duration
}

// DefaultOptions mirrors the documented defaults.
func DefaultOptions() Options {
	return Options{
		Enabled:       true,
		Title:         "hub",
		StatsInterval: 5 * time.Second,
		StatsHistory:  60,
		Path:          "/hub-dashboard",
		CORS:          "*",
		Namespace:     "/dashboard",
		RelayTimeout:  30 * time.Second,
	}
}

// Validate reports the first invalid option.
func (o Options) Validate() error {
	switch {
	case o.StatsInterval <= 0:
		return errors.New("dashboard: stats interval must be positive")
	case o.StatsHistory < 1:
		return errors.New("dashboard: stats history must be at least 1")
	case !strings.HasPrefix(o.Path, "/"):
		return errors.New("dashboard: path must start with /")
	case !strings.HasPrefix(o.Namespace, "/"):
		return errors.New("dashboard: namespace must start with /")
	case o.RelayTimeout <= 0:
		return errors.New("dashboard: relay timeout must be positive")
	}
	return nil
}

// authEnabled reports whether basic auth guards the UI; both credentials are
// required.
func (o Options) authEnabled() bool {
	return o.User != "" && o.Pass != ""
}
