// Package config loads service settings. Environment variables override the
// YAML file, which overrides the defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. HUBDASH_SERVER_ADDR.
const EnvPrefix = "HUBDASH"

// Config is the root of the service configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Demo      DemoConfig      `mapstructure:"demo"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, console
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type ServerConfig struct {
	Addr            string          `mapstructure:"addr"`
	ReadTimeout     time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	WebSocket       WebSocketConfig `mapstructure:"websocket"`
}

// WebSocketConfig tunes the real-time transport.
type WebSocketConfig struct {
	Path           string        `mapstructure:"path"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendQueueSize  int           `mapstructure:"send_queue_size"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongTimeout    time.Duration `mapstructure:"pong_timeout"`
	InboundRate    float64       `mapstructure:"inbound_rate"`
	InboundBurst   int           `mapstructure:"inbound_burst"`
}

type DashboardConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Title         string        `mapstructure:"title"`
	Version       string        `mapstructure:"version"`
	StatsInterval time.Duration `mapstructure:"stats_interval"`
	StatsHistory  int           `mapstructure:"stats_history"`
	Path          string        `mapstructure:"path"`
	User          string        `mapstructure:"user"`
	Pass          string        `mapstructure:"pass"`
	CORS          string        `mapstructure:"cors"`
	RelayTimeout  time.Duration `mapstructure:"relay_timeout"`
	Namespace     string        `mapstructure:"namespace"`
	StaticDir     string        `mapstructure:"static_dir"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// RedisConfig enables mirroring of hub events across processes.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`

	// Circuit breaker around publishing.
	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`

	// Reconnect policy of the subscriber.
	RetryAttempts uint          `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

// DemoConfig attaches sample modules so the dashboard has something to show.
type DemoConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	TickInterval time.Duration `mapstructure:"tick_interval"`
	ModulesFile  string        `mapstructure:"modules_file"`
}

// Load reads configuration. An empty path searches config.yaml in . and
// ./configs; a missing file is not an error in that case.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.websocket.path", "/ws")
	v.SetDefault("server.websocket.max_message_size", 64*1024)
	v.SetDefault("server.websocket.send_queue_size", 256)
	v.SetDefault("server.websocket.ping_interval", 25*time.Second)
	v.SetDefault("server.websocket.pong_timeout", 60*time.Second)
	v.SetDefault("server.websocket.inbound_rate", 50.0)
	v.SetDefault("server.websocket.inbound_burst", 100)

	v.SetDefault("dashboard.enabled", true)
	v.SetDefault("dashboard.title", "hub")
	v.SetDefault("dashboard.version", "")
	v.SetDefault("dashboard.stats_interval", 5*time.Second)
	v.SetDefault("dashboard.stats_history", 60)
	v.SetDefault("dashboard.path", "/hub-dashboard")
	v.SetDefault("dashboard.user", "")
	v.SetDefault("dashboard.pass", "")
	v.SetDefault("dashboard.cors", "*")
	v.SetDefault("dashboard.relay_timeout", 30*time.Second)
	v.SetDefault("dashboard.namespace", "/dashboard")
	v.SetDefault("dashboard.static_dir", "")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "hubdash:events")
	v.SetDefault("redis.cb_max_requests", 1)
	v.SetDefault("redis.cb_interval", time.Minute)
	v.SetDefault("redis.cb_timeout", 10*time.Second)
	v.SetDefault("redis.retry_attempts", 0)
	v.SetDefault("redis.retry_delay", time.Second)

	v.SetDefault("demo.enabled", false)
	v.SetDefault("demo.tick_interval", 5*time.Second)
	v.SetDefault("demo.modules_file", "")
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	d := c.Dashboard
	switch {
	case d.StatsInterval <= 0:
		return errors.New("config: dashboard.stats_interval must be positive")
	case d.StatsHistory < 1:
		return errors.New("config: dashboard.stats_history must be at least 1")
	case !strings.HasPrefix(d.Path, "/"):
		return errors.New("config: dashboard.path must start with /")
	case !strings.HasPrefix(d.Namespace, "/"):
		return errors.New("config: dashboard.namespace must start with /")
	case d.RelayTimeout <= 0:
		return errors.New("config: dashboard.relay_timeout must be positive")
	case !strings.HasPrefix(c.Server.WebSocket.Path, "/"):
		return errors.New("config: server.websocket.path must start with /")
	case c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/"):
		return errors.New("config: metrics.path must start with /")
	case c.Redis.Enabled && c.Redis.Channel == "":
		return errors.New("config: redis.channel is required")
	case c.Demo.Enabled && c.Demo.TickInterval <= 0:
		return errors.New("config: demo.tick_interval must be positive")
	}
	return nil
}

// Origins splits dashboard.cors into the allowed origin list.
func (d DashboardConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(d.CORS, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
