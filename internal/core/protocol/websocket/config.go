package websocket

import (
	"time"

	"golang.org/x/time/rate"
)

// Config tunes the websocket channel layer.
type Config struct {
	ReadBufferSize  int
	WriteBufferSize int
	// MaxMessageSize caps a single inbound frame in bytes.
	MaxMessageSize int64
	// SendQueueSize bounds the per-connection outbound queue.
	SendQueueSize int

	WriteTimeout time.Duration
	PongTimeout  time.Duration
	// PingInterval must be shorter than PongTimeout.
	PingInterval time.Duration

	// InboundRate and InboundBurst limit frames read per connection.
	// A zero rate disables limiting.
	InboundRate  rate.Limit
	InboundBurst int

	// AllowedOrigins lists accepted Origin headers. Empty or "*" accepts any.
	AllowedOrigins []string
}

// DefaultConfig returns the settings used by the dashboard server.
func DefaultConfig() Config {
	return Config{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		MaxMessageSize:  64 * 1024,
		SendQueueSize:   256,
		WriteTimeout:    10 * time.Second,
		PongTimeout:     60 * time.Second,
		PingInterval:    25 * time.Second,
		InboundRate:     50,
		InboundBurst:    100,
		AllowedOrigins:  []string{"*"},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = d.WriteBufferSize
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = d.SendQueueSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = d.PongTimeout
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongTimeout {
		c.PingInterval = c.PongTimeout * 9 / 10
	}
	return c
}
