// Package client is a Go client for the hub dashboard channel. It speaks the
// same {"event","data"} frames as the browser UI and can relay events into
// the hub, wait for their callbacks and edit module state.
package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/zeusync/hubdash/internal/core/observability/log"
	"github.com/zeusync/hubdash/internal/core/protocol/channel"
	"github.com/zeusync/hubdash/internal/dashboard"
)

// Config holds configuration for the client
type Config struct {
	// URL of the websocket endpoint, e.g. ws://localhost:8080/ws.
	URL string
	// Namespace selects the scope; empty joins the dashboard scope.
	Namespace string
	Header    http.Header

	DialTimeout       time.Duration
	ReconnectInterval time.Duration
	// DialAttempts bounds Connect retries.
	DialAttempts uint

	WriteTimeout time.Duration
	// CallTimeout bounds Call when the context has no deadline.
	CallTimeout time.Duration
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() Config {
	return Config{
		URL:               "ws://localhost:8080/ws",
		Namespace:         "/dashboard",
		DialTimeout:       10 * time.Second,
		ReconnectInterval: time.Second,
		DialAttempts:      5,
		WriteTimeout:      10 * time.Second,
		CallTimeout:       30 * time.Second,
	}
}

func (c Config) endpoint() (string, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", errors.Wrap(ErrInvalidConfig, err.Error())
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", errors.Wrapf(ErrInvalidConfig, "unsupported scheme %q", u.Scheme)
	}
	if c.Namespace != "" {
		q := u.Query()
		q.Set("ns", c.Namespace)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Handler receives the data of a server frame.
type Handler func(data json.RawMessage)

// Client is a connection to the dashboard channel.
type Client struct {
	config Config
	logger log.Log

	conn      *websocket.Conn
	writeMu   sync.Mutex
	connected atomic.Bool
	closed    atomic.Bool
	done      chan struct{}
	doneOnce  sync.Once

	handlerMu sync.RWMutex
	handlers  map[string][]Handler
}

// NewClient creates a client. Nothing is dialled until Connect.
func NewClient(config Config, logger log.Log) *Client {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Client{
		config:   config,
		logger:   logger.With(log.String("component", "client")),
		done:     make(chan struct{}),
		handlers: make(map[string][]Handler),
	}
}

// Connect dials the server, retrying with backoff, and starts the receiver.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if c.connected.Load() {
		return ErrAlreadyConnected
	}
	endpoint, err := c.config.endpoint()
	if err != nil {
		return err
	}

	attempts := c.config.DialAttempts
	if attempts == 0 {
		attempts = 1
	}
	dialer := websocket.Dialer{HandshakeTimeout: c.config.DialTimeout}

	var conn *websocket.Conn
	err = retry.New(
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(c.config.ReconnectInterval),
		retry.DelayType(retry.BackOffDelay),
	).Do(func() error {
		ws, resp, dialErr := dialer.DialContext(ctx, endpoint, c.config.Header)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if dialErr != nil {
			c.logger.Debug("Dial failed", log.String("url", endpoint), log.Error(dialErr))
			if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return retry.Unrecoverable(errors.Wrapf(dialErr, "handshake rejected with %d", resp.StatusCode))
			}
			return dialErr
		}
		conn = ws
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "failed to connect")
	}

	c.conn = conn
	c.connected.Store(true)
	c.logger.Info("Connected to server", log.String("url", endpoint))

	go c.receive()
	return nil
}

// On registers a handler for server frames named event.
func (c *Client) On(event string, h Handler) {
	c.handlerMu.Lock()
	c.handlers[event] = append(c.handlers[event], h)
	c.handlerMu.Unlock()
}

func (c *Client) off(event string) {
	c.handlerMu.Lock()
	delete(c.handlers, event)
	c.handlerMu.Unlock()
}

// Emit sends a frame to the server.
func (c *Client) Emit(event string, payload any) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}
	frame, err := channel.NewFrame(event, payload)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %q", event)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.config.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}
	return errors.Wrap(c.conn.WriteJSON(frame), "failed to write frame")
}

// Relay emits eventType with args on the hub without waiting for an answer.
func (c *Client) Relay(eventType string, args ...any) error {
	return c.Emit(dashboard.EventRelay, dashboard.RelayRequest{EventType: eventType, EventArgs: args})
}

// Call relays eventType with a callback and waits for the hub handler to
// answer. A handler error comes back as RemoteError.
func (c *Client) Call(ctx context.Context, eventType string, args ...any) (json.RawMessage, error) {
	if _, ok := ctx.Deadline(); !ok && c.config.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.CallTimeout)
		defer cancel()
	}

	replyEvent := "callback." + uuid.NewString()
	replies := make(chan json.RawMessage, 1)
	c.On(replyEvent, func(data json.RawMessage) {
		select {
		case replies <- data:
		default:
		}
	})
	defer c.off(replyEvent)

	req := dashboard.RelayRequest{EventType: eventType, EventArgs: args, EventCallback: replyEvent}
	if err := c.Emit(dashboard.EventRelay, req); err != nil {
		return nil, err
	}

	select {
	case data := <-replies:
		return decodeReply(data)
	case <-c.done:
		return nil, ErrClientClosed
	case <-ctx.Done():
		return nil, errors.Wrap(ErrCallTimeout, ctx.Err().Error())
	}
}

func decodeReply(data json.RawMessage) (json.RawMessage, error) {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil || len(pair) != 2 {
		return nil, ErrInvalidReply
	}
	var remote *string
	if err := json.Unmarshal(pair[0], &remote); err != nil {
		return nil, ErrInvalidReply
	}
	if remote != nil {
		return pair[1], RemoteError(*remote)
	}
	return pair[1], nil
}

// UpdateModule asks the server to set key in the state of module name.
func (c *Client) UpdateModule(name, key string, val any) error {
	return c.Emit(dashboard.EventModuleUpdate, dashboard.ModuleUpdate{Name: name, Key: key, Val: val})
}

// IsConnected reports whether the receiver is running.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Done is closed once the client is closed or the server went away.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close sends a close frame and releases the connection.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClientClosed
	}
	if !c.connected.Load() {
		c.finish()
		return nil
	}
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) receive() {
	defer func() {
		c.connected.Store(false)
		c.finish()
	}()
	for {
		var frame channel.Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if !c.closed.Load() {
				c.logger.Warn("Connection lost", log.Error(err))
				_ = c.conn.Close()
			}
			return
		}
		c.dispatch(frame)
	}
}

func (c *Client) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Client) dispatch(frame channel.Frame) {
	c.handlerMu.RLock()
	handlers := c.handlers[frame.Event]
	c.handlerMu.RUnlock()

	for _, h := range handlers {
		h(frame.Data)
	}
}
