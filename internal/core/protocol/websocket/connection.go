package websocket

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/zeusync/hubdash/internal/core/observability/log"
	"github.com/zeusync/hubdash/internal/core/protocol/channel"
)

var _ channel.Session = (*Connection)(nil)

// State of a connection.
type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Connection is one websocket client inside a namespace. Reads happen on the
// goroutine serving the upgrade request; writes go through a single writer
// goroutine fed by a bounded queue.
type Connection struct {
	id     string
	conn   *websocket.Conn
	info   channel.ClientInfo
	config Config
	logger log.Log

	state   atomic.Int32
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter

	mu           sync.RWMutex
	handlers     map[string]channel.MessageHandler
	onDisconnect []func()

	messagesSent     atomic.Uint64
	messagesReceived atomic.Uint64
	messagesDropped  atomic.Uint64
}

func newConnection(conn *websocket.Conn, info channel.ClientInfo, config Config, logger log.Log) *Connection {
	id := uuid.NewString()
	c := &Connection{
		id:       id,
		conn:     conn,
		info:     info,
		config:   config,
		logger:   logger.With(log.String("conn_id", id)),
		send:     make(chan []byte, config.SendQueueSize),
		done:     make(chan struct{}),
		handlers: make(map[string]channel.MessageHandler),
	}
	if config.InboundRate > 0 {
		c.limiter = rate.NewLimiter(config.InboundRate, max(config.InboundBurst, 1))
	}
	return c
}

// clientInfo extracts the remote address, user agent and transport security
// of an upgrade request.
func clientInfo(r *http.Request, now time.Time) channel.ClientInfo {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return channel.ClientInfo{
		IP:        ip,
		UserAgent: r.UserAgent(),
		Since:     now,
		Secure:    r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https"),
	}
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) Info() channel.ClientInfo { return c.info }

// State reports the lifecycle state.
func (c *Connection) State() State { return State(c.state.Load()) }

// Stats returns sent, received and dropped frame counts.
func (c *Connection) Stats() (sent, received, dropped uint64) {
	return c.messagesSent.Load(), c.messagesReceived.Load(), c.messagesDropped.Load()
}

// On registers handler for inbound frames named event, replacing any
// previous one.
func (c *Connection) On(event string, handler channel.MessageHandler) {
	c.mu.Lock()
	c.handlers[event] = handler
	c.mu.Unlock()
}

// OnDisconnect registers fn to run once the connection is gone. Registering
// after disconnect runs fn immediately.
func (c *Connection) OnDisconnect(fn func()) {
	c.mu.Lock()
	if c.State() != StateDisconnected {
		c.onDisconnect = append(c.onDisconnect, fn)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	fn()
}

// Emit queues a frame for the client.
func (c *Connection) Emit(event string, payload any) error {
	frame, err := channel.NewFrame(event, payload)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %q", event)
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		return errors.Wrap(err, "failed to encode frame")
	}
	return c.enqueue(raw)
}

func (c *Connection) enqueue(raw []byte) error {
	if c.State() == StateDisconnected {
		return channel.ErrSessionClosed
	}
	select {
	case <-c.done:
		return channel.ErrSessionClosed
	case c.send <- raw:
		return nil
	default:
		c.messagesDropped.Add(1)
		return channel.ErrSendQueueFull
	}
}

// Close asks the writer to send a close frame and tear the connection down.
func (c *Connection) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *Connection) readPump() {
	c.conn.SetReadLimit(c.config.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.config.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.config.PongTimeout))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Debug("Read failed", log.Error(errors.Wrap(err, "failed to read message")))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.messagesReceived.Add(1)

		if c.limiter != nil && !c.limiter.Allow() {
			c.messagesDropped.Add(1)
			c.logger.Debug("Inbound frame rate limited")
			continue
		}

		var frame channel.Frame
		if err = json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
			c.logger.Debug("Malformed frame dropped", log.Error(err))
			continue
		}
		c.dispatch(frame)
	}
}

func (c *Connection) dispatch(frame channel.Frame) {
	c.mu.RLock()
	handler, ok := c.handlers[frame.Event]
	c.mu.RUnlock()
	if !ok {
		c.logger.Debug("No handler for frame", log.String("event", frame.Event))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Frame handler panicked", log.String("event", frame.Event), log.Any("panic", r))
		}
	}()
	handler(frame.Data)
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case raw := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				c.logger.Debug("Write failed", log.Error(errors.Wrap(err, "failed to write message")))
				return
			}
			c.messagesSent.Add(1)
		case <-ticker.C:
			deadline := time.Now().Add(c.config.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("Ping failed", log.Error(errors.Wrap(err, "failed to write ping")))
				return
			}
		case <-c.done:
			deadline := time.Now().Add(c.config.WriteTimeout)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
			return
		}
	}
}

// markConnected moves the connection out of Connecting.
func (c *Connection) markConnected() {
	c.state.CompareAndSwap(int32(StateConnecting), int32(StateConnected))
}

// disconnect runs the disconnect hooks exactly once.
func (c *Connection) disconnect() {
	c.mu.Lock()
	if State(c.state.Swap(int32(StateDisconnected))) == StateDisconnected {
		c.mu.Unlock()
		return
	}
	hooks := c.onDisconnect
	c.onDisconnect = nil
	c.mu.Unlock()

	_ = c.Close()
	for _, fn := range hooks {
		fn()
	}
}
