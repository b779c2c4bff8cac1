// Package redisbridge mirrors hub events between processes over a Redis
// pub/sub channel.
package redisbridge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/zeusync/hubdash/internal/core/hub"
	"github.com/zeusync/hubdash/internal/core/observability/log"
)

const Name = "RedisBridge"

var errSubscriptionClosed = errors.New("redis subscription closed")

// Hub is what the bridge needs from the module host.
type Hub interface {
	SubscribeAll(handler func(eventType string, args []any)) (func(), error)
	Emit(eventType string, args ...any) error
}

// Envelope is the message published on the Redis channel.
type Envelope struct {
	Origin string `json:"origin"`
	Type   string `json:"type"`
	Args   []any  `json:"args"`
}

type Config struct {
	Addr     string
	Password string
	DB       int
	Channel  string

	// SkipPrefixes lists event types that stay local.
	SkipPrefixes   []string
	QueueSize      int
	PublishTimeout time.Duration

	CBMaxRequests uint32
	CBInterval    time.Duration
	CBTimeout     time.Duration

	// RetryAttempts of zero retries the subscriber until shutdown.
	RetryAttempts uint
	RetryDelay    time.Duration
}

// DefaultSkipPrefixes keeps process-local events off the wire.
var DefaultSkipPrefixes = []string{"server.", "hub.", "HubDashboard", Name}

var (
	_ hub.Module      = (*Bridge)(nil)
	_ hub.Initializer = (*Bridge)(nil)
	_ hub.Finalizer   = (*Bridge)(nil)
)

// Bridge is a hub module publishing local events and replaying foreign ones.
type Bridge struct {
	cfg    Config
	hub    Hub
	rdb    *redis.Client
	cb     *gobreaker.CircuitBreaker
	logger log.Log
	origin string

	out chan []byte

	// fingerprints of events being replayed from Redis, so the local
	// subscription does not publish them back.
	mu        sync.Mutex
	replaying map[string]int

	unsubscribe func()
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New creates a bridge with its own Redis client.
func New(cfg Config, h Hub, logger log.Log) *Bridge {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return newBridge(cfg, h, rdb, logger)
}

func newBridge(cfg Config, h Hub, rdb *redis.Client, logger log.Log) *Bridge {
	if cfg.SkipPrefixes == nil {
		cfg.SkipPrefixes = DefaultSkipPrefixes
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	logger = logger.With(log.String("component", "redisbridge"), log.String("channel", cfg.Channel))
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        Name,
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				log.String("from", from.String()),
				log.String("to", to.String()))
		},
	})

	return &Bridge{
		cfg:       cfg,
		hub:       h,
		rdb:       rdb,
		cb:        cb,
		logger:    logger,
		origin:    uuid.NewString(),
		out:       make(chan []byte, cfg.QueueSize),
		replaying: make(map[string]int),
	}
}

func (b *Bridge) Name() string { return Name }

// Origin identifies this process on the channel.
func (b *Bridge) Origin() string { return b.origin }

// Init subscribes to local events and starts the publisher and the Redis
// listener. They run until Done.
func (b *Bridge) Init(context.Context) error {
	unsubscribe, err := b.hub.SubscribeAll(b.onLocalEvent)
	if err != nil {
		return err
	}
	b.unsubscribe = unsubscribe

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	b.wg.Add(2)
	go b.publishLoop(ctx)
	go b.listen(ctx)

	b.logger.Info("Redis bridge started", log.String("origin", b.origin))
	return nil
}

func (b *Bridge) Done() error {
	if b.unsubscribe != nil {
		b.unsubscribe()
	}
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
	return b.rdb.Close()
}

func (b *Bridge) skipped(eventType string) bool {
	for _, p := range b.cfg.SkipPrefixes {
		if strings.HasPrefix(eventType, p) {
			return true
		}
	}
	return false
}

func (b *Bridge) onLocalEvent(eventType string, args []any) {
	if b.skipped(eventType) {
		return
	}

	env := Envelope{Origin: b.origin, Type: eventType, Args: wireArgs(args)}
	raw, err := json.Marshal(env)
	if err != nil {
		b.logger.Debug("Event not encodable", log.String("event", eventType), log.Error(err))
		return
	}
	if b.consumeReplay(eventType, raw) {
		return
	}

	select {
	case b.out <- raw:
	default:
		b.logger.Warn("Publish queue full, event dropped", log.String("event", eventType))
	}
}

func (b *Bridge) publishLoop(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case raw := <-b.out:
			if err := b.publish(ctx, raw); err != nil {
				b.logger.Debug("Publish failed", log.Error(err))
			}
		}
	}
}

func (b *Bridge) publish(ctx context.Context, raw []byte) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		pctx, cancel := context.WithTimeout(ctx, b.cfg.PublishTimeout)
		defer cancel()
		return nil, b.rdb.Publish(pctx, b.cfg.Channel, raw).Err()
	})
	return err
}

func (b *Bridge) listen(ctx context.Context) {
	defer b.wg.Done()
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(b.cfg.RetryAttempts),
		retry.Delay(b.cfg.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
	)
	err := r.Do(func() error {
		err := b.consume(ctx)
		if err != nil && ctx.Err() == nil {
			b.logger.Warn("Redis subscription lost", log.Error(err))
		}
		return err
	})
	if err != nil && ctx.Err() == nil {
		b.logger.Error("Redis listener gave up", log.Error(err))
	}
}

func (b *Bridge) consume(ctx context.Context) error {
	ps := b.rdb.Subscribe(ctx, b.cfg.Channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return err
	}
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errSubscriptionClosed
			}
			b.handleMessage([]byte(msg.Payload))
		}
	}
}

// handleMessage replays a foreign envelope on the local hub.
func (b *Bridge) handleMessage(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
		b.logger.Debug("Malformed envelope dropped", log.Error(err))
		return
	}
	if env.Origin == b.origin || b.skipped(env.Type) {
		return
	}

	// re-encode under our origin so onLocalEvent recognises the replay
	local, err := json.Marshal(Envelope{Origin: b.origin, Type: env.Type, Args: env.Args})
	if err != nil {
		return
	}
	key := fingerprint(env.Type, local)
	b.mu.Lock()
	b.replaying[key]++
	b.mu.Unlock()

	if err = b.hub.Emit(env.Type, env.Args...); err != nil {
		b.logger.Debug("Replayed event failed", log.String("event", env.Type), log.Error(err))
	}

	b.mu.Lock()
	if b.replaying[key] > 0 {
		b.replaying[key]--
		if b.replaying[key] == 0 {
			delete(b.replaying, key)
		}
	}
	b.mu.Unlock()
}

// consumeReplay reports whether raw is an event currently being replayed and
// marks it seen.
func (b *Bridge) consumeReplay(eventType string, raw []byte) bool {
	key := fingerprint(eventType, raw)
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.replaying[key]
	if n == 0 {
		return false
	}
	if n == 1 {
		delete(b.replaying, key)
	} else {
		b.replaying[key] = n - 1
	}
	return true
}

func fingerprint(eventType string, raw []byte) string {
	return eventType + "\x00" + string(raw)
}

// wireArgs drops callbacks and anything else JSON cannot carry.
func wireArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		if _, ok := a.(hub.Callback); ok {
			continue
		}
		if _, err := json.Marshal(a); err != nil {
			continue
		}
		out[i] = a
	}
	return out
}
