// Package demo provides sample hub modules for trying the dashboard without
// a real application attached.
package demo

import (
	"context"
	"sync"
	"time"

	"github.com/zeusync/hubdash/internal/core/hub"
	"github.com/zeusync/hubdash/internal/core/observability/log"
)

// Emitter publishes hub events.
type Emitter interface {
	Emit(eventType string, args ...any) error
}

const CounterName = "Counter"

// Counter events.
const (
	EventCounterTick  = "counter.tick"
	EventCounterReset = "counter.reset"
)

// Counter adds data.increment to props.counter on every tick and announces
// the new value. Both keys can be edited live through the hub accessor.
type Counter struct {
	*hub.State

	hub      Emitter
	logger   log.Log
	interval time.Duration

	once sync.Once
	stop chan struct{}
	wg   sync.WaitGroup
}

func NewCounter(h Emitter, interval time.Duration, logger log.Log) *Counter {
	return &Counter{
		State: hub.NewState(
			map[string]any{"counter": 0},
			map[string]any{"increment": 1},
		),
		hub:      h,
		logger:   logger.With(log.String("module", CounterName)),
		interval: interval,
		stop:     make(chan struct{}),
	}
}

func (c *Counter) Name() string { return CounterName }

func (c *Counter) Events() map[string]hub.Handler {
	return map[string]hub.Handler{
		EventCounterReset: c.onReset,
	}
}

func (c *Counter) Init(context.Context) error {
	c.wg.Add(1)
	go c.run()
	return nil
}

func (c *Counter) Done() error {
	c.once.Do(func() { close(c.stop) })
	c.wg.Wait()
	return nil
}

func (c *Counter) run() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			v := c.Step()
			if err := c.hub.Emit(EventCounterTick, v); err != nil {
				c.logger.Debug("Tick not emitted", log.Error(err))
			}
		case <-c.stop:
			return
		}
	}
}

// Step applies one increment and returns the new counter. The read and the
// write happen under one lock, so a concurrent Set is never lost.
func (c *Counter) Step() any {
	inc, _ := c.Get("data.increment")
	next, err := c.Update("props.counter", func(cur any, _ bool) any {
		return add(cur, inc)
	})
	if err != nil {
		c.logger.Warn("Counter step failed", log.Error(err))
	}
	return next
}

func (c *Counter) onReset(args ...any) error {
	_, cb := hub.PopCallback(args)
	err := c.Set("props.counter", 0)
	if cb != nil {
		cb(err, 0)
	}
	return err
}

// add sums two numbers that may have been replaced by JSON floats. Non
// numbers count as zero.
func add(a, b any) any {
	ai, aInt := a.(int)
	bi, bInt := b.(int)
	if aInt && bInt {
		return ai + bi
	}
	return toFloat(a) + toFloat(b)
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}
