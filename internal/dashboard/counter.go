package dashboard

import "sync/atomic"

// Counter tallies qualifying hub events. Total never decreases; the interval
// tally is read and cleared in one step at every tick.
type Counter struct {
	total    atomic.Uint64
	interval atomic.Uint64
}

func (c *Counter) Inc() {
	c.interval.Add(1)
	c.total.Add(1)
}

// Swap returns the interval tally and resets it.
func (c *Counter) Swap() uint64 {
	return c.interval.Swap(0)
}

func (c *Counter) Interval() uint64 { return c.interval.Load() }

func (c *Counter) Total() uint64 { return c.total.Load() }
