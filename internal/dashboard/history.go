package dashboard

import (
	"slices"
	"sync"
	"time"

	"github.com/zeusync/hubdash/internal/core/protocol/channel"
	"github.com/zeusync/hubdash/pkg/sequence"
)

// History is the bounded, chronologically ordered stats window.
type History struct {
	mu   sync.RWMutex
	ring *sequence.Ring[Sample]
}

func NewHistory(capacity int) *History {
	return &History{ring: sequence.NewRing[Sample](capacity)}
}

// Push appends s, evicting the oldest sample when full.
func (h *History) Push(s Sample) {
	h.mu.Lock()
	h.ring.Push(s)
	h.mu.Unlock()
}

// Seed fills the window with zero samples spaced interval apart, the newest
// at now, so the first real sample one interval later keeps the spacing.
func (h *History) Seed(now time.Time, interval time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := h.ring.Cap(); i > 0; i-- {
		h.ring.Push(Sample{
			TS:      now.Add(-interval * time.Duration(i-1)),
			Clients: []channel.ClientInfo{},
		})
	}
}

// Snapshot copies the window, oldest first.
func (h *History) Snapshot() []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := h.ring.Slice()
	for i := range out {
		out[i].Clients = slices.Clone(out[i].Clients)
	}
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ring.Len()
}

func (h *History) Cap() int { return h.ring.Cap() }
