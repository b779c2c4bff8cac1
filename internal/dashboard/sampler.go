package dashboard

import (
	"math"
	"time"

	"github.com/zeusync/hubdash/internal/core/observability/log"
	"github.com/zeusync/hubdash/internal/core/protocol/channel"
)

// Sampler turns process counters into history samples. CPU percent is the
// CPU time consumed since the previous call divided by the wall time elapsed,
// not normalized by core count.
type Sampler struct {
	clock  Clock
	proc   ProcessStats
	logger log.Log

	lastWall time.Time
	lastCPU  time.Duration
	cpu      int
	rss      uint64
}

// NewSampler captures the baseline used by the first Sample call.
func NewSampler(clock Clock, proc ProcessStats, logger log.Log) *Sampler {
	s := &Sampler{
		clock:    clock,
		proc:     proc,
		logger:   logger,
		lastWall: clock.Now(),
	}
	if cpu, err := proc.CPUTime(); err == nil {
		s.lastCPU = cpu
	} else {
		logger.Debug("CPU time probe failed", log.Error(err))
	}
	return s
}

// Sample produces the sample for a tick that saw events qualifying events.
// clients may be nil.
func (s *Sampler) Sample(events uint64, clients channel.ClientLister) Sample {
	now := s.clock.Now()

	if cpu, err := s.proc.CPUTime(); err != nil {
		s.logger.Debug("CPU time probe failed", log.Error(err))
	} else {
		s.cpu = cpuPercent(cpu-s.lastCPU, now.Sub(s.lastWall))
		s.lastCPU = cpu
		s.lastWall = now
	}

	if rss, err := s.proc.RSS(); err != nil {
		s.logger.Debug("RSS probe failed", log.Error(err))
	} else {
		s.rss = rss
	}

	list := []channel.ClientInfo{}
	if clients != nil {
		list = append(list, clients.Clients()...)
	}

	return Sample{
		TS:      now,
		Events:  events,
		CPU:     s.cpu,
		Memory:  s.rss,
		Clients: list,
	}
}

func cpuPercent(cpu, wall time.Duration) int {
	if wall <= 0 || cpu < 0 {
		return 0
	}
	return int(math.Round(100 * float64(cpu) / float64(wall)))
}
