package dashboard

import (
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessStats reads resource usage of the running process.
type ProcessStats interface {
	// CPUTime is the cumulative user plus system CPU time.
	CPUTime() (time.Duration, error)
	// RSS is the resident set size in bytes.
	RSS() (uint64, error)
}

type selfStats struct {
	proc *process.Process
}

// NewProcessStats returns ProcessStats for the current process.
func NewProcessStats() (ProcessStats, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &selfStats{proc: p}, nil
}

func (s *selfStats) CPUTime() (time.Duration, error) {
	t, err := s.proc.Times()
	if err != nil {
		return 0, err
	}
	return time.Duration((t.User + t.System) * float64(time.Second)), nil
}

func (s *selfStats) RSS() (uint64, error) {
	mi, err := s.proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return mi.RSS, nil
}

// Clock is the time source of the sampler and the history seed.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }
