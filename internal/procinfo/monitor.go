package procinfo

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// DefaultMonitorInterval is how often watched pids are checked.
const DefaultMonitorInterval = time.Second

// Monitor polls a set of pids and reports each one once when it no longer exists.
type Monitor struct {
	interval time.Duration
	exists   func(ctx context.Context, pid int32) (bool, error)

	mu      sync.Mutex
	pids    map[int]struct{}
	onEnded func(pid int)
}

func NewMonitor(interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	return &Monitor{
		interval: interval,
		exists:   process.PidExistsWithContext,
		pids:     make(map[int]struct{}),
	}
}

// OnEnded sets the callback invoked from the Run goroutine for each ended pid.
func (m *Monitor) OnEnded(fn func(pid int)) {
	m.mu.Lock()
	m.onEnded = fn
	m.mu.Unlock()
}

// Add starts watching pid. Adding a watched pid again is a no-op.
func (m *Monitor) Add(pid int) {
	if pid <= 0 {
		return
	}
	m.mu.Lock()
	m.pids[pid] = struct{}{}
	m.mu.Unlock()
}

// Len is the number of watched pids.
func (m *Monitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pids)
}

// PIDs returns the watched pids in ascending order.
func (m *Monitor) PIDs() []int {
	m.mu.Lock()
	pids := make([]int, 0, len(m.pids))
	for pid := range m.pids {
		pids = append(pids, pid)
	}
	m.mu.Unlock()
	sort.Ints(pids)
	return pids
}

// Run checks the watched pids every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check runs one polling round.
func (m *Monitor) Check(ctx context.Context) {
	m.mu.Lock()
	pids := make([]int, 0, len(m.pids))
	for pid := range m.pids {
		pids = append(pids, pid)
	}
	m.mu.Unlock()

	var ended []int
	for _, pid := range pids {
		ok, err := m.exists(ctx, int32(pid))
		if err != nil {
			slog.Debug("Failed to check pid", "pid", pid, "error", err)
			continue
		}
		if !ok {
			ended = append(ended, pid)
		}
	}
	if len(ended) == 0 {
		return
	}

	m.mu.Lock()
	for _, pid := range ended {
		delete(m.pids, pid)
	}
	onEnded := m.onEnded
	m.mu.Unlock()

	if onEnded == nil {
		return
	}
	for _, pid := range ended {
		onEnded(pid)
	}
}
