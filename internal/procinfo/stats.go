package procinfo

import (
	"sort"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Stats is a resource snapshot of one process seen in the capture.
type Stats struct {
	PID        int
	Name       string
	Cmdline    string
	CPUPercent float64
	MemoryMB   float64 // RSS
	NumThreads int32
	CreateTime time.Time
	Status     string
}

// SortColumn selects the ordering of SortStats.
type SortColumn string

const (
	SortByPID    SortColumn = "pid"
	SortByName   SortColumn = "name"
	SortByCPU    SortColumn = "cpu"
	SortByMemory SortColumn = "memory"
)

// Snapshot collects stats for the given pids. Processes that are gone are skipped.
func Snapshot(pids []int) []Stats {
	out := make([]Stats, 0, len(pids))
	for _, pid := range pids {
		p, err := process.NewProcess(int32(pid))
		if err != nil {
			continue
		}
		out = append(out, fetchStats(p))
	}
	return out
}

// fetchStats fills what is readable; fields of short-lived processes may stay empty.
func fetchStats(p *process.Process) Stats {
	s := Stats{PID: int(p.Pid)}

	if name, err := p.Name(); err == nil {
		s.Name = name
	}
	if cmdline, err := p.Cmdline(); err == nil {
		s.Cmdline = cmdline
	}
	if cpu, err := p.CPUPercent(); err == nil {
		s.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfo(); err == nil {
		s.MemoryMB = float64(mem.RSS) / 1024 / 1024
	}
	if n, err := p.NumThreads(); err == nil {
		s.NumThreads = n
	}
	if ms, err := p.CreateTime(); err == nil {
		s.CreateTime = time.UnixMilli(ms)
	}
	if status, err := p.Status(); err == nil && len(status) > 0 {
		s.Status = status[0]
	}
	return s
}

// SortStats orders stats by column. CPU and memory sort descending, the others
// ascending.
func SortStats(stats []Stats, column SortColumn) {
	sort.SliceStable(stats, func(i, j int) bool {
		switch column {
		case SortByName:
			return stats[i].Name < stats[j].Name
		case SortByCPU:
			return stats[i].CPUPercent > stats[j].CPUPercent
		case SortByMemory:
			return stats[i].MemoryMB > stats[j].MemoryMB
		default:
			return stats[i].PID < stats[j].PID
		}
	})
}
