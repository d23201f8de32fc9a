// Package procinfo resolves process names and start times for captured pids and
// watches those pids for termination.
package procinfo

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/shirou/gopsutil/v3/process"
)

// DefaultCacheSize bounds the number of cached pid lookups.
const DefaultCacheSize = 1024

// Properties describes one (pid, name) pair seen in the capture. The Uid tells apart
// two processes that reused the same pid.
type Properties struct {
	Uid   uint32
	PID   int
	Name  string
	Color string // hex colour, e.g. "#5f87d7"
}

type cached struct {
	name    string
	started time.Time
}

// ProcessInfo is safe for concurrent use.
type ProcessInfo struct {
	cache *lru.Cache

	mu         sync.Mutex
	nextUid    uint32
	properties map[uint32]Properties
	uids       map[key]uint32
}

type key struct {
	pid  int
	name string
}

func New(cacheSize int) (*ProcessInfo, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create process cache: %w", err)
	}
	return &ProcessInfo{
		cache:      cache,
		properties: make(map[uint32]Properties),
		uids:       make(map[key]uint32),
	}, nil
}

func (p *ProcessInfo) lookup(pid int) (cached, error) {
	if v, ok := p.cache.Get(pid); ok {
		return v.(cached), nil
	}

	proc, err := process.NewProcessWithContext(context.Background(), int32(pid))
	if err != nil {
		return cached{}, fmt.Errorf("process not found: %w", err)
	}
	var entry cached
	// Name may fail for short-lived processes
	if name, err := proc.Name(); err == nil {
		entry.name = name
	}
	if createTime, err := proc.CreateTime(); err == nil {
		entry.started = time.UnixMilli(createTime)
	}
	p.cache.Add(pid, entry)
	return entry, nil
}

// GetProcessName returns the executable name of pid, or "" when it cannot be
// resolved.
func (p *ProcessInfo) GetProcessName(pid int) string {
	entry, err := p.lookup(pid)
	if err != nil {
		return ""
	}
	return entry.name
}

func (p *ProcessInfo) GetStartTime(pid int) (time.Time, error) {
	entry, err := p.lookup(pid)
	if err != nil {
		return time.Time{}, err
	}
	if entry.started.IsZero() {
		return time.Time{}, fmt.Errorf("start time of pid %d unavailable", pid)
	}
	return entry.started, nil
}

// Forget drops cached information about pid, typically after it has ended and the pid
// may be reused.
func (p *ProcessInfo) Forget(pid int) {
	p.cache.Remove(pid)
}

// GetUid returns the id assigned to the (pid, name) pair, assigning the next one the
// first time the pair is seen.
func (p *ProcessInfo) GetUid(pid int, name string) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uidLocked(pid, name)
}

func (p *ProcessInfo) uidLocked(pid int, name string) uint32 {
	k := key{pid: pid, name: name}
	if uid, ok := p.uids[k]; ok {
		return uid
	}
	uid := p.nextUid
	p.nextUid++
	p.uids[k] = uid
	p.properties[uid] = Properties{Uid: uid, PID: pid, Name: name, Color: randomColor()}
	return uid
}

func (p *ProcessInfo) GetProcessProperties(pid int, name string) Properties {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.properties[p.uidLocked(pid, name)]
}

// PropertiesByUid returns the properties of a previously assigned uid.
func (p *ProcessInfo) PropertiesByUid(uid uint32) (Properties, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	props, ok := p.properties[uid]
	return props, ok
}

// Clear forgets every assigned uid and restarts numbering at zero.
func (p *ProcessInfo) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextUid = 0
	p.properties = make(map[uint32]Properties)
	p.uids = make(map[key]uint32)
	p.cache.Purge()
}

// processColors are light enough to read dark text on.
var processColors = []string{
	"#ffd7d7", "#ffd7af", "#ffffaf", "#d7ffaf", "#afffaf", "#afffd7",
	"#afffff", "#afd7ff", "#afafff", "#d7afff", "#ffafff", "#ffafd7",
}

func randomColor() string {
	return processColors[rand.IntN(len(processColors))]
}

// SelfRSS returns the resident memory of the current process in bytes.
func SelfRSS() (uint64, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, fmt.Errorf("failed to open own process: %w", err)
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return 0, fmt.Errorf("failed to get memory info: %w", err)
	}
	return mem.RSS, nil
}
