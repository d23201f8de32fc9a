// Package logline holds the data types of the ingestion pipeline: the Line value,
// the LineBuffer staging queue and the NewlineFilter that reassembles fragments into
// logical lines.
package logline

import (
	"sync"
	"time"
)

// Origin is the part of a log source the reassembly layer needs to know about.
type Origin interface {
	Description() string
	AutoNewLine() bool
}

// Line is one unit of debug output. It is either a raw fragment as captured by a
// source or a reassembled logical line. Lines are values; Source is a borrowed
// reference to the producing source and is nil for flush artifacts.
type Line struct {
	Time        float64   // seconds since the pipeline timer started
	SystemTime  time.Time // wall clock at capture
	PID         int       // 0 for synthetic lines
	ProcessName string
	Message     string
	Source      Origin
}

// Lines is an ordered sequence of Line values.
type Lines []Line

// Sink receives merged lines from the dispatch loop.
type Sink interface {
	Consume(lines Lines)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(lines Lines)

func (f SinkFunc) Consume(lines Lines) { f(lines) }

// Timer is a monotonic clock measuring seconds since it was started or reset.
type Timer struct {
	mu    sync.RWMutex
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Get returns the elapsed time in seconds.
func (t *Timer) Get() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return time.Since(t.start).Seconds()
}

func (t *Timer) Reset() {
	t.mu.Lock()
	t.start = time.Now()
	t.mu.Unlock()
}
