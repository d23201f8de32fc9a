// Package source implements the log sources feeding the ingestion pipeline. Every
// source buffers raw fragments in its own LineBuffer until the dispatch loop pulls
// them with GetLines.
package source

import (
	"sync/atomic"
	"time"

	"dbgview/internal/logline"
)

// InternalProcessName is the process name of messages the pipeline generates itself.
const InternalProcessName = "[internal]"

// LogSource is the capability set the dispatch loop relies on.
type LogSource interface {
	logline.Origin

	// GetLines returns the fragments captured since the previous call.
	GetLines() logline.Lines

	// AtEnd reports that the source is exhausted and can be removed.
	AtEnd() bool

	// Ready is signalled when new fragments are available.
	Ready() <-chan struct{}

	// PreProcess lets the source adjust a fragment before reassembly.
	PreProcess(line *logline.Line)

	SetAutoNewLine(value bool)
	Abort()
}

// Live is implemented by sources whose pids belong to running local processes. Only
// those are attributed through process info and watched for termination.
type Live interface {
	IsLive() bool
}

// ExitReporter is implemented by sources that know how the processes they capture
// exited. ok is false while the pid is running or when it is not theirs.
type ExitReporter interface {
	ExitCode(pid int) (code int, ok bool)
}

// Base carries the state shared by all sources. Variants embed it and call init with
// themselves, so captured lines reference the outer source.
type Base struct {
	timer       *logline.Timer
	buffer      *logline.LineBuffer
	description string
	autoNewLine atomic.Bool
	end         atomic.Bool
	self        logline.Origin
}

func (b *Base) init(timer *logline.Timer, description string, self logline.Origin) {
	b.timer = timer
	b.buffer = logline.NewLineBuffer()
	b.description = description
	b.self = self
}

func (b *Base) Description() string {
	return b.description
}

// SetDescription replaces the description. Call it before the source is added to a
// pipeline.
func (b *Base) SetDescription(description string) {
	b.description = description
}

func (b *Base) AutoNewLine() bool {
	return b.autoNewLine.Load()
}

func (b *Base) SetAutoNewLine(value bool) {
	b.autoNewLine.Store(value)
}

func (b *Base) GetLines() logline.Lines {
	return b.buffer.GetLines()
}

func (b *Base) AtEnd() bool {
	return b.end.Load()
}

func (b *Base) Ready() <-chan struct{} {
	return b.buffer.Notify()
}

func (b *Base) PreProcess(line *logline.Line) {}

// Abort marks the source as ended. Variants owning goroutines or handles override it
// and call through.
func (b *Base) Abort() {
	b.end.Store(true)
}

// finish marks the source as ended and wakes the dispatch loop so it notices.
func (b *Base) finish() {
	b.end.Store(true)
	b.buffer.Wake()
}

// Add buffers a fragment stamped with the pipeline timer and the wall clock.
func (b *Base) Add(pid int, processName, message string) {
	b.AddAt(b.timer.Get(), time.Now(), pid, processName, message)
}

// AddAt buffers a fragment with explicit timestamps, as needed for replays.
func (b *Base) AddAt(t float64, systemTime time.Time, pid int, processName, message string) {
	b.buffer.Add(logline.Line{
		Time:        t,
		SystemTime:  systemTime,
		PID:         pid,
		ProcessName: processName,
		Message:     message,
		Source:      b.self,
	})
}

// AddMessage buffers a message not attributed to any process.
func (b *Base) AddMessage(message string) {
	b.Add(0, "", message)
}

// AddInternal buffers a message generated by the pipeline itself.
func (b *Base) AddInternal(message string) {
	b.Add(0, InternalProcessName, message)
}
