package logline

import "sort"

// DefaultOverflowThreshold bounds the pending bytes kept per pid. A partial line
// longer than this is emitted even without a newline.
const DefaultOverflowThreshold = 8192

// FlushProcessName marks lines emitted for a terminated process.
const FlushProcessName = "<flush>"

// FlushReason says why the NewlineFilter emitted a line.
type FlushReason int

const (
	FlushNewline FlushReason = iota
	FlushAutoNewline
	FlushOverflow
	FlushTerminated
)

func (r FlushReason) String() string {
	switch r {
	case FlushNewline:
		return "newline"
	case FlushAutoNewline:
		return "autonewline"
	case FlushOverflow:
		return "overflow"
	case FlushTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// pending is the message in progress for one pid, plus the metadata of the fragment
// that last extended it.
type pending struct {
	message []byte
	last    Line
}

// NewlineFilter turns raw fragments into logical lines, keeping independent
// accumulation state per pid. It is not safe for concurrent use: exactly one
// goroutine owns reassembly.
type NewlineFilter struct {
	buffers   map[int]*pending
	threshold int
	observe   func(FlushReason)
}

// Option configures a NewlineFilter.
type Option func(*NewlineFilter)

// WithOverflowThreshold replaces DefaultOverflowThreshold. Values <= 0 are ignored.
func WithOverflowThreshold(n int) Option {
	return func(f *NewlineFilter) {
		if n > 0 {
			f.threshold = n
		}
	}
}

// WithFlushObserver registers a callback invoked for every emitted line.
func WithFlushObserver(fn func(FlushReason)) Option {
	return func(f *NewlineFilter) {
		f.observe = fn
	}
}

func NewNewlineFilter(opts ...Option) *NewlineFilter {
	f := &NewlineFilter{
		buffers:   make(map[int]*pending),
		threshold: DefaultOverflowThreshold,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Process scans fragment left to right and returns the complete lines it closes.
// Carriage returns are dropped. The remainder is kept for the next fragment of the same
// pid unless the source asks for auto newlines or the remainder exceeds the overflow
// threshold.
func (f *NewlineFilter) Process(fragment Line) Lines {
	p, ok := f.buffers[fragment.PID]
	if !ok {
		p = &pending{message: make([]byte, 0, 512)}
	}
	p.last = fragment

	var lines Lines
	msg := fragment.Message
	for i := 0; i < len(msg); i++ {
		c := msg[i]
		switch c {
		case '\r':
			continue
		case '\n':
			lines = append(lines, f.emit(fragment, p, FlushNewline))
		default:
			p.message = append(p.message, c)
		}
	}

	if len(p.message) > 0 {
		switch {
		case fragment.Source != nil && fragment.Source.AutoNewLine():
			lines = append(lines, f.emit(fragment, p, FlushAutoNewline))
		case len(p.message) > f.threshold:
			lines = append(lines, f.emit(fragment, p, FlushOverflow))
		}
	}

	// a pid keeps a key only while it has partial data
	if len(p.message) == 0 {
		delete(f.buffers, fragment.PID)
	} else {
		f.buffers[fragment.PID] = p
	}
	return lines
}

func (f *NewlineFilter) emit(fragment Line, p *pending, reason FlushReason) Line {
	line := fragment
	line.Message = string(p.message)
	p.message = p.message[:0]
	if f.observe != nil {
		f.observe(reason)
	}
	return line
}

// FlushLinesFromTerminatedProcess emits the partial line of pid, if any, and forgets
// the pid. The returned line has no timestamp and no source; the caller stamps it.
// handle is unused.
func (f *NewlineFilter) FlushLinesFromTerminatedProcess(pid int, handle any) Lines {
	_ = handle
	p, ok := f.buffers[pid]
	if !ok || len(p.message) == 0 {
		return nil
	}
	delete(f.buffers, pid)
	if f.observe != nil {
		f.observe(FlushTerminated)
	}
	return Lines{{
		PID:         pid,
		ProcessName: FlushProcessName,
		Message:     string(p.message),
	}}
}

// FlushAll emits every partial line, ordered by pid, using the metadata of the last
// fragment seen for that pid, and clears all state.
func (f *NewlineFilter) FlushAll() Lines {
	pids := make([]int, 0, len(f.buffers))
	for pid := range f.buffers {
		pids = append(pids, pid)
	}
	sort.Ints(pids)

	var lines Lines
	for _, pid := range pids {
		p := f.buffers[pid]
		if len(p.message) > 0 {
			lines = append(lines, f.emit(p.last, p, FlushTerminated))
		}
		delete(f.buffers, pid)
	}
	return lines
}

// Pending returns the partial line held for pid.
func (f *NewlineFilter) Pending(pid int) (string, bool) {
	p, ok := f.buffers[pid]
	if !ok {
		return "", false
	}
	return string(p.message), true
}

// Len returns the number of pids holding a partial line.
func (f *NewlineFilter) Len() int {
	return len(f.buffers)
}
