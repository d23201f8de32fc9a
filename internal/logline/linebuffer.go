package logline

import "sync"

// LineBuffer is a multi-producer, single-consumer staging queue. Producers append
// under a short critical section; the consumer drains everything at once by swapping
// the backing slice out.
type LineBuffer struct {
	mu     sync.Mutex
	lines  Lines
	notify chan struct{}
}

func NewLineBuffer() *LineBuffer {
	return &LineBuffer{
		notify: make(chan struct{}, 1),
	}
}

// Add appends one fragment. It never fails and never waits for the consumer.
func (b *LineBuffer) Add(line Line) {
	b.mu.Lock()
	b.lines = append(b.lines, line)
	b.mu.Unlock()
	b.Wake()
}

// Wake signals the consumer without adding anything, e.g. when a producer reaches its
// end.
func (b *LineBuffer) Wake() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// GetLines removes and returns everything buffered, in insertion order. It returns an
// empty slice when nothing is buffered.
func (b *LineBuffer) GetLines() Lines {
	b.mu.Lock()
	lines := b.lines
	b.lines = nil
	b.mu.Unlock()

	if lines == nil {
		return Lines{}
	}
	return lines
}

// Empty is advisory only; it races with concurrent Add calls.
func (b *LineBuffer) Empty() bool {
	return b.Len() == 0
}

// Len is advisory only.
func (b *LineBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// Notify returns a channel that receives a value after Add. One pending signal is
// kept; a consumer woken by it should drain with GetLines.
func (b *LineBuffer) Notify() <-chan struct{} {
	return b.notify
}
