package filter

import (
	"sync"

	"dbgview/internal/logline"
)

// Sink forwards only the lines the filter set includes.
type Sink struct {
	mu     sync.Mutex
	filter *LogFilter
	next   logline.Sink
}

func NewSink(lf *LogFilter, next logline.Sink) *Sink {
	return &Sink{filter: lf, next: next}
}

// SetFilter replaces the filter set for subsequent batches.
func (s *Sink) SetFilter(lf *LogFilter) {
	s.mu.Lock()
	s.filter = lf
	s.mu.Unlock()
}

func (s *Sink) Consume(lines logline.Lines) {
	s.mu.Lock()
	lf := s.filter
	var kept logline.Lines
	if lf == nil {
		kept = lines
	} else {
		kept = make(logline.Lines, 0, len(lines))
		for _, line := range lines {
			if ok, _ := lf.IsIncluded(line); ok {
				kept = append(kept, line)
			}
		}
	}
	s.mu.Unlock()

	if len(kept) > 0 {
		s.next.Consume(kept)
	}
}
