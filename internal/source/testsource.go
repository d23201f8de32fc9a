package source

import "dbgview/internal/logline"

// TestSource is fed by hand. It stays active until aborted or ended with SetEnd.
type TestSource struct {
	Base
}

var _ LogSource = &TestSource{}

func NewTestSource(timer *logline.Timer, description string) *TestSource {
	s := &TestSource{}
	s.init(timer, description, s)
	return s
}

// AddLine buffers a fully specified fragment. The Source field is overwritten.
func (s *TestSource) AddLine(line logline.Line) {
	s.AddAt(line.Time, line.SystemTime, line.PID, line.ProcessName, line.Message)
}

// SetEnd makes the source report AtEnd.
func (s *TestSource) SetEnd() {
	s.end.Store(true)
}
