package source

import "dbgview/internal/logline"

// Loopback carries synthetic messages: source removals, terminated processes and
// lines re-added after a flush. It is never at end.
type Loopback struct {
	Base
}

var _ LogSource = &Loopback{}

func NewLoopback(timer *logline.Timer) *Loopback {
	l := &Loopback{}
	l.init(timer, "Loopback", l)
	return l
}

func (l *Loopback) AutoNewLine() bool {
	return true
}

// PreProcess keeps empty messages as empty lines.
func (l *Loopback) PreProcess(line *logline.Line) {
	if line.Message == "" {
		line.Message = "\n"
	}
}

func (l *Loopback) AtEnd() bool {
	return false
}

func (l *Loopback) Abort() {}
