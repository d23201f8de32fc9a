package app

import (
	"fmt"
	"strings"

	"dbgview/internal/logline"
	"dbgview/pkg/storage"
)

// lineStore is a pipeline sink that appends every dispatched line to a Storage.
type lineStore struct {
	store storage.Storage
}

func newLineStore(store storage.Storage) *lineStore {
	return &lineStore{store: store}
}

func (l *lineStore) Consume(lines logline.Lines) {
	for _, line := range lines {
		l.store.Add(formatLine(line))
	}
}

// Tail returns up to n of the most recent records, oldest first.
func (l *lineStore) Tail(n int) []string {
	count := l.store.Count()
	start := max(count-n, 0)
	out := make([]string, 0, count-start)
	for i := start; i < count; i++ {
		s, err := l.store.Get(i)
		if err != nil {
			break
		}
		out = append(out, s)
	}
	return out
}

func (l *lineStore) Count() int {
	return l.store.Count()
}

// formatLine renders a line as tab separated time, pid, process and message.
func formatLine(line logline.Line) string {
	msg := strings.TrimRight(line.Message, "\r\n")
	return fmt.Sprintf("%.6f\t%d\t%s\t%s", line.Time, line.PID, line.ProcessName, msg)
}
