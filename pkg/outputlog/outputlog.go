// Package outputlog defines the on-disk format for recorded debug lines. See doc.go
// for docs.
package outputlog

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// TimestampLayout is the layout of the timestamp field.
const TimestampLayout = time.RFC3339Nano

// Record is one recorded line.
type Record struct {
	PID       int
	Process   string
	Timestamp time.Time // UTC wall clock
	Time      float64   // seconds since the capturing pipeline started
	Message   []byte
	Error     error
}

// FormatRecord formats a Record into the output.log format.
// Format: "pid:process timestamp time length: content\n"
func FormatRecord(rec Record) []byte {
	timestamp := rec.Timestamp.UTC().Format(TimestampLayout)
	relative := strconv.FormatFloat(rec.Time, 'f', -1, 64)
	start := fmt.Appendf(nil, "%d:%s %s %s %d: ", rec.PID, sanitizeProcess(rec.Process), timestamp, relative, len(rec.Message))
	result := append(start, rec.Message...)
	result = append(result, '\n')
	return result
}

func sanitizeProcess(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, name)
}

// IsRecordHeader reports whether line starts with a well formed record header. Only the
// part up to the ": " separator is inspected.
func IsRecordHeader(line []byte) bool {
	text := string(line)
	offset := 0
	// An empty process name puts a ": " right after the pid, so try every separator.
	for {
		idx := strings.Index(text[offset:], ": ")
		if idx < 0 {
			return false
		}
		end := offset + idx + 1
		var rec Record
		if _, err := parseHeader(text[:end], &rec); err == nil {
			return true
		}
		offset = end
	}
}

// parseHeader parses "pid:process timestamp time length:" and returns the content
// length.
func parseHeader(header string, rec *Record) (int, error) {
	header = strings.TrimSuffix(header, ":")
	fields := strings.Split(header, " ")
	if len(fields) != 4 {
		return 0, fmt.Errorf("expected 4 header fields, got %d", len(fields))
	}

	pidText, process, ok := strings.Cut(fields[0], ":")
	if !ok {
		return 0, fmt.Errorf("missing ':' in %q", fields[0])
	}
	pid, err := strconv.Atoi(pidText)
	if err != nil {
		return 0, fmt.Errorf("parsing pid: %w", err)
	}
	timestamp, err := time.Parse(TimestampLayout, fields[1])
	if err != nil {
		return 0, fmt.Errorf("parsing timestamp: %w", err)
	}
	relative, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return 0, fmt.Errorf("parsing time: %w", err)
	}
	length, err := strconv.Atoi(fields[3])
	if err != nil || length < 0 {
		return 0, fmt.Errorf("parsing length %q", fields[3])
	}

	rec.PID = pid
	rec.Process = process
	rec.Timestamp = timestamp
	rec.Time = relative
	return length, nil
}
