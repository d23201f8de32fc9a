// Package filetype identifies the kind of log file a replay source is handed.
package filetype

import (
	"bytes"
	"path/filepath"
	"strconv"
	"strings"

	"dbgview/pkg/outputlog"
)

// Type represents the detected type of a log file
type Type string

const (
	Unknown      Type = "unknown"
	Binary       Type = "binary"
	AsciiText    Type = "text"
	OutputLog    Type = "outputlog"
	Sysinternals Type = "sysinternals"
)

func (t Type) String() string {
	switch t {
	case OutputLog:
		return "dbgview record log"
	case Sysinternals:
		return "Sysinternals DebugView log"
	case AsciiText:
		return "ASCII text file"
	case Binary:
		return "binary file"
	default:
		return "unknown"
	}
}

// Detect classifies a file from its first bytes and its name.
//
// Recorded logs are recognised from the first line alone. A ".log" file whose second
// line holds two or three tab characters is a Sysinternals DebugView log; the first line
// of those files sometimes carries the computer name, so it is not inspected.
func Detect(header []byte, filename string) Type {
	if len(header) == 0 {
		return Unknown
	}

	first, rest, _ := bytes.Cut(header, []byte("\n"))
	if outputlog.IsRecordHeader(first) {
		return OutputLog
	}
	if isBinaryData(first) {
		return Binary
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == ".log" {
		second, _, _ := bytes.Cut(rest, []byte("\n"))
		tabs := bytes.Count(second, []byte("\t"))
		if tabs == 2 || tabs == 3 {
			return Sysinternals
		}
	}
	return AsciiText
}

// isBinaryData checks if a line contains binary data
func isBinaryData(line []byte) bool {
	if len(line) == 0 {
		return false
	}

	nonPrintableCount := 0
	for _, r := range string(line) {
		// Null bytes are a definitive indicator of binary data
		if r == 0 {
			return true
		}
		if r < 32 && r != '\t' && r != '\n' && r != '\r' && r != 0x1B {
			nonPrintableCount++
		} else if r > 126 && r < 160 {
			nonPrintableCount++
		}
	}

	// If more than 30% of characters are non-printable, consider it binary
	threshold := float64(len(line)) * 0.3
	return float64(nonPrintableCount) > threshold
}

// SysinternalsLine is one parsed line of a Sysinternals DebugView log.
type SysinternalsLine struct {
	Clock       string // the time column as written, wall clock or relative seconds
	PID         int
	ProcessName string
	Message     string
}

// ParseSysinternals splits a tab separated DebugView line. Process messages carry a
// "[pid] " prefix; kernel messages do not.
func ParseSysinternals(text string) (SysinternalsLine, bool) {
	text = strings.TrimRight(text, "\r\n")
	cols := strings.SplitN(text, "\t", 3)
	if len(cols) < 3 {
		return SysinternalsLine{}, false
	}

	line := SysinternalsLine{Clock: strings.TrimSpace(cols[1])}
	msg := cols[2]
	if strings.HasPrefix(msg, "[") {
		line.ProcessName = "[unavailable]"
		if end := strings.Index(msg, "] "); end > 0 {
			if pid, err := strconv.Atoi(msg[1:end]); err == nil {
				line.PID = pid
				line.Message = msg[end+2:]
				return line, true
			}
		}
	} else {
		line.ProcessName = "[kernel]"
	}
	line.Message = msg
	return line, true
}
