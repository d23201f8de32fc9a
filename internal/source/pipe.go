package source

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"

	"dbgview/internal/logline"
)

// MaxChunk is the longest run of bytes reported without a terminator.
const MaxChunk = 4000

// scanChunks splits on '\n' or NUL, or after MaxChunk bytes when neither shows up.
// Terminators are not part of the token.
func scanChunks(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\n\x00"); i >= 0 && i <= MaxChunk {
		return i + 1, data[:i], nil
	}
	if len(data) >= MaxChunk {
		return MaxChunk, data[:MaxChunk], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// readChunks feeds add with every chunk of r, each terminated with a newline, until r
// is exhausted.
func readChunks(r io.Reader, add func(message string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 8192), 64*1024)
	scanner.Split(scanChunks)
	for scanner.Scan() {
		add(scanner.Text() + "\n")
	}
	err := scanner.Err()
	// A pty reports EIO once the child side is closed.
	if errors.Is(err, os.ErrClosed) || isPtyEOF(err) {
		return nil
	}
	return err
}

// PipeReader captures an io.Reader such as stdin.
type PipeReader struct {
	Base
	pid     int
	process string
	closer  io.Closer
}

var _ LogSource = &PipeReader{}

// NewPipeReader starts reading r in the background. Lines are attributed to pid and
// process. If r is an io.Closer, Abort closes it.
func NewPipeReader(timer *logline.Timer, r io.Reader, pid int, process string) *PipeReader {
	p := &PipeReader{pid: pid, process: process}
	p.init(timer, "Piped from "+process, p)
	if c, ok := r.(io.Closer); ok {
		p.closer = c
	}
	go func() {
		if err := readChunks(r, func(msg string) { p.Add(p.pid, p.process, msg) }); err != nil {
			slog.Warn("Pipe read failed", "source", p.Description(), "error", err)
		}
		p.finish()
	}()
	return p
}

func (p *PipeReader) Abort() {
	p.Base.Abort()
	if p.closer != nil {
		_ = p.closer.Close()
	}
}
