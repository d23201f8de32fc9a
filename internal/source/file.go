package source

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"dbgview/internal/logline"
	"dbgview/pkg/filetype"
	"dbgview/pkg/outputlog"
	"github.com/hpcloud/tail"
)

// headerSize is how much of a file is inspected to identify it.
const headerSize = 4096

// FileReader replays a log file. Recorded logs keep their original pid, process name
// and timestamps; other text is read line by line and, with follow set, tailed for new
// lines until the source is aborted.
type FileReader struct {
	Base
	path     string
	name     string
	fileType filetype.Type
	tail     *tail.Tail
	stopOnce sync.Once
	done     chan struct{}
}

var _ LogSource = &FileReader{}

func NewFileReader(timer *logline.Timer, path string, follow bool) (*FileReader, error) {
	header, err := readHeader(path)
	if err != nil {
		return nil, err
	}
	fileType := filetype.Detect(header, path)
	if fileType == filetype.Binary {
		return nil, fmt.Errorf("failed to open %s: %s", path, fileType)
	}

	f := &FileReader{
		path:     path,
		name:     filepath.Base(path),
		fileType: fileType,
		done:     make(chan struct{}),
	}
	f.init(timer, path, f)

	if fileType == filetype.OutputLog {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		go f.replay(file)
		return f, nil
	}

	t, err := tail.TailFile(path, tail.Config{
		Follow:    follow,
		ReOpen:    follow,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to tail %s: %w", path, err)
	}
	f.tail = t
	go f.follow()
	return f, nil
}

func readHeader(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	buf := make([]byte, headerSize)
	n, err := io.ReadFull(file, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return buf[:n], nil
}

// FileType reports how the file was identified.
func (f *FileReader) FileType() filetype.Type {
	return f.fileType
}

// AutoNewLine is always on: each line read from the file is complete.
func (f *FileReader) AutoNewLine() bool {
	return true
}

func (f *FileReader) PreProcess(line *logline.Line) {
	if line.ProcessName == "" {
		line.ProcessName = f.name
	}
}

func (f *FileReader) replay(file *os.File) {
	defer f.finish()
	defer func() { _ = file.Close() }()

	reader := outputlog.NewOutputLogReader(file)
	for {
		select {
		case <-f.done:
			return
		default:
		}
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			slog.Warn("Failed to read record", "path", f.path, "error", err)
			return
		}
		f.AddAt(rec.Time, rec.Timestamp, rec.PID, rec.Process, string(rec.Message))
	}
}

func (f *FileReader) follow() {
	defer f.finish()
	for {
		select {
		case <-f.done:
			return
		case line, ok := <-f.tail.Lines:
			if !ok {
				return
			}
			if line.Err != nil {
				slog.Warn("Error reading line", "path", f.path, "error", line.Err)
				continue
			}
			f.addText(line.Text)
		}
	}
}

func (f *FileReader) addText(text string) {
	if f.fileType != filetype.Sysinternals {
		f.AddMessage(text)
		return
	}
	parsed, ok := filetype.ParseSysinternals(text)
	if !ok {
		// The first line of a Sysinternals log may hold the computer name.
		f.AddMessage(text)
		return
	}
	if seconds, err := strconv.ParseFloat(parsed.Clock, 64); err == nil {
		f.AddAt(seconds, time.Now(), parsed.PID, parsed.ProcessName, parsed.Message)
		return
	}
	f.Add(parsed.PID, parsed.ProcessName, parsed.Message)
}

func (f *FileReader) Abort() {
	f.stopOnce.Do(func() {
		close(f.done)
		if f.tail != nil {
			_ = f.tail.Stop()
			f.tail.Cleanup()
		}
	})
	f.Base.Abort()
}
