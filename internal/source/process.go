package source

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"dbgview/internal/logline"
	"github.com/creack/pty"
)

// KillTimeout is how long Abort waits after SIGTERM before killing the child.
const KillTimeout = 2 * time.Second

// ProcessReader runs a child process and captures what it writes. Without a pty,
// stdout and stderr are separate streams named "<name>:stdout" and "<name>:stderr";
// under a pty both arrive combined as "<name>:pty".
type ProcessReader struct {
	Base
	cmd    *exec.Cmd
	name   string
	ptmx   *os.File
	exited chan struct{}

	// set before exited is closed
	exitCode  int
	exitKnown bool

	abortMu sync.Mutex
	aborted bool
}

var (
	_ LogSource    = &ProcessReader{}
	_ ExitReporter = &ProcessReader{}
)

// ProcessOptions configures NewProcessReader.
type ProcessOptions struct {
	Args []string
	Dir  string
	Env  []string
	// PTY runs the child under a pseudo terminal.
	PTY  bool
	Rows uint16
	Cols uint16
}

// NewProcessReader starts command and begins capturing its output.
func NewProcessReader(timer *logline.Timer, command string, opts ProcessOptions) (*ProcessReader, error) {
	cmd := exec.Command(command, opts.Args...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	p := &ProcessReader{
		cmd:    cmd,
		name:   filepath.Base(command),
		exited: make(chan struct{}),
	}
	p.init(timer, p.name, p)

	var streams []stream
	if opts.PTY {
		ptmx, err := pty.Start(cmd)
		if err != nil {
			return nil, fmt.Errorf("failed to start command with pty: %w", err)
		}
		rows, cols := opts.Rows, opts.Cols
		if rows == 0 || cols == 0 {
			rows, cols = 24, 80
		}
		_ = pty.Setsize(ptmx, &pty.Winsize{Rows: rows, Cols: cols})
		p.ptmx = ptmx
		streams = append(streams, stream{reader: ptmx, name: p.name + ":pty"})
	} else {
		stdoutPipe, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
		}
		stderrPipe, err := cmd.StderrPipe()
		if err != nil {
			return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("failed to start command: %w", err)
		}
		streams = append(streams,
			stream{reader: stdoutPipe, name: p.name + ":stdout"},
			stream{reader: stderrPipe, name: p.name + ":stderr"},
		)
	}

	p.description = fmt.Sprintf("%s (pid %d)", p.name, cmd.Process.Pid)
	slog.Info("Started process", "command", command, "pid", cmd.Process.Pid, "pty", opts.PTY)

	go p.capture(streams)
	return p, nil
}

type stream struct {
	reader io.Reader
	name   string
}

// capture drains every stream, then waits for the child. The pipes must be drained
// before cmd.Wait closes them.
func (p *ProcessReader) capture(streams []stream) {
	pid := p.cmd.Process.Pid

	var wg sync.WaitGroup
	for _, s := range streams {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := readChunks(s.reader, func(msg string) { p.Add(pid, s.name, msg) })
			if err != nil {
				slog.Warn("Failed to read process output", "stream", s.name, "error", err)
			}
		}()
	}
	wg.Wait()

	err := p.cmd.Wait()
	if p.ptmx != nil {
		_ = p.ptmx.Close()
	}

	exitCode := 0
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		exitCode = -1
		slog.Warn("Failed to wait for process", "pid", pid, "error", err)
	}
	// -1 means killed by a signal or not reaped.
	p.exitCode, p.exitKnown = exitCode, exitCode >= 0
	close(p.exited)

	slog.Info("Process exited", "pid", pid, "exit_code", exitCode)
	p.finish()
}

// PID returns the pid of the child.
func (p *ProcessReader) PID() int {
	return p.cmd.Process.Pid
}

func (p *ProcessReader) IsLive() bool {
	return true
}

// ExitCode returns the exit code of the child once it has been reaped.
func (p *ProcessReader) ExitCode(pid int) (int, bool) {
	if pid != p.cmd.Process.Pid {
		return 0, false
	}
	select {
	case <-p.exited:
		return p.exitCode, p.exitKnown
	default:
		return 0, false
	}
}

// Exited is closed once the child has been reaped.
func (p *ProcessReader) Exited() <-chan struct{} {
	return p.exited
}

// Abort terminates the child. It is sent SIGTERM first and killed if it is still
// running after KillTimeout.
func (p *ProcessReader) Abort() {
	p.abortMu.Lock()
	if p.aborted {
		p.abortMu.Unlock()
		return
	}
	p.aborted = true
	p.abortMu.Unlock()

	select {
	case <-p.exited:
		p.Base.Abort()
		return
	default:
	}

	p.AddInternal("<process reader aborted>")
	_ = p.cmd.Process.Signal(syscall.SIGTERM)
	go func() {
		select {
		case <-p.exited:
		case <-time.After(KillTimeout):
			_ = p.cmd.Process.Kill()
		}
	}()
	p.Base.Abort()
}

func isPtyEOF(err error) bool {
	return errors.Is(err, syscall.EIO)
}
