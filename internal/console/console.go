// Package console prints dispatched lines to a terminal or any io.Writer.
package console

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"dbgview/internal/filter"
	"dbgview/internal/logline"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

const timeLayout = "15:04:05.000"

// Options selects the columns printed before each message.
type Options struct {
	Time        bool // wall clock at capture
	Elapsed     bool // seconds since the pipeline started
	PID         bool
	Process     bool
	LineNumbers bool
	Tabs        bool // separate columns with tabs instead of spaces
	Quiet       bool // print nothing; other sinks still run
	Color       bool // render highlight filters with ANSI colours
}

// Console is a pipeline sink writing one line of text per message.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	opts   Options
	filter *filter.LogFilter
	number int
	failed bool
	styles map[[2]filter.Color]lipgloss.Style
}

// New creates a console sink. lf supplies highlight and beep filters and may be nil;
// inclusion is decided by a filter.Sink in front of the console.
func New(out io.Writer, opts Options, lf *filter.LogFilter) *Console {
	return &Console{
		out:    out,
		opts:   opts,
		filter: lf,
		styles: make(map[[2]filter.Color]lipgloss.Style),
	}
}

// IsTerminal reports whether w is a terminal, so colour output makes sense.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// SetFilter replaces the highlight filter set.
func (c *Console) SetFilter(lf *filter.LogFilter) {
	c.mu.Lock()
	c.filter = lf
	c.mu.Unlock()
}

func (c *Console) Consume(lines logline.Lines) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opts.Quiet || c.failed {
		return
	}

	w := bufio.NewWriter(c.out)
	for _, line := range lines {
		c.number++
		w.WriteString(c.format(line))
		w.WriteByte('\n')
		if c.filter != nil && c.filter.MatchFilterType(filter.Beep, line.Message) {
			w.WriteByte('\a')
		}
	}
	if err := w.Flush(); err != nil {
		c.failed = true
		slog.Error("Failed to write to console, output disabled", "error", err)
	}
}

// format renders one line without the trailing newline.
func (c *Console) format(line logline.Line) string {
	sep := " "
	if c.opts.Tabs {
		sep = "\t"
	}

	var b strings.Builder
	if c.opts.LineNumbers {
		fmt.Fprintf(&b, "%05d%s", c.number, sep)
	}
	if c.opts.Time {
		b.WriteString(line.SystemTime.Format(timeLayout))
		b.WriteString(sep)
	}
	if c.opts.Elapsed {
		b.WriteString(strconv.FormatFloat(line.Time, 'f', 6, 64))
		b.WriteString(sep)
	}
	if c.opts.PID {
		b.WriteString(strconv.Itoa(line.PID))
		b.WriteString(sep)
	}
	if c.opts.Process {
		b.WriteString(line.ProcessName)
		b.WriteString(sep)
	}

	message := strings.TrimRight(line.Message, "\r\n")
	if c.opts.Color && c.filter != nil {
		message = c.highlight(message, c.filter.Highlights(message))
	}
	b.WriteString(message)
	return b.String()
}

// highlight styles the matched spans. Overlapping spans keep the earliest start.
func (c *Console) highlight(text string, matches []filter.Match) string {
	if len(matches) == 0 {
		return text
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Start < matches[j].Start })

	var b strings.Builder
	pos := 0
	for _, m := range matches {
		if m.Start < pos || m.End > len(text) || m.End <= m.Start {
			continue
		}
		b.WriteString(text[pos:m.Start])
		b.WriteString(c.style(m.BackColor, m.TextColor).Render(text[m.Start:m.End]))
		pos = m.End
	}
	b.WriteString(text[pos:])
	return b.String()
}

func (c *Console) style(back, fore filter.Color) lipgloss.Style {
	key := [2]filter.Color{back, fore}
	if s, ok := c.styles[key]; ok {
		return s
	}
	s := lipgloss.NewStyle().
		Background(lipgloss.Color(back.Hex())).
		Foreground(lipgloss.Color(fore.Hex()))
	c.styles[key] = s
	return s
}
