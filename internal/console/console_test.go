package console

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"dbgview/internal/filter"
	"dbgview/internal/logline"
	"github.com/stretchr/testify/require"
)

func sample() logline.Line {
	return logline.Line{
		Time:        1.25,
		SystemTime:  time.Date(2025, 1, 2, 13, 14, 15, 678_000_000, time.Local),
		PID:         42,
		ProcessName: "app.exe",
		Message:     "hello world",
	}
}

func TestConsume_MessageOnly(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, Options{}, nil)
	c.Consume(logline.Lines{sample(), {Message: "second\r\n"}})
	require.Equal(t, "hello world\nsecond\n", buf.String())
}

func TestConsume_Columns(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, Options{Time: true, PID: true, Process: true}, nil)
	c.Consume(logline.Lines{sample()})
	require.Equal(t, "13:14:15.678 42 app.exe hello world\n", buf.String())
}

func TestConsume_TabsLineNumbersElapsed(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, Options{LineNumbers: true, Elapsed: true, Tabs: true}, nil)
	c.Consume(logline.Lines{sample()})
	c.Consume(logline.Lines{sample()})
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Equal(t, []string{
		"00001\t1.250000\thello world",
		"00002\t1.250000\thello world",
	}, lines)
}

func TestConsume_Quiet(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, Options{Quiet: true, PID: true}, nil)
	c.Consume(logline.Lines{sample()})
	require.Empty(t, buf.String())
}

func TestConsume_Beep(t *testing.T) {
	beep, err := filter.New("world", filter.Simple, filter.Beep)
	require.NoError(t, err)
	lf := &filter.LogFilter{MessageFilters: []filter.Filter{beep}}

	var buf bytes.Buffer
	c := New(&buf, Options{}, lf)
	c.Consume(logline.Lines{sample(), {Message: "quiet"}})
	require.Equal(t, "hello world\n\aquiet\n", buf.String())
}

func TestHighlight_SkipsOverlaps(t *testing.T) {
	c := New(&bytes.Buffer{}, Options{Color: true}, nil)
	out := c.highlight("abcdef", []filter.Match{
		{Start: 3, End: 5, BackColor: filter.White, TextColor: filter.Black},
		{Start: 0, End: 4, BackColor: filter.White, TextColor: filter.Black},
		{Start: 2, End: 9},
	})
	// styles may render without escape codes when no colour profile is available
	require.Contains(t, out, "abcd")
	require.True(t, strings.HasSuffix(out, "ef"))
	require.Len(t, c.styles, 1)
}

type failingWriter struct{ calls int }

func (f *failingWriter) Write(p []byte) (int, error) {
	f.calls++
	return 0, errors.New("broken pipe")
}

func TestConsume_WriteErrorDisablesOutput(t *testing.T) {
	w := &failingWriter{}
	c := New(w, Options{}, nil)
	c.Consume(logline.Lines{sample()})
	c.Consume(logline.Lines{sample()})
	require.Equal(t, 1, w.calls)
}

func TestIsTerminal(t *testing.T) {
	require.False(t, IsTerminal(&bytes.Buffer{}))
}
