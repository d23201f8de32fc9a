package logline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeOrigin struct {
	auto bool
}

func (o fakeOrigin) Description() string { return "fake" }
func (o fakeOrigin) AutoNewLine() bool   { return o.auto }

func fragment(pid int, msg string, src Origin) Line {
	return Line{Time: 1.5, PID: pid, ProcessName: "proc", Message: msg, Source: src}
}

func messages(lines Lines) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.Message)
	}
	return out
}

func TestNewlineFilter_SplitAcrossFragments(t *testing.T) {
	f := NewNewlineFilter()
	src := fakeOrigin{}

	require.Empty(t, f.Process(fragment(42, "ab", src)))
	lines := f.Process(fragment(42, "cd\n", src))
	require.Equal(t, []string{"abcd"}, messages(lines))

	require.Empty(t, f.Process(fragment(42, "ef", src)))
	pendingMsg, ok := f.Pending(42)
	require.True(t, ok)
	require.Equal(t, "ef", pendingMsg)
}

func TestNewlineFilter_TrailingFlushYieldsConcatenation(t *testing.T) {
	f := NewNewlineFilter()
	src := fakeOrigin{}

	var all Lines
	all = append(all, f.Process(fragment(42, "ab", src))...)
	all = append(all, f.Process(fragment(42, "cd", src))...)
	all = append(all, f.Process(fragment(42, "ef", src))...)
	require.Empty(t, all)

	all = append(all, f.FlushLinesFromTerminatedProcess(42, nil)...)
	require.Equal(t, []string{"abcdef"}, messages(all))
	require.Equal(t, FlushProcessName, all[0].ProcessName)
	require.Nil(t, all[0].Source)
	require.Zero(t, all[0].Time)
	require.Equal(t, 0, f.Len())
}

func TestNewlineFilter_MultipleNewlines(t *testing.T) {
	f := NewNewlineFilter()
	lines := f.Process(fragment(7, "1\n2\n3\n", fakeOrigin{}))

	require.Equal(t, []string{"1", "2", "3"}, messages(lines))
	for _, l := range lines {
		require.Equal(t, 7, l.PID)
		require.Equal(t, "proc", l.ProcessName)
		require.Equal(t, 1.5, l.Time)
	}
	_, ok := f.Pending(7)
	require.False(t, ok)
}

func TestNewlineFilter_DropsCarriageReturns(t *testing.T) {
	f := NewNewlineFilter()
	lines := f.Process(fragment(1, "a\r\nb\r\r\n\r", fakeOrigin{}))
	require.Equal(t, []string{"a", "b"}, messages(lines))
	require.Equal(t, 0, f.Len())
}

func TestNewlineFilter_EmptyLines(t *testing.T) {
	f := NewNewlineFilter()
	lines := f.Process(fragment(1, "\n\nx\n", fakeOrigin{}))
	require.Equal(t, []string{"", "", "x"}, messages(lines))
}

func TestNewlineFilter_AutoNewLine(t *testing.T) {
	f := NewNewlineFilter()
	lines := f.Process(fragment(3, "a\nbc", fakeOrigin{auto: true}))
	require.Equal(t, []string{"a", "bc"}, messages(lines))
	require.Equal(t, 0, f.Len())
}

func TestNewlineFilter_NilSourceIsNotAutoNewLine(t *testing.T) {
	f := NewNewlineFilter()
	require.Empty(t, f.Process(fragment(3, "abc", nil)))
	require.Equal(t, 1, f.Len())
}

func TestNewlineFilter_PidsAreIndependent(t *testing.T) {
	f := NewNewlineFilter()
	src := fakeOrigin{}

	require.Empty(t, f.Process(fragment(1, "one-", src)))
	require.Empty(t, f.Process(fragment(2, "two-", src)))
	lines := f.Process(fragment(1, "end\n", src))
	require.Equal(t, []string{"one-end"}, messages(lines))

	lines = f.Process(fragment(2, "end\n", src))
	require.Equal(t, []string{"two-end"}, messages(lines))
}

func TestNewlineFilter_Overflow(t *testing.T) {
	var reasons []FlushReason
	f := NewNewlineFilter(WithFlushObserver(func(r FlushReason) { reasons = append(reasons, r) }))
	src := fakeOrigin{}

	chunk := strings.Repeat("x", 1000)
	var emitted Lines
	for i := 0; i < 20; i++ {
		emitted = append(emitted, f.Process(fragment(9, chunk, src))...)
		p, _ := f.Pending(9)
		require.LessOrEqual(t, len(p), DefaultOverflowThreshold)
	}

	require.NotEmpty(t, emitted)
	require.Greater(t, len(emitted[0].Message), DefaultOverflowThreshold)
	for _, r := range reasons {
		require.Equal(t, FlushOverflow, r)
	}
}

func TestNewlineFilter_ConfigurableThreshold(t *testing.T) {
	f := NewNewlineFilter(WithOverflowThreshold(4))
	lines := f.Process(fragment(1, "abcde", fakeOrigin{}))
	require.Equal(t, []string{"abcde"}, messages(lines))

	require.Empty(t, f.Process(fragment(1, "abcd", fakeOrigin{})))
}

func TestNewlineFilter_FlushUnknownPidIsNoop(t *testing.T) {
	f := NewNewlineFilter()
	require.Empty(t, f.Process(fragment(5, "pending", fakeOrigin{})))
	require.Equal(t, 1, f.Len())

	require.Empty(t, f.FlushLinesFromTerminatedProcess(6, nil))
	require.Equal(t, 1, f.Len())

	f.Process(fragment(8, "done\n", fakeOrigin{}))
	require.Empty(t, f.FlushLinesFromTerminatedProcess(8, nil))
	require.Equal(t, 1, f.Len())
}

func TestNewlineFilter_FlushAll(t *testing.T) {
	f := NewNewlineFilter()
	src := fakeOrigin{}
	f.Process(fragment(20, "b", src))
	f.Process(fragment(10, "a", src))

	lines := f.FlushAll()
	require.Equal(t, []string{"a", "b"}, messages(lines))
	require.Equal(t, 10, lines[0].PID)
	require.Equal(t, src, lines[0].Source)
	require.Equal(t, 0, f.Len())
}

func TestNewlineFilter_Reconstruction(t *testing.T) {
	inputs := []string{"he", "llo\r\nwor", "ld\n\n", "a\nb\nc", "", "\rtail"}
	f := NewNewlineFilter()
	src := fakeOrigin{}

	var got strings.Builder
	for _, in := range inputs {
		for _, l := range f.Process(fragment(11, in, src)) {
			got.WriteString(l.Message)
			got.WriteByte('\n')
		}
	}
	if p, ok := f.Pending(11); ok {
		got.WriteString(p)
	}

	want := strings.ReplaceAll(strings.Join(inputs, ""), "\r", "")
	require.Equal(t, want, got.String())
}

func TestNewlineFilter_CountsEmbeddedNewlines(t *testing.T) {
	f := NewNewlineFilter()
	src := fakeOrigin{}
	for _, in := range []string{"x", "a\nb\n", "\n\n\n", "tail"} {
		lines := f.Process(fragment(4, in, src))
		require.Len(t, lines, strings.Count(in, "\n"), "input %q", in)
	}
}

func TestFlushReason_String(t *testing.T) {
	require.Equal(t, "newline", FlushNewline.String())
	require.Equal(t, "overflow", FlushOverflow.String())
	require.Equal(t, "unknown", FlushReason(99).String())
}
