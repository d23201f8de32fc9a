package logsources

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"dbgview/internal/logline"
	"dbgview/internal/source"
	"github.com/stretchr/testify/require"
)

// recorder is a sink remembering everything it received.
type recorder struct {
	mu    sync.Mutex
	lines logline.Lines
}

func (r *recorder) Consume(lines logline.Lines) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, lines...)
}

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, l := range r.lines {
		out = append(out, l.Message)
	}
	return out
}

func (r *recorder) find(message string) (logline.Line, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.lines {
		if l.Message == message {
			return l, true
		}
	}
	return logline.Line{}, false
}

// liveSource reports its pids as belonging to running processes.
type liveSource struct {
	*source.TestSource
}

func (liveSource) IsLive() bool { return true }

type fakeResolver struct {
	names   map[int]string
	started time.Time
}

func (f *fakeResolver) GetProcessName(pid int) string { return f.names[pid] }

func (f *fakeResolver) GetStartTime(pid int) (time.Time, error) {
	if _, ok := f.names[pid]; !ok {
		return time.Time{}, fmt.Errorf("no pid %d", pid)
	}
	return f.started, nil
}

type fakeWatcher struct {
	pids []int
}

func (f *fakeWatcher) Add(pid int) { f.pids = append(f.pids, pid) }

func newPipeline(t *testing.T, opts ...Option) (*LogSources, *recorder) {
	t.Helper()
	s := New(DefaultConfig(), opts...)
	rec := &recorder{}
	s.AddSink(rec)
	return s, rec
}

func TestPoll_ReassemblesFragments(t *testing.T) {
	s, rec := newPipeline(t)
	src := source.NewTestSource(s.Timer(), "test")
	s.Add(src)

	src.Add(1, "app", "abc")
	src.Add(1, "app", "def\n")
	src.Add(2, "other", "x\ny")
	require.Equal(t, 2, s.Poll())
	require.Equal(t, []string{"abcdef", "x"}, rec.messages())

	src.Add(2, "other", "z\n")
	s.Poll()
	require.Equal(t, []string{"abcdef", "x", "yz"}, rec.messages())
}

func TestPoll_EmptyMessagePassesThrough(t *testing.T) {
	s, rec := newPipeline(t)
	src := source.NewTestSource(s.Timer(), "test")
	s.Add(src)

	src.Add(1, "app", "")
	s.Poll()
	require.Equal(t, []string{""}, rec.messages())
}

func TestPoll_MergesSourcesByTime(t *testing.T) {
	s, rec := newPipeline(t)
	a := source.NewTestSource(s.Timer(), "a")
	b := source.NewTestSource(s.Timer(), "b")
	s.Add(a)
	s.Add(b)

	for _, tm := range []float64{1, 3, 5} {
		a.AddLine(logline.Line{Time: tm, Message: fmt.Sprintf("a%v\n", tm)})
	}
	for _, tm := range []float64{2, 3, 4} {
		b.AddLine(logline.Line{Time: tm, Message: fmt.Sprintf("b%v\n", tm)})
	}
	s.Poll()
	require.Equal(t, []string{"a1", "b2", "a3", "b3", "b4", "a5"}, rec.messages())
}

func TestPoll_RemovesSourceAtEnd(t *testing.T) {
	s, rec := newPipeline(t)
	src := source.NewTestSource(s.Timer(), "finite")
	s.Add(src)
	s.Poll()
	require.Len(t, s.Sources(), 2)

	src.Add(1, "app", "last\n")
	src.Add(1, "app", "partial")
	src.SetEnd()
	s.Poll()
	require.Equal(t, []string{"last", "partial"}, rec.messages())
	require.Len(t, s.Sources(), 1)
	require.Same(t, s.Loopback(), s.Sources()[0])

	s.Poll()
	removal, ok := rec.find("Source 'finite' was removed.")
	require.True(t, ok)
	require.Equal(t, source.InternalProcessName, removal.ProcessName)

	src.Add(1, "app", "after end\n")
	s.Poll()
	_, ok = rec.find("after end")
	require.False(t, ok)
}

func TestPoll_FlushAtEndKeepsTimeOrder(t *testing.T) {
	s, rec := newPipeline(t)
	src := source.NewTestSource(s.Timer(), "finite")
	s.Add(src)
	s.Poll()

	src.AddLine(logline.Line{Time: 1, PID: 2, Message: "early"})
	src.AddLine(logline.Line{Time: 2, PID: 3, Message: "middle\n"})
	src.AddLine(logline.Line{Time: 3, PID: 1, Message: "late"})
	src.SetEnd()
	s.Poll()

	require.Equal(t, []string{"early", "middle", "late"}, rec.messages())
}

func TestRemove_AbortsAndAnnounces(t *testing.T) {
	s, rec := newPipeline(t)
	src := source.NewTestSource(s.Timer(), "removable")
	s.Add(src)
	s.Poll()

	s.Remove(src)
	s.Poll()
	require.True(t, src.AtEnd())
	require.Len(t, s.Sources(), 1)
	_, ok := rec.find("Source 'removable' was removed.")
	require.True(t, ok)
}

func TestRemove_LoopbackIgnored(t *testing.T) {
	s, _ := newPipeline(t)
	s.Remove(s.Loopback())
	s.Poll()
	require.Len(t, s.Sources(), 1)
}

func TestProcessEnded_FlushesPartialLine(t *testing.T) {
	started := time.Date(2025, 3, 4, 5, 6, 7, 0, time.Local)
	resolver := &fakeResolver{names: map[int]string{42: "app.exe"}, started: started}
	watcher := &fakeWatcher{}
	s, rec := newPipeline(t, WithProcessResolver(resolver), WithProcessWatcher(watcher))

	src := liveSource{source.NewTestSource(s.Timer(), "live")}
	s.Add(src)
	src.Add(42, "", "half a li")
	s.Poll()
	require.Empty(t, rec.messages())
	require.Equal(t, []int{42}, watcher.pids)

	time.Sleep(time.Millisecond)
	s.ProcessEnded(42)
	s.Poll()

	flushed, ok := rec.find("half a li")
	require.True(t, ok)
	require.Equal(t, 42, flushed.PID)
	require.Equal(t, logline.FlushProcessName, flushed.ProcessName)
	require.Greater(t, flushed.Time, 0.0)

	notice, ok := rec.find("<process started at 2025-03-04 05:06:07 has terminated with unknown exit code>")
	require.True(t, ok)
	require.Equal(t, 42, notice.PID)
	require.Equal(t, "app.exe", notice.ProcessName)
}

func TestProcessEnded_FlushesFragmentOfSameCycle(t *testing.T) {
	resolver := &fakeResolver{names: map[int]string{42: "app.exe"}, started: time.Now()}
	watcher := &fakeWatcher{}
	s, rec := newPipeline(t, WithProcessResolver(resolver), WithProcessWatcher(watcher))

	src := liveSource{source.NewTestSource(s.Timer(), "live")}
	s.Add(src)
	src.Add(42, "", "first\n")
	s.Poll()

	src.Add(42, "", "last words")
	s.ProcessEnded(42)
	s.Poll()
	s.Poll()

	flushed, ok := rec.find("last words")
	require.True(t, ok)
	require.Equal(t, logline.FlushProcessName, flushed.ProcessName)

	var notices int
	for _, m := range rec.messages() {
		if strings.HasPrefix(m, "<process started at ") {
			notices++
		}
	}
	require.Equal(t, 1, notices)
	require.Equal(t, []int{42}, watcher.pids)
}

// exitingSource knows the exit code of the processes it captured.
type exitingSource struct {
	liveSource
	codes map[int]int
}

func (e *exitingSource) ExitCode(pid int) (int, bool) {
	code, ok := e.codes[pid]
	return code, ok
}

func TestProcessEnded_ReportsExitCode(t *testing.T) {
	started := time.Date(2025, 3, 4, 5, 6, 7, 0, time.Local)
	resolver := &fakeResolver{names: map[int]string{42: "app.exe", 43: "other.exe"}, started: started}
	s, rec := newPipeline(t, WithProcessResolver(resolver))

	src := &exitingSource{liveSource{source.NewTestSource(s.Timer(), "child")}, map[int]int{42: 3}}
	s.Add(src)
	src.Add(42, "", "running\n")
	src.Add(43, "", "running too\n")
	s.Poll()

	s.ProcessEnded(42)
	s.ProcessEnded(43)
	s.Poll()

	notice, ok := rec.find("<process started at 2025-03-04 05:06:07 has terminated with exit code 3>")
	require.True(t, ok)
	require.Equal(t, 42, notice.PID)
	notice, ok = rec.find("<process started at 2025-03-04 05:06:07 has terminated with unknown exit code>")
	require.True(t, ok)
	require.Equal(t, 43, notice.PID)
}

func TestProcessEnded_UnknownPid(t *testing.T) {
	s, rec := newPipeline(t)
	s.ProcessEnded(99)
	s.Poll()
	require.Empty(t, rec.messages())
}

func TestPoll_AttributesOnlyLiveSources(t *testing.T) {
	resolver := &fakeResolver{names: map[int]string{7: "resolved.exe"}}
	watcher := &fakeWatcher{}
	s, rec := newPipeline(t, WithProcessResolver(resolver), WithProcessWatcher(watcher))

	live := liveSource{source.NewTestSource(s.Timer(), "live")}
	replay := source.NewTestSource(s.Timer(), "replay")
	s.Add(live)
	s.Add(replay)

	live.Add(7, "", "from live\n")
	replay.Add(7, "", "from replay\n")
	s.Poll()

	l, ok := rec.find("from live")
	require.True(t, ok)
	require.Equal(t, "resolved.exe", l.ProcessName)
	r, ok := rec.find("from replay")
	require.True(t, ok)
	require.Equal(t, "", r.ProcessName)
	require.Equal(t, []int{7}, watcher.pids)
}

func TestSetAutoNewLine_Propagates(t *testing.T) {
	s, rec := newPipeline(t)
	existing := source.NewTestSource(s.Timer(), "existing")
	s.Add(existing)
	s.Poll()

	s.SetAutoNewLine(true)
	require.True(t, s.AutoNewLine())
	require.True(t, existing.AutoNewLine())

	later := source.NewTestSource(s.Timer(), "later")
	s.Add(later)
	require.True(t, later.AutoNewLine())

	existing.Add(1, "p", "no newline")
	s.Poll()
	require.Equal(t, []string{"no newline"}, rec.messages())
}

func TestAddMessage(t *testing.T) {
	s, rec := newPipeline(t)
	s.AddMessage("hello")
	s.AddMessage("")
	s.Poll()

	require.Equal(t, []string{"hello", ""}, rec.messages())
	l, _ := rec.find("hello")
	require.Equal(t, source.InternalProcessName, l.ProcessName)
	require.Equal(t, s.Loopback(), l.Source)
}

// panicSource blows up when polled.
type panicSource struct {
	*source.TestSource
}

func (panicSource) GetLines() logline.Lines { panic("broken source") }

func TestPoll_IsolatesPanickingSource(t *testing.T) {
	s, rec := newPipeline(t)
	bad := panicSource{source.NewTestSource(s.Timer(), "bad")}
	good := source.NewTestSource(s.Timer(), "good")
	s.Add(bad)
	s.Add(good)

	good.Add(1, "p", "still here\n")
	s.Poll()
	require.Equal(t, []string{"still here"}, rec.messages())
	require.True(t, bad.AtEnd())
	require.Len(t, s.Sources(), 2)

	s.Poll()
	_, ok := rec.find("Source 'bad' was removed.")
	require.True(t, ok)
}

func TestDispatch_IsolatesPanickingSink(t *testing.T) {
	s, rec := newPipeline(t)
	s.AddSink(logline.SinkFunc(func(logline.Lines) { panic("sink") }))
	after := &recorder{}
	s.AddSink(after)

	s.AddMessage("m")
	s.Poll()
	require.Equal(t, []string{"m"}, rec.messages())
	require.Equal(t, []string{"m"}, after.messages())
}

func TestPoll_Holdback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Holdback = time.Hour
	s := New(cfg)
	rec := &recorder{}
	s.AddSink(rec)

	src := source.NewTestSource(s.Timer(), "test")
	s.Add(src)
	src.AddLine(logline.Line{Time: -7200, Message: "old\n"})
	src.AddLine(logline.Line{Time: 0, Message: "fresh\n"})

	require.Equal(t, 1, s.Poll())
	require.Equal(t, []string{"old"}, rec.messages())
	require.Len(t, s.held, 1)

	require.Equal(t, 0, s.Poll())
	require.Len(t, s.held, 1)
}

func TestRun_StopsOnCancel(t *testing.T) {
	s, _ := newPipeline(t)
	src := source.NewTestSource(s.Timer(), "test")
	s.Add(src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
	require.True(t, src.AtEnd())
	require.Empty(t, s.Sources())
}

func TestRun_ReturnsDeadline(t *testing.T) {
	s, _ := newPipeline(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.Run(ctx), context.DeadlineExceeded)
}

func TestRun_WakesOnReady(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PollInterval = time.Hour
	s := New(cfg)
	rec := &recorder{}
	s.AddSink(rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	src := source.NewTestSource(s.Timer(), "test")
	s.Add(src)
	require.Eventually(t, func() bool { return len(s.Sources()) == 2 }, 5*time.Second, 5*time.Millisecond)

	src.Add(1, "p", "pushed\n")
	require.Eventually(t, func() bool {
		_, ok := rec.find("pushed")
		return ok
	}, 5*time.Second, 5*time.Millisecond)
}
