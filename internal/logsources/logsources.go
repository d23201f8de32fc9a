// Package logsources runs the dispatch loop: it pulls fragments from every active
// source, reassembles them into lines, merges the sources by time and hands the
// result to the registered sinks.
package logsources

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"dbgview/internal/logline"
	"dbgview/internal/metrics"
	"dbgview/internal/source"
)

// DefaultPollInterval is the dispatch period when no source signals readiness.
const DefaultPollInterval = 100 * time.Millisecond

// ProcessResolver looks up details of a running process.
type ProcessResolver interface {
	GetProcessName(pid int) string
	GetStartTime(pid int) (time.Time, error)
}

// ProcessWatcher is told about every live pid seen in the capture.
type ProcessWatcher interface {
	Add(pid int)
}

type Config struct {
	PollInterval      time.Duration
	OverflowThreshold int
	AutoNewLine       bool
	// Holdback keeps lines younger than this undispatched for one more cycle, so that
	// slower sources can still be merged in before them. Zero dispatches everything.
	Holdback time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval:      DefaultPollInterval,
		OverflowThreshold: logline.DefaultOverflowThreshold,
	}
}

type Option func(*LogSources)

func WithProcessResolver(r ProcessResolver) Option {
	return func(s *LogSources) { s.resolver = r }
}

func WithProcessWatcher(w ProcessWatcher) Option {
	return func(s *LogSources) { s.watcher = w }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *LogSources) { s.metrics = m }
}

// WithTimer shares an existing timer instead of starting a new one.
func WithTimer(t *logline.Timer) Option {
	return func(s *LogSources) { s.timer = t }
}

// lane is an active source with its own reassembly state.
type lane struct {
	src    source.LogSource
	filter *logline.NewlineFilter
	stop   chan struct{}
}

type process struct {
	name    string
	started time.Time
}

// LogSources owns the active sources. Add, Remove, SetAutoNewLine, AddMessage and
// ProcessEnded may be called from any goroutine; Run and Poll must be called from a
// single goroutine.
type LogSources struct {
	cfg      Config
	timer    *logline.Timer
	loopback *source.Loopback
	resolver ProcessResolver
	watcher  ProcessWatcher
	metrics  *metrics.Metrics
	update   chan struct{}

	// owned by the dispatch goroutine
	lanes     []*lane
	loopLane  *lane
	held      logline.Lines
	processes map[int]process
	ending    map[int]bool // pids reported ended in the current cycle

	mu          sync.Mutex
	sources     []source.LogSource // snapshot for Sources()
	toAdd       []source.LogSource
	toRemove    []source.LogSource
	ended       []int
	sinks       []logline.Sink
	autoNewLine bool
}

func New(cfg Config, opts ...Option) *LogSources {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	s := &LogSources{
		cfg:         cfg,
		update:      make(chan struct{}, 1),
		processes:   make(map[int]process),
		autoNewLine: cfg.AutoNewLine,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.timer == nil {
		s.timer = logline.NewTimer()
	}
	s.loopback = source.NewLoopback(s.timer)
	s.attach(s.loopback)
	s.loopLane = s.lanes[0]
	s.sources = []source.LogSource{s.loopback}
	return s
}

// Timer is the clock every source of this pipeline must stamp lines with.
func (s *LogSources) Timer() *logline.Timer {
	return s.timer
}

// Loopback is the source carrying the pipeline's own messages.
func (s *LogSources) Loopback() *source.Loopback {
	return s.loopback
}

// AddSink registers a consumer of merged lines.
func (s *LogSources) AddSink(sink logline.Sink) {
	s.mu.Lock()
	s.sinks = append(s.sinks, sink)
	s.mu.Unlock()
}

// Add schedules src to join at the start of the next cycle.
func (s *LogSources) Add(src source.LogSource) {
	s.mu.Lock()
	src.SetAutoNewLine(s.autoNewLine)
	s.toAdd = append(s.toAdd, src)
	s.mu.Unlock()
	s.signal()
}

// Remove schedules src to leave at the start of the next cycle.
func (s *LogSources) Remove(src source.LogSource) {
	s.mu.Lock()
	s.toRemove = append(s.toRemove, src)
	s.mu.Unlock()
	s.signal()
}

// Sources returns the active sources, loopback first.
func (s *LogSources) Sources() []source.LogSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sources)
}

func (s *LogSources) SetAutoNewLine(value bool) {
	s.mu.Lock()
	s.autoNewLine = value
	sources := slices.Clone(s.sources)
	sources = append(sources, s.toAdd...)
	s.mu.Unlock()

	for _, src := range sources {
		src.SetAutoNewLine(value)
	}
}

func (s *LogSources) AutoNewLine() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoNewLine
}

// AddMessage adds a pipeline message through the loopback source.
func (s *LogSources) AddMessage(message string) {
	s.loopback.AddInternal(message)
}

// ProcessEnded is the callback for a ProcessWatcher reporting a terminated pid.
func (s *LogSources) ProcessEnded(pid int) {
	s.mu.Lock()
	s.ended = append(s.ended, pid)
	s.mu.Unlock()
	s.signal()
}

func (s *LogSources) signal() {
	select {
	case s.update <- struct{}{}:
	default:
	}
}

// Run dispatches until ctx is done, then aborts every source. Buffered lines that were
// not dispatched yet are discarded.
func (s *LogSources) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	defer s.abort()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
		case <-s.update:
		}
		s.Poll()
	}
}

// Poll runs a single cycle and returns the number of lines dispatched.
func (s *LogSources) Poll() int {
	start := time.Now()

	s.applyUpdates()
	s.ending = s.takeEnded()

	batches := make([]logline.Lines, 0, len(s.lanes)+1)
	batches = append(batches, s.held)
	s.held = nil

	var retired []*lane
	for _, l := range s.lanes {
		lines, end, err := s.collect(l)
		if err != nil {
			slog.Error("Log source failed", "source", l.src.Description(), "error", err)
			safeAbort(l.src)
			end = true
		}
		batches = append(batches, lines)
		if end {
			retired = append(retired, l)
		}
	}

	// Terminated processes are flushed after their last fragments went through the
	// filters. The flushed lines travel through the loopback, so it is drained again.
	if s.flushEnded() {
		lines, _, err := s.collect(s.loopLane)
		if err != nil {
			slog.Error("Log source failed", "source", s.loopback.Description(), "error", err)
		}
		batches = append(batches, lines)
	}
	s.ending = nil

	merged := Merge(batches...)
	if s.cfg.Holdback > 0 && len(merged) > 0 {
		cutoff := s.timer.Get() - s.cfg.Holdback.Seconds()
		n := sort.Search(len(merged), func(i int) bool { return merged[i].Time > cutoff })
		s.held = slices.Clone(merged[n:])
		merged = merged[:n]
	}
	s.dispatch(merged)

	for _, l := range retired {
		s.retire(l)
		s.loopback.AddInternal(fmt.Sprintf("Source '%s' was removed.", l.src.Description()))
	}
	if len(retired) > 0 {
		s.signal()
	}

	s.metrics.ObserveDispatch(time.Since(start))
	return len(merged)
}

func (s *LogSources) attach(src source.LogSource) {
	l := &lane{
		src: src,
		filter: logline.NewNewlineFilter(
			logline.WithOverflowThreshold(s.cfg.OverflowThreshold),
			logline.WithFlushObserver(func(r logline.FlushReason) { s.metrics.Flushed(r.String()) }),
		),
		stop: make(chan struct{}),
	}
	s.lanes = append(s.lanes, l)

	// Forward readiness so Run wakes up without waiting for the ticker.
	go func() {
		for {
			select {
			case <-l.stop:
				return
			case <-src.Ready():
				s.signal()
			}
		}
	}()
}

func (s *LogSources) applyUpdates() {
	s.mu.Lock()
	toAdd, toRemove := s.toAdd, s.toRemove
	s.toAdd, s.toRemove = nil, nil
	s.mu.Unlock()

	for _, src := range toAdd {
		s.attach(src)
		slog.Info("Log source added", "source", src.Description())
	}
	for _, src := range toRemove {
		for _, l := range s.lanes {
			if l.src == src && src != source.LogSource(s.loopback) {
				safeAbort(src)
				s.retire(l)
				s.loopback.AddInternal(fmt.Sprintf("Source '%s' was removed.", src.Description()))
				break
			}
		}
	}
	if len(toAdd) > 0 || len(toRemove) > 0 {
		s.publishSources()
	}
}

func (s *LogSources) retire(l *lane) {
	idx := slices.Index(s.lanes, l)
	if idx < 0 {
		return
	}
	s.lanes = slices.Delete(s.lanes, idx, idx+1)
	close(l.stop)
	s.metrics.SourceRemoved()
	s.publishSources()
	slog.Info("Log source removed", "source", l.src.Description())
}

func (s *LogSources) publishSources() {
	sources := make([]source.LogSource, len(s.lanes))
	for i, l := range s.lanes {
		sources[i] = l.src
	}
	s.mu.Lock()
	s.sources = sources
	s.mu.Unlock()
	s.metrics.SetSourcesActive(len(sources))
}

// collect pulls and reassembles the lines of one source. A panicking source is
// reported as an error. AtEnd is read before GetLines so nothing added just before
// the end is lost.
func (s *LogSources) collect(l *lane) (out logline.Lines, end bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("source panicked: %v", r)
		}
	}()

	end = l.src.AtEnd()
	raw := l.src.GetLines()
	s.metrics.LinesIngested(l.src.Description(), len(raw))

	live := false
	if lv, ok := l.src.(source.Live); ok {
		live = lv.IsLive()
	}

	for i := range raw {
		line := raw[i]
		l.src.PreProcess(&line)
		if live && line.PID != 0 {
			if line.ProcessName == "" && s.resolver != nil {
				line.ProcessName = s.resolver.GetProcessName(line.PID)
			}
			s.track(line.PID, line.ProcessName)
		}
		if line.Message == "" {
			out = append(out, line)
			continue
		}
		out = append(out, l.filter.Process(line)...)
	}
	if end {
		flushed := l.filter.FlushAll()
		slices.SortStableFunc(flushed, func(a, b logline.Line) int { return cmp.Compare(a.Time, b.Time) })
		out = Merge(out, flushed)
	}
	return out, end, nil
}

// track remembers a live pid and hands it to the watcher the first time it is seen.
// A pid that ended in this cycle is not registered again.
func (s *LogSources) track(pid int, name string) {
	if _, ok := s.processes[pid]; ok || s.ending[pid] {
		return
	}
	started := time.Now()
	if s.resolver != nil {
		if t, err := s.resolver.GetStartTime(pid); err == nil {
			started = t
		}
	}
	s.processes[pid] = process{name: name, started: started}
	if s.watcher != nil {
		s.watcher.Add(pid)
	}
}

func (s *LogSources) takeEnded() map[int]bool {
	s.mu.Lock()
	ended := s.ended
	s.ended = nil
	s.mu.Unlock()

	if len(ended) == 0 {
		return nil
	}
	set := make(map[int]bool, len(ended))
	for _, pid := range ended {
		set[pid] = true
	}
	return set
}

// flushEnded emits the partial lines of terminated processes through the loopback,
// followed by a termination notice. It reports whether anything was added.
func (s *LogSources) flushEnded() bool {
	added := false
	for _, pid := range slices.Sorted(maps.Keys(s.ending)) {
		for _, l := range s.lanes {
			for _, line := range l.filter.FlushLinesFromTerminatedProcess(pid, nil) {
				s.loopback.Add(line.PID, line.ProcessName, line.Message)
				added = true
			}
		}
		proc, ok := s.processes[pid]
		if !ok {
			continue
		}
		delete(s.processes, pid)
		s.loopback.Add(pid, proc.name, fmt.Sprintf("<process started at %s has terminated %s>",
			proc.started.Format(time.DateTime), s.exitStatus(pid)))
		added = true
	}
	return added
}

// exitStatus describes how pid exited, as far as one of the sources knows.
func (s *LogSources) exitStatus(pid int) string {
	for _, l := range s.lanes {
		if r, ok := l.src.(source.ExitReporter); ok {
			if code, ok := r.ExitCode(pid); ok {
				return fmt.Sprintf("with exit code %d", code)
			}
		}
	}
	return "with unknown exit code"
}

func (s *LogSources) dispatch(lines logline.Lines) {
	if len(lines) == 0 {
		return
	}
	s.mu.Lock()
	sinks := slices.Clone(s.sinks)
	s.mu.Unlock()

	for _, sink := range sinks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Sink panicked", "panic", r)
				}
			}()
			sink.Consume(lines)
		}()
	}
	s.metrics.LinesDispatched(len(lines))
}

func (s *LogSources) abort() {
	s.mu.Lock()
	toAdd := s.toAdd
	s.toAdd, s.toRemove, s.ended = nil, nil, nil
	s.mu.Unlock()

	for _, src := range toAdd {
		safeAbort(src)
	}
	for _, l := range s.lanes {
		safeAbort(l.src)
		close(l.stop)
	}
	s.lanes = nil
	s.held = nil
	s.publishSources()
}

func safeAbort(src source.LogSource) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Abort panicked", "source", src.Description(), "panic", r)
		}
	}()
	src.Abort()
}
