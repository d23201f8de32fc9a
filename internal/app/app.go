// Package app assembles the pipeline from a configuration: sources, the dispatch
// loop, sinks, the process monitor and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"dbgview/internal/config"
	"dbgview/internal/console"
	"dbgview/internal/filter"
	"dbgview/internal/hub"
	"dbgview/internal/logline"
	"dbgview/internal/logsources"
	"dbgview/internal/metrics"
	"dbgview/internal/procinfo"
	"dbgview/internal/server"
	"dbgview/internal/source"
	"dbgview/pkg/outputlog"
	"dbgview/pkg/storage"
	"golang.org/x/sync/errgroup"
)

// Options holds settings that only come from the command line.
type Options struct {
	Console console.Options

	Include        []string
	Exclude        []string
	IncludeProcess []string
	ExcludeProcess []string

	// QuitMessage stops the pipeline when a line containing it is dispatched.
	QuitMessage string

	Stdout io.Writer
	Stdin  io.Reader
}

// App is an assembled pipeline.
type App struct {
	cfg     *config.Config
	opts    Options
	metrics *metrics.Metrics
	info    *procinfo.ProcessInfo
	monitor *procinfo.Monitor
	ls      *logsources.LogSources
	hub     *hub.Hub
	store   *lineStore
	console *console.Console
	record  *outputlog.OutputLogIoWriter
	file    *os.File
	quit    chan struct{}
}

// New wires sinks and sources for cfg. The configuration must have been validated.
func New(cfg *config.Config, opts Options) (*App, error) {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	m, err := metrics.New()
	if err != nil {
		return nil, err
	}
	info, err := procinfo.New(procinfo.DefaultCacheSize)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		opts:    opts,
		metrics: m,
		info:    info,
		monitor: procinfo.NewMonitor(cfg.ProcessMonitorInterval),
		quit:    make(chan struct{}),
	}

	a.ls = logsources.New(logsources.Config{
		PollInterval:      cfg.PollInterval,
		OverflowThreshold: cfg.OverflowThreshold,
		AutoNewLine:       cfg.AutoNewLine,
		Holdback:          cfg.Holdback,
	},
		logsources.WithProcessResolver(info),
		logsources.WithProcessWatcher(a.monitor),
		logsources.WithMetrics(m),
	)
	a.monitor.OnEnded(func(pid int) {
		a.ls.ProcessEnded(pid)
		info.Forget(pid)
	})

	if err := a.wireSinks(); err != nil {
		a.Close()
		return nil, err
	}

	built := make([]source.LogSource, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		src, err := BuildSource(a.ls.Timer(), sc, opts.Stdin)
		if err != nil {
			for _, b := range built {
				b.Abort()
			}
			a.Close()
			return nil, err
		}
		built = append(built, src)
	}
	for _, src := range built {
		a.ls.Add(src)
	}
	return a, nil
}

// LogSources is the dispatch loop of the app.
func (a *App) LogSources() *logsources.LogSources {
	return a.ls
}

// Metrics returns the app's collectors.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

func (a *App) wireSinks() error {
	lf, err := a.loadFilter()
	if err != nil {
		return err
	}

	switch a.cfg.Storage {
	case config.StorageVector:
		a.store = newLineStore(storage.NewVectorStorage())
	case config.StorageSnappy:
		a.store = newLineStore(storage.NewSnappyStorage())
	}
	if a.store != nil {
		a.ls.AddSink(a.store)
	}

	if a.opts.QuitMessage != "" {
		a.ls.AddSink(logline.SinkFunc(a.watchQuit))
	}

	var filtered []logline.Sink
	a.console = console.New(a.opts.Stdout, a.opts.Console, lf)
	filtered = append(filtered, a.console)

	if a.cfg.Record != "" {
		f, err := os.OpenFile(a.cfg.Record, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open record file: %w", err)
		}
		a.file = f
		a.record = outputlog.NewOutputLogWriter(f)
		filtered = append(filtered, recordSink{a.record})
	}

	if a.cfg.Listen != "" {
		a.hub = hub.NewHub(a.cfg.ViewerRate, a.metrics)
		filtered = append(filtered, a.hub, &sourcesNotifier{hub: a.hub, ls: a.ls})
	}

	a.ls.AddSink(filter.NewSink(lf, logline.SinkFunc(func(lines logline.Lines) {
		for _, sink := range filtered {
			sink.Consume(lines)
		}
	})))
	return nil
}

// loadFilter merges the filter file with the command line patterns. It returns nil
// when neither is given.
func (a *App) loadFilter() (*filter.LogFilter, error) {
	var lf *filter.LogFilter
	if a.cfg.Filters != "" {
		loaded, err := filter.Load(a.cfg.Filters)
		if err != nil {
			return nil, err
		}
		lf = loaded
	}

	o := a.opts
	if len(o.Include)+len(o.Exclude)+len(o.IncludeProcess)+len(o.ExcludeProcess) == 0 {
		return lf, nil
	}
	cli, err := filter.FromPatterns(o.Include, o.Exclude, o.IncludeProcess, o.ExcludeProcess)
	if err != nil {
		return nil, err
	}
	if lf == nil {
		return cli, nil
	}
	lf.MessageFilters = append(lf.MessageFilters, cli.MessageFilters...)
	lf.ProcessFilters = append(lf.ProcessFilters, cli.ProcessFilters...)
	return lf, nil
}

func (a *App) watchQuit(lines logline.Lines) {
	for _, line := range lines {
		if strings.Contains(line.Message, a.opts.QuitMessage) {
			select {
			case <-a.quit:
			default:
				slog.Info("Quit message received")
				close(a.quit)
			}
			return
		}
	}
}

// Run runs the dispatch loop, the process monitor and, if configured, the HTTP
// server until ctx is done, the quit message arrives or a component fails.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.ls.Run(ctx)
	})
	g.Go(func() error {
		return a.monitor.Run(ctx)
	})
	if a.hub != nil {
		srv := server.New(a.hub, a.ls, a.storeOrNil(), a.metrics)
		srv.SetProcessLister(a.monitor)
		g.Go(func() error {
			return srv.Serve(ctx, a.cfg.Listen)
		})
	}
	g.Go(func() error {
		select {
		case <-a.quit:
			cancel()
		case <-ctx.Done():
		}
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (a *App) storeOrNil() server.LineTail {
	if a.store == nil {
		return nil
	}
	return a.store
}

// Replay dispatches the configured sources until all of them are at end. Sources
// that never end, such as followed files, keep it running until ctx is done.
func (a *App) Replay(ctx context.Context) error {
	defer a.Close()

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()
	for {
		a.ls.Poll()
		if len(a.ls.Sources()) <= 1 {
			// one more cycle delivers the removal notices
			a.ls.Poll()
			return nil
		}
		select {
		case <-ctx.Done():
			a.stopSources()
			return nil
		case <-a.quit:
			a.stopSources()
			return nil
		case <-ticker.C:
		}
	}
}

// stopSources aborts every source but the loopback and runs the cycle that applies it.
func (a *App) stopSources() {
	for _, src := range a.ls.Sources() {
		if src != source.LogSource(a.ls.Loopback()) {
			a.ls.Remove(src)
		}
	}
	a.ls.Poll()
}

// Close releases the record file. It is safe to call more than once.
func (a *App) Close() {
	if a.record != nil {
		a.record.Close()
		a.record = nil
	}
	if a.file != nil {
		if err := a.file.Close(); err != nil {
			slog.Error("Failed to close record file", "error", err)
		}
		a.file = nil
	}
}

// recordSink appends merged lines to a record file.
type recordSink struct {
	w *outputlog.OutputLogIoWriter
}

func (r recordSink) Consume(lines logline.Lines) {
	for _, line := range lines {
		r.w.Write(outputlog.Record{
			PID:       line.PID,
			Process:   line.ProcessName,
			Timestamp: line.SystemTime,
			Time:      line.Time,
			Message:   []byte(line.Message),
		})
	}
}

// sourcesNotifier tells viewers when the set of sources changes.
type sourcesNotifier struct {
	hub  *hub.Hub
	ls   *logsources.LogSources
	last []string
}

func (n *sourcesNotifier) Consume(logline.Lines) {
	current := descriptions(n.ls.Sources())
	if slices.Equal(current, n.last) {
		return
	}
	n.last = current
	n.hub.Broadcast(hub.Event{Type: "sources", Data: current})
}

func descriptions(sources []source.LogSource) []string {
	out := make([]string, len(sources))
	for i, src := range sources {
		out[i] = src.Description()
	}
	return out
}
