// Package server exposes the running pipeline over HTTP: live line streams for
// viewers, Prometheus metrics and a status page.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dbgview/internal/hub"
	"dbgview/internal/metrics"
	"dbgview/internal/procinfo"
	"dbgview/internal/source"
	"dbgview/pkg/markdown"
	"github.com/gorilla/websocket"
)

// DefaultTail is the number of stored lines shown on the status page.
const DefaultTail = 50

// SourceLister reports the sources currently attached to the pipeline.
type SourceLister interface {
	Sources() []source.LogSource
}

// LineTail returns the most recent stored lines.
type LineTail interface {
	Tail(n int) []string
	Count() int
}

// ProcessLister returns the pids of the processes seen in the capture.
type ProcessLister interface {
	PIDs() []int
}

type Server struct {
	hub       *hub.Hub
	sources   SourceLister
	store     LineTail
	metrics   *metrics.Metrics
	processes ProcessLister
	started   time.Time
}

// New creates a server. store and m may be nil.
func New(h *hub.Hub, sources SourceLister, store LineTail, m *metrics.Metrics) *Server {
	return &Server{
		hub:     h,
		sources: sources,
		store:   store,
		metrics: m,
		started: time.Now(),
	}
}

// SetProcessLister enables the /processes page.
func (s *Server) SetProcessLister(l ProcessLister) {
	s.processes = l
}

// handlerFunc is the signature of page handlers
type handlerFunc func(context.Context, *http.Request) ([]byte, error)

// httpError carries a status code out of a handlerFunc
type httpError struct {
	statusCode int
	message    string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("%d: %s", e.statusCode, e.message)
}

// wrapHandler adapts a handlerFunc to http.HandlerFunc
func (s *Server) wrapHandler(contentType string, h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := h(r.Context(), r)
		if err != nil {
			var he *httpError
			if errors.As(err, &he) {
				http.Error(w, he.message, he.statusCode)
				return
			}
			slog.Error("HTTP handler error",
				"method", r.Method,
				"path", r.URL.Path,
				"status", http.StatusInternalServerError,
				"error", err.Error())
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(data)
	}
}

// loggingMiddleware logs each HTTP request
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack implements http.Hijacker to support WebSocket upgrades
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("underlying ResponseWriter does not support hijacking")
}

// Flush implements http.Flusher to support streaming
func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.wrapHandler("text/html; charset=utf-8", s.handleIndex))
	mux.HandleFunc("GET /processes", s.wrapHandler("text/html; charset=utf-8", s.handleProcesses))
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /events", s.handleEvents)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	return s.loggingMiddleware(mux)
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "addr", "http://"+addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to serve HTTP: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	return nil
}

func (s *Server) handleIndex(ctx context.Context, r *http.Request) ([]byte, error) {
	tail := DefaultTail
	if v := r.URL.Query().Get("tail"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, &httpError{statusCode: http.StatusBadRequest, message: "invalid tail parameter"}
		}
		tail = n
	}
	return []byte(markdown.RenderPage("dbgview", s.statusMarkdown(tail))), nil
}

func (s *Server) statusMarkdown(tail int) string {
	var b strings.Builder
	b.WriteString("# dbgview\n\n")
	fmt.Fprintf(&b, "- Uptime: %s\n", time.Since(s.started).Truncate(time.Second))
	if rss, err := procinfo.SelfRSS(); err == nil {
		fmt.Fprintf(&b, "- Memory: %.1f MiB\n", float64(rss)/(1<<20))
	}
	if s.hub != nil {
		fmt.Fprintf(&b, "- Viewers: %d\n", s.hub.Len())
	}
	if s.store != nil {
		fmt.Fprintf(&b, "- Stored lines: %d\n", s.store.Count())
	}

	b.WriteString("\n## Sources\n\n")
	b.WriteString("| # | Description | Auto newline |\n|---|---|---|\n")
	for i, src := range s.sources.Sources() {
		auto := "no"
		if src.AutoNewLine() {
			auto = "yes"
		}
		fmt.Fprintf(&b, "| %d | %s | %s |\n", i+1, markdown.EscapeCell(src.Description()), auto)
	}

	if s.store == nil || tail == 0 {
		return b.String()
	}
	b.WriteString("\n## Recent lines\n\n")
	b.WriteString("| Time | PID | Process | Message |\n|---|---|---|---|\n")
	for _, rec := range s.store.Tail(tail) {
		cells := strings.SplitN(rec, "\t", 4)
		for len(cells) < 4 {
			cells = append(cells, "")
		}
		for i := range cells {
			cells[i] = markdown.EscapeCell(cells[i])
		}
		fmt.Fprintf(&b, "| %s |\n", strings.Join(cells, " | "))
	}
	return b.String()
}

func (s *Server) handleProcesses(ctx context.Context, r *http.Request) ([]byte, error) {
	if s.processes == nil {
		return nil, &httpError{statusCode: http.StatusNotFound, message: "process list not available"}
	}

	column := procinfo.SortColumn(r.URL.Query().Get("sort"))
	stats := procinfo.Snapshot(s.processes.PIDs())
	procinfo.SortStats(stats, column)

	var b strings.Builder
	b.WriteString("# Processes\n\n")
	if len(stats) == 0 {
		b.WriteString("No running process has written debug output yet.\n")
		return []byte(markdown.RenderPage("dbgview processes", b.String())), nil
	}
	b.WriteString("| [PID](?sort=pid) | [Name](?sort=name) | [CPU %](?sort=cpu) | [Memory MB](?sort=memory) | Threads | Started | Command |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	for _, st := range stats {
		started := ""
		if !st.CreateTime.IsZero() {
			started = st.CreateTime.Format(time.DateTime)
		}
		fmt.Fprintf(&b, "| %d | %s | %.1f | %.1f | %d | %s | %s |\n",
			st.PID, markdown.EscapeCell(st.Name), st.CPUPercent, st.MemoryMB, st.NumThreads,
			started, markdown.EscapeCell(st.Cmdline))
	}
	return []byte(markdown.RenderPage("dbgview processes", b.String())), nil
}

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 8192,
	CheckOrigin: func(r *http.Request) bool {
		// Only same-origin browsers and clients without an Origin header
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		host := r.Host
		if origin == "http://"+host || origin == "https://"+host {
			return true
		}
		slog.Warn("Rejected WebSocket connection from unauthorized origin", "origin", origin, "host", host)
		return false
	},
}

// handleWebSocket streams line batches as JSON text frames.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade to WebSocket", "error", err)
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("Failed to close WebSocket connection", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	client := s.hub.Register(ctx)
	defer s.hub.Unregister(client.ID)

	// Drain incoming frames so close messages are seen
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev := <-client.Events:
			if err := conn.WriteJSON(ev.Data); err != nil {
				slog.Debug("Failed to write WebSocket message", "error", err, "clientID", client.ID)
				return
			}
		case <-client.Done:
			return
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}

// handleEvents streams line batches as Server-Sent Events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	client := s.hub.Register(ctx)
	defer s.hub.Unregister(client.ID)

	for {
		select {
		case ev := <-client.Events:
			data, err := hub.FormatSSE(ev)
			if err != nil {
				slog.Error("Failed to format SSE event", "error", err)
				continue
			}
			if _, err := w.Write(data); err != nil {
				return
			}
			flusher.Flush()
		case <-client.Done:
			return
		case <-ctx.Done():
			return
		}
	}
}
