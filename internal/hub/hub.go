// Package hub fans dispatched lines out to live viewers connected over websocket or
// Server-Sent Events.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dbgview/internal/logline"
	"dbgview/internal/metrics"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	// DefaultRate is the number of batches per second sent to one client.
	DefaultRate = 10

	// MaxPending bounds the lines queued for a slow client; the oldest are dropped.
	MaxPending = 10000

	eventBuffer = 16
)

// LineView is the JSON form of a line sent to viewers.
type LineView struct {
	Time       float64   `json:"time"`
	SystemTime time.Time `json:"systemTime"`
	PID        int       `json:"pid"`
	Process    string    `json:"process"`
	Message    string    `json:"message"`
}

func NewLineView(line logline.Line) LineView {
	return LineView{
		Time:       line.Time,
		SystemTime: line.SystemTime,
		PID:        line.PID,
		Process:    line.ProcessName,
		Message:    line.Message,
	}
}

// Event represents an event sent to clients
type Event struct {
	Type string      // "lines" or "sources"
	Data interface{} // JSON encoded when sent
}

// Client is one connected viewer. Its pump goroutine sends at most one batch per rate
// interval on Events.
type Client struct {
	ID     string
	Events chan Event
	Done   chan struct{}

	limiter   *rate.Limiter
	wake      chan struct{}
	mu        sync.Mutex
	pending   []LineView
	closeOnce sync.Once
}

// Hub manages viewer connections. It is a pipeline sink.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rate    rate.Limit
	metrics *metrics.Metrics
}

// NewHub creates a hub sending at most perSecond batches per second to each client.
func NewHub(perSecond float64, m *metrics.Metrics) *Hub {
	if perSecond <= 0 {
		perSecond = DefaultRate
	}
	return &Hub{
		clients: make(map[string]*Client),
		rate:    rate.Limit(perSecond),
		metrics: m,
	}
}

// Register adds a client and starts its pump. The pump stops when ctx is done or the
// client is unregistered.
func (h *Hub) Register(ctx context.Context) *Client {
	client := &Client{
		ID:      uuid.NewString(),
		Events:  make(chan Event, eventBuffer),
		Done:    make(chan struct{}),
		limiter: rate.NewLimiter(h.rate, 1),
		wake:    make(chan struct{}, 1),
	}

	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()
	slog.Info("Viewer registered", "clientID", client.ID)

	go h.pump(ctx, client)
	return client
}

// Unregister removes a client and closes its Done channel.
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	client, ok := h.clients[clientID]
	delete(h.clients, clientID)
	h.mu.Unlock()

	if ok {
		client.closeOnce.Do(func() { close(client.Done) })
		slog.Info("Viewer unregistered", "clientID", clientID)
	}
}

// Len is the number of registered clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Consume queues lines for every client without blocking the dispatch loop.
func (h *Hub) Consume(lines logline.Lines) {
	if len(lines) == 0 {
		return
	}
	views := make([]LineView, len(lines))
	for i, line := range lines {
		views[i] = NewLineView(line)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		dropped := client.enqueue(views)
		if dropped > 0 {
			h.metrics.HubDropped(dropped)
			slog.Warn("Viewer too slow, dropping lines", "clientID", client.ID, "dropped", dropped)
		}
	}
}

// Broadcast sends an event to every client, skipping clients whose channel is full.
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.Events <- event:
		case <-client.Done:
		default:
			slog.Warn("Viewer channel full, dropping event", "clientID", client.ID, "type", event.Type)
		}
	}
}

func (c *Client) enqueue(views []LineView) int {
	c.mu.Lock()
	c.pending = append(c.pending, views...)
	dropped := 0
	if len(c.pending) > MaxPending {
		dropped = len(c.pending) - MaxPending
		c.pending = append([]LineView(nil), c.pending[dropped:]...)
	}
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return dropped
}

func (c *Client) take() []LineView {
	c.mu.Lock()
	defer c.mu.Unlock()
	batch := c.pending
	c.pending = nil
	return batch
}

func (h *Hub) pump(ctx context.Context, c *Client) {
	defer h.Unregister(c.ID)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.Done:
			return
		case <-c.wake:
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return
		}
		batch := c.take()
		if len(batch) == 0 {
			continue
		}

		select {
		case c.Events <- Event{Type: "lines", Data: batch}:
		case <-c.Done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// FormatSSE formats an event for Server-Sent Events protocol
func FormatSSE(event Event) ([]byte, error) {
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}

	// event: <type>\ndata: <json>\n\n
	output := fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, string(dataJSON))
	return []byte(output), nil
}
