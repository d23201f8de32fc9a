package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"dbgview/internal/logline"
	"github.com/gorilla/websocket"
)

// ForwardedMessage is the JSON frame a forwarder sends. Frames that do not decode are
// taken as plain text.
type ForwardedMessage struct {
	PID     int    `json:"pid"`
	Process string `json:"process"`
	Message string `json:"message"`
}

// WebSocketReader receives messages from a remote forwarder. A broken connection ends
// the source.
type WebSocketReader struct {
	Base
	conn      *websocket.Conn
	host      string
	closeOnce sync.Once
}

var _ LogSource = &WebSocketReader{}

func NewWebSocketReader(timer *logline.Timer, rawURL string) (*WebSocketReader, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse websocket url: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", u.Redacted(), err)
	}

	w := &WebSocketReader{conn: conn, host: u.Host}
	w.init(timer, "WebSocket "+u.Redacted(), w)
	go w.receive()
	return w, nil
}

func (w *WebSocketReader) receive() {
	defer w.finish()
	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) && !w.AtEnd() {
				slog.Warn("WebSocket receive failed", "source", w.Description(), "error", err)
			}
			return
		}

		var msg ForwardedMessage
		if err := json.Unmarshal(data, &msg); err == nil && (msg.Message != "" || msg.Process != "" || msg.PID != 0) {
			w.Add(msg.PID, msg.Process, msg.Message)
			continue
		}
		w.Add(0, "[WS "+w.host+"]", string(data))
	}
}

func (w *WebSocketReader) Abort() {
	w.Base.Abort()
	w.closeOnce.Do(func() {
		_ = w.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = w.conn.Close()
	})
}
