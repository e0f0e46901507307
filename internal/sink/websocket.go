package sink

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/petems/audiotap/internal/audio"
)

const (
	// StreamPath is appended to the stream URL.
	StreamPath = "/asr"

	writeTimeout = 5 * time.Second
	closeTimeout = time.Second
)

// errorFrame is sent as a text message when capture reports an error.
type errorFrame struct {
	Type    string `json:"type"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Fatal   bool   `json:"fatal"`
}

// WebSocket streams chunks as binary messages. Text messages from the server,
// such as transcripts, are logged.
type WebSocket struct {
	conn *websocket.Conn
	log  zerolog.Logger

	writeMu sync.Mutex
	failed  bool
	done    chan struct{}
}

// StreamURL appends StreamPath to base unless it already ends with it.
func StreamURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid stream URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid stream URL %q: scheme must be ws or wss", base)
	}
	if !strings.HasSuffix(u.Path, StreamPath) {
		u.Path = strings.TrimRight(u.Path, "/") + StreamPath
	}
	return u.String(), nil
}

// DialWebSocket connects to the streaming endpoint under base.
func DialWebSocket(ctx context.Context, base string, log zerolog.Logger) (*WebSocket, error) {
	target, err := StreamURL(base)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", target, err)
	}

	ws := &WebSocket{
		conn: conn,
		log:  log.With().Str("sink", "websocket").Str("url", target).Logger(),
		done: make(chan struct{}),
	}
	go ws.readLoop()
	ws.log.Info().Msg("Connected to stream endpoint")
	return ws, nil
}

func (w *WebSocket) readLoop() {
	defer close(w.done)
	for {
		mt, msg, err := w.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				w.log.Debug().Err(err).Msg("Stream reader stopped")
			}
			return
		}
		if mt == websocket.TextMessage {
			w.log.Info().Str("message", string(msg)).Msg("Server message")
		}
	}
}

func (w *WebSocket) OnChunk(c audio.Chunk) {
	w.write(func() error {
		return w.conn.WriteMessage(websocket.BinaryMessage, c.Data)
	})
}

func (w *WebSocket) OnError(err *audio.CaptureError) {
	logCaptureError(w.log, err)

	frame := errorFrame{Type: "error", Message: err.Message, Fatal: err.Fatal}
	if err.Kind != nil {
		frame.Kind = err.Kind.Error()
	}
	w.write(func() error { return w.conn.WriteJSON(frame) })
}

func (w *WebSocket) write(send func() error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if w.failed {
		return
	}
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := send(); err != nil {
		w.failed = true
		w.log.Error().Err(err).Msg("Stream write failed, discarding further audio")
	}
}

// Close sends a close frame and waits briefly for the server to acknowledge.
func (w *WebSocket) Close() error {
	w.writeMu.Lock()
	if !w.failed {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "capture stopped")
		_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeTimeout))
	}
	w.failed = true
	w.writeMu.Unlock()

	select {
	case <-w.done:
	case <-time.After(closeTimeout):
	}
	return w.conn.Close()
}
