package sink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petems/audiotap/internal/audio"
)

type received struct {
	mt   int
	data []byte
}

func newStreamServer(t *testing.T) (*httptest.Server, <-chan received, <-chan string) {
	t.Helper()
	frames := make(chan received, 16)
	paths := make(chan string, 1)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"text":"hello"}`))
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				close(frames)
				return
			}
			frames <- received{mt: mt, data: data}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, frames, paths
}

func next(t *testing.T, frames <-chan received) received {
	t.Helper()
	select {
	case f := <-frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return received{}
	}
}

func TestWebSocketStreamsChunks(t *testing.T) {
	srv, frames, paths := newStreamServer(t)
	base := "ws" + strings.TrimPrefix(srv.URL, "http")

	ws, err := DialWebSocket(context.Background(), base, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, StreamPath, <-paths)

	ws.OnChunk(audio.Chunk{Seq: 1, Data: []byte{1, 2, 3, 4}})
	ws.OnError(audio.NewCaptureError(audio.ErrPermissionDenied, true, "tap revoked"))

	f := next(t, frames)
	assert.Equal(t, websocket.BinaryMessage, f.mt)
	assert.Equal(t, []byte{1, 2, 3, 4}, f.data)

	f = next(t, frames)
	assert.Equal(t, websocket.TextMessage, f.mt)
	var frame errorFrame
	require.NoError(t, json.Unmarshal(f.data, &frame))
	assert.Equal(t, errorFrame{Type: "error", Kind: "permission denied", Message: "tap revoked", Fatal: true}, frame)

	require.NoError(t, ws.Close())
	// Writes after Close are dropped silently.
	ws.OnChunk(audio.Chunk{Seq: 2, Data: []byte{5}})
}

func TestDialWebSocketRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := DialWebSocket(context.Background(), srv.URL, zerolog.Nop())
	assert.Error(t, err)
}

func TestStreamURL(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{in: "ws://localhost:9000", want: "ws://localhost:9000/asr"},
		{in: "ws://localhost:9000/", want: "ws://localhost:9000/asr"},
		{in: "https://asr.example.com/v1", want: "wss://asr.example.com/v1/asr"},
		{in: "ws://localhost:9000/asr", want: "ws://localhost:9000/asr"},
		{in: "ftp://example.com", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := StreamURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
