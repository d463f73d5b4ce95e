package websocket

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valuepulse/internal/config"
)

type fakeConn struct {
	mu      sync.Mutex
	written [][]byte
	closed  bool
	reads   chan []byte
}

func newFakeConn() *fakeConn { return &fakeConn{reads: make(chan []byte)} }

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("closed")
	}
	if messageType == websocket.TextMessage {
		f.written = append(f.written, append([]byte(nil), data...))
	}
	return nil
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	b, ok := <-f.reads
	if !ok {
		return 0, nil, errors.New("closed")
	}
	return websocket.TextMessage, b, nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetReadLimit(int64)                {}
func (f *fakeConn) SetPongHandler(func(string) error) {}
func (f *fakeConn) RemoteAddr() string                { return "127.0.0.1:5000" }

func (f *fakeConn) messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Message, 0, len(f.written))
	for _, b := range f.written {
		var m Message
		if json.Unmarshal(b, &m) == nil {
			out = append(out, m)
		}
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
}

func TestHub_BroadcastToClients(t *testing.T) {
	hub := NewHub(quietLogger())
	hub.Start()
	defer hub.Stop()

	conn := newFakeConn()
	client := NewClient(hub, conn, "trace-1")
	client.Serve()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.BroadcastUpdate("operation:snapshot", "op-1", "running", map[string]any{"operation_id": "op-1"})
	hub.BroadcastRefresh("pipeline", []string{"predictions"})
	hub.BroadcastError("execution", "op-1: boom", "clean-fbref", false)

	require.Eventually(t, func() bool { return len(conn.messages()) == 4 }, time.Second, 5*time.Millisecond)
	msgs := conn.messages()

	assert.Equal(t, TypeConnection, msgs[0].Type)
	assert.Equal(t, "trace-1", msgs[0].TraceID)

	assert.Equal(t, "operation:snapshot", msgs[1].Type)
	assert.Empty(t, msgs[1].Subtype, "snapshots carry no subtype")
	assert.Equal(t, "op-1", msgs[1].Data.(map[string]any)["operation_id"])

	assert.Equal(t, TypeDataUpdate, msgs[2].Type)
	assert.Equal(t, ActionRefresh, msgs[2].Action)

	assert.Equal(t, TypeError, msgs[3].Type)
	assert.Equal(t, "clean-fbref", msgs[3].Data.(map[string]any)["step"])
	assert.Equal(t, false, msgs[3].Data.(map[string]any)["recoverable"])

	close(conn.reads)
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, hub.Stats()["total_connections"])
}

func TestHub_StoppedHubDropsMessages(t *testing.T) {
	hub := NewHub(quietLogger())
	hub.Start()
	hub.Stop()
	hub.Stop()

	done := make(chan struct{})
	go func() {
		hub.BroadcastUpdate("operation:snapshot", "op", "completed", nil)
		assert.False(t, hub.Register(NewClient(hub, newFakeConn(), "")))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub blocked after stop")
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header", nil, "", true},
		{"same host", nil, "http://example.test", true},
		{"other host", nil, "http://evil.test", false},
		{"listed", []string{"http://ui.test"}, "http://ui.test", true},
		{"not listed", []string{"http://ui.test"}, "http://example.test", false},
		{"wildcard", []string{"*"}, "http://evil.test", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "http://example.test/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, originChecker(tt.allowed)(r))
		})
	}
}

func TestHandler_ServesSnapshots(t *testing.T) {
	hub := NewHub(quietLogger())
	hub.Start()
	defer hub.Stop()

	srv := httptest.NewServer(NewHandler(hub, config.WebSocketConfig{ReadBufferSize: 1024, WriteBufferSize: 1024}, nil))
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer ws.Close()

	var hello Message
	require.NoError(t, ws.ReadJSON(&hello))
	assert.Equal(t, TypeConnection, hello.Type)

	hub.BroadcastUpdate("operation:snapshot", "op-9", "completed", map[string]string{"status": "completed"})
	var snap Message
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, ws.ReadJSON(&snap))
	assert.Equal(t, "operation:snapshot", snap.Type)
}
