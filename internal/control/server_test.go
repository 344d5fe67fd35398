package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realsaraf/blooom/internal/session"
)

func echoHandler() Handler {
	return HandlerFunc(func(_ context.Context, cmd Command) Result {
		return Result{Result: map[string]string{"echo": cmd.Type}}
	})
}

func startServer(t *testing.T, h Handler, limiter *RateLimiter) (*Server, string) {
	t.Helper()
	srv := NewServer(h, limiter)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func waitClients(t *testing.T, srv *Server, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return srv.Clients() == n }, 5*time.Second, 10*time.Millisecond)
}

func TestServerCommandRoundTrip(t *testing.T) {
	_, url := startServer(t, echoHandler(), nil)
	conn := dial(t, url, nil)

	require.NoError(t, conn.WriteJSON(Command{ID: "1", Type: TypeGetAppVersion}))

	var res Result
	readJSON(t, conn, &res)
	assert.Equal(t, TypeResult, res.Type)
	assert.Equal(t, "1", res.CommandID)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, map[string]any{"echo": TypeGetAppVersion}, res.Result)
}

func TestServerRejectsMalformedCommands(t *testing.T) {
	_, url := startServer(t, echoHandler(), nil)
	conn := dial(t, url, nil)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	var res Result
	readJSON(t, conn, &res)
	assert.Equal(t, StatusError, res.Status)

	require.NoError(t, conn.WriteJSON(Command{Type: TypeGetSession}))
	readJSON(t, conn, &res)
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Error, "id and type")
}

func TestServerOriginCheck(t *testing.T) {
	_, url := startServer(t, echoHandler(), nil)

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	for _, origin := range []string{"http://localhost:5173", "http://127.0.0.1:3000", "file://", "null"} {
		conn := dial(t, url, http.Header{"Origin": {origin}})
		conn.Close()
	}
}

func TestServerRateLimit(t *testing.T) {
	_, url := startServer(t, echoHandler(), NewRateLimiter(2, time.Minute))

	dial(t, url, nil)
	dial(t, url, nil)
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestServerPush(t *testing.T) {
	srv, url := startServer(t, echoHandler(), nil)

	assert.ErrorIs(t, srv.Push(ActionWindowMinimize, nil), ErrNoClients)

	conn := dial(t, url, nil)
	waitClients(t, srv, 1)

	require.NoError(t, srv.Push(ActionOverlayOpen, map[string]int{"width": 800}))
	var p Push
	readJSON(t, conn, &p)
	assert.Equal(t, TypePush, p.Type)
	assert.Equal(t, ActionOverlayOpen, p.Action)
}

func TestServerForwardsEvents(t *testing.T) {
	srv, url := startServer(t, echoHandler(), nil)
	conn := dial(t, url, nil)
	waitClients(t, srv, 1)

	events := make(chan session.Event, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Forward(ctx, events)

	events <- session.Event{Type: session.EventTick, Session: session.Snapshot{ID: "s1", State: session.Recording, ElapsedSeconds: 2}}

	var msg struct {
		Type  string        `json:"type"`
		Event session.Event `json:"event"`
	}
	readJSON(t, conn, &msg)
	assert.Equal(t, TypeEvent, msg.Type)
	assert.Equal(t, session.EventTick, msg.Event.Type)
	assert.Equal(t, 2, msg.Event.Session.ElapsedSeconds)
}

func TestServerCloseDisconnectsClients(t *testing.T) {
	srv, url := startServer(t, echoHandler(), nil)
	conn := dial(t, url, nil)
	waitClients(t, srv, 1)

	srv.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	_, err = srv.Broadcast(map[string]string{"x": "y"})
	assert.ErrorIs(t, err, ErrServerClosed)
}

func TestAllowedOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"null", true},
		{"file:///app/index.html", true},
		{"http://localhost:8080", true},
		{"http://[::1]:8080", true},
		{"http://192.168.1.5", false},
		{"https://example.com", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, allowedOrigin(r), tt.origin)
	}
}
