package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bissquit/resilio/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWSServer(t *testing.T, hub *Hub, origins []string) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(hub, HandlerConfig{BufferSize: 8, AllowedOrigins: origins}).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestHandler_StreamsFrames(t *testing.T) {
	hub := NewHub(0)
	srv := newWSServer(t, hub, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	hub.Publish(context.Background(), IncidentUpdated(&domain.Incident{ID: "inc-1", Version: 2}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	event, data := decodeFrame(t, raw)
	assert.Equal(t, EventIncidentUpdated, event)
	assert.Equal(t, "inc-1", data["id"])
}

func TestHandler_ClientDisconnectUnsubscribes(t *testing.T) {
	hub := NewHub(0)
	srv := newWSServer(t, hub, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	_ = conn.Close()

	assert.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_RejectsUnknownOrigin(t *testing.T) {
	hub := NewHub(0)
	srv := newWSServer(t, hub, []string{"http://dashboard.local"})

	header := http.Header{"Origin": []string{"http://evil.local"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, hub.Len())
}
