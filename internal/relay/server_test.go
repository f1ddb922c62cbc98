package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *Hub) {
	t.Helper()
	hub := NewHub()
	counters := NewCounters()
	return NewServer(DefaultConfig(), hub, NewPublisher(hub, counters)), hub
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "running")
}

func TestStatsEndpoint(t *testing.T) {
	srv, hub := newTestServer(t)

	a := newTestClient(hub, "a")
	b := newTestClient(hub, "b")
	hub.Join(a, "foo")
	hub.Join(b, "foo")
	hub.Join(b, GlobalRoom)

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var stats struct {
		Clients    int            `json:"clients"`
		Rooms      int            `json:"rooms"`
		RoomCounts map[string]int `json:"roomCounts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Clients)
	assert.Equal(t, 2, stats.Rooms)
	assert.Equal(t, 2, stats.RoomCounts["foo"])
	assert.Equal(t, 1, stats.RoomCounts[string(GlobalRoom)])
}

func TestIntrospectionNormalizesRoomName(t *testing.T) {
	srv, hub := newTestServer(t)

	c := newTestClient(hub, "c")
	hub.Join(c, "foo")

	assert.Equal(t, 1, srv.RoomSubscriberCount("#Foo"))
	assert.Equal(t, 1, srv.RoomSubscriberCount("FOO"))
	assert.Equal(t, 0, srv.RoomSubscriberCount("bar"))
	assert.Equal(t, 1, srv.ConnectedClientCount())
}

func TestWebSocketEndpointRejectsBadOrigin(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/ws", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
