// Package testhelpers provides shared utilities for exercising the relay
// over real WebSocket connections in integration tests.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AwwCookies/Chatterbox-sub001/internal/relay"
)

// Relay bundles a running relay with its test HTTP server.
type Relay struct {
	Server    *relay.Server
	Hub       *relay.Hub
	Publisher *relay.Publisher
	Counters  *relay.Counters
	HTTP      *httptest.Server
}

// StartRelay boots a relay behind an httptest server with all origins
// allowed, and tears everything down when the test ends.
func StartRelay(t *testing.T, customize func(cfg *relay.Config)) *Relay {
	t.Helper()

	hub := relay.NewHub()
	counters := relay.NewCounters()
	publisher := relay.NewPublisher(hub, counters)

	cfg := relay.DefaultConfig()
	cfg.AllowedOrigins = []string{"*"}
	if customize != nil {
		customize(&cfg)
	}

	server := relay.NewServer(cfg, hub, publisher)
	ts := httptest.NewServer(server.Routes())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { _ = hub.Shutdown(time.Second) })

	return &Relay{Server: server, Hub: hub, Publisher: publisher, Counters: counters, HTTP: ts}
}

// WSURL returns the ws:// address of the relay's upgrade endpoint.
func (r *Relay) WSURL() string {
	return "ws" + strings.TrimPrefix(r.HTTP.URL, "http") + "/ws"
}

// Dial opens a WebSocket connection to the relay, closing it on cleanup.
func (r *Relay) Dial(t *testing.T) *websocket.Conn {
	t.Helper()

	header := http.Header{}
	header.Set("Origin", r.HTTP.URL)

	conn, resp, err := websocket.DefaultDialer.Dial(r.WSURL(), header)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("failed to dial relay: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendFrame writes one named-event frame.
func SendFrame(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()

	var raw json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			t.Fatalf("failed to marshal %s payload: %v", event, err)
		}
		raw = encoded
	}
	if err := conn.WriteJSON(relay.Frame{Event: event, Data: raw}); err != nil {
		t.Fatalf("failed to send %s frame: %v", event, err)
	}
}

// ReadFrame reads the next frame within the timeout.
func ReadFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) relay.Frame {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("failed to set read deadline: %v", err)
	}
	var frame relay.Frame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	return frame
}

// ReadUntilEvent reads frames until one carries the wanted event name,
// skipping unrelated broadcasts (rate ticks, acks) along the way.
func ReadUntilEvent(t *testing.T, conn *websocket.Conn, event string, timeout time.Duration) relay.Frame {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("timed out waiting for %s frame", event)
		}
		frame := ReadFrame(t, conn, remaining)
		if frame.Event == event {
			return frame
		}
	}
}

// ExpectNoFrame asserts that nothing arrives on the connection within the
// window.
func ExpectNoFrame(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(window)); err != nil {
		t.Fatalf("failed to set read deadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no frame, received: %s", raw)
	}
	if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	t.Fatalf("unexpected error while waiting for absence of frame: %v", err)
}

// Eventually polls cond until it holds or the timeout elapses.
func Eventually(t *testing.T, cond func() bool, timeout time.Duration, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
