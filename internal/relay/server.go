// Package relay wires the hub, publisher, and aggregator behind an HTTP
// surface: the WebSocket upgrade endpoint plus health and stats routes.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Server owns the relay's network surface. It translates WebSocket
// upgrades into hub registrations and exposes read-only introspection
// for the admin/metrics collaborators.
type Server struct {
	cfg       Config
	hub       *Hub
	publisher *Publisher
	upgrader  websocket.Upgrader
}

// NewServer assembles a server around an existing hub and publisher. The
// shared fan-out state lives in the hub; the server holds only handles.
func NewServer(cfg Config, hub *Hub, publisher *Publisher) *Server {
	checker := newOriginChecker(cfg.AllowedOrigins)
	return &Server{
		cfg:       cfg,
		hub:       hub,
		publisher: publisher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checker.check,
		},
	}
}

// Publisher returns the ingestion API handle for external producers.
func (s *Server) Publisher() *Publisher { return s.publisher }

// ConnectedClientCount returns the number of live connections.
func (s *Server) ConnectedClientCount() int { return s.hub.ClientCount() }

// RoomSubscriberCount returns the member count for a room, accepting any
// spelling of the channel name.
func (s *Server) RoomSubscriberCount(room string) int {
	return s.hub.MemberCount(NormalizeRoom(room))
}

// Routes returns the relay's HTTP routes.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/ws", s.handleWebSocket)
	r.Get("/healthz", s.handleHealth)
	r.Get("/stats", s.handleStats)
	return r
}

// handleWebSocket upgrades the connection, registers it with the hub, and
// starts its pumps. Every session gets a fresh opaque id.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(uuid.New().String(), conn, s.hub, r.RemoteAddr, s.cfg)
	s.hub.Register(client)
	s.hub.startPumps(client)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("chatterbox relay is running\n"))
}

// handleStats serves the introspection snapshot consumed by the admin
// dashboard's metrics poller.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	counts := s.hub.RoomCounts()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"clients":    s.hub.ClientCount(),
		"rooms":      len(counts),
		"roomCounts": counts,
	}); err != nil {
		slog.Warn("error writing stats response", "error", err)
	}
}

// NewHTTPServer creates the http.Server with production timeouts. Read
// and write timeouts stay unset because WebSocket connections are
// long-lived; the handshake is covered by ReadHeaderTimeout.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// ShutdownHTTPServer gracefully shuts down the HTTP listener, waiting for
// in-flight requests up to the timeout.
func ShutdownHTTPServer(server *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Warn("http server shutdown error", "error", err)
		return err
	}
	slog.Info("http server shutdown completed")
	return nil
}
