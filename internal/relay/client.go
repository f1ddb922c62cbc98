// Package relay manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package relay

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// sendQueueSize bounds each client's outbound queue. A client that
	// falls this far behind a fan-out is evicted instead of buffered
	// without limit.
	sendQueueSize = 256

	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	// Pings must arrive inside the pong window.
	pingPeriod = (pongWait * 9) / 10
)

// Client represents one live WebSocket session. The hub's connection
// table is the authoritative owner; rooms hold only membership
// references. The send channel is the connection's ordered outbound
// queue, drained by writePump.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	addr string

	// closed is guarded by the hub's mutex.
	closed bool

	maxMessageSize int64
	limiter        *rateLimiter
	rateLimit      RateLimitConfig
}

// NewClient creates a client for an upgraded connection. The id must be
// unique per session; the hub never reuses or recycles it.
func NewClient(id string, conn *websocket.Conn, hub *Hub, addr string, cfg Config) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, sendQueueSize),
		hub:            hub,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		limiter:        newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
	}
}

// ID returns the connection's opaque session identifier.
func (c *Client) ID() string { return c.id }

// setupReadConnection configures read deadlines and the pong handler.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Warn("error setting read deadline", "id", c.id, "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			slog.Warn("error setting read deadline in pong handler", "id", c.id, "error", err)
		}
		return nil
	})
}

// handleReadError classifies a read failure and reports whether the read
// loop should stop.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		slog.Warn("inbound frame exceeded size limit", "id", c.id, "limit", c.maxMessageSize)
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		slog.Info("client closed connection", "id", c.id, "addr", c.addr)
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		slog.Info("client connection closed", "id", c.id, "addr", c.addr)
		return true
	}

	slog.Warn("websocket read error", "id", c.id, "addr", c.addr, "error", err)
	return true
}

// readPump reads inbound control frames and feeds them to the protocol
// handler until the connection dies. A transport error is an implicit
// disconnect: membership is torn down before the pump exits, so no
// further delivery can reach this connection.
func (c *Client) readPump() {
	defer func() {
		c.hub.Disconnect(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			slog.Warn("error closing connection in readPump", "id", c.id, "error", err)
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				return
			}
			continue
		}

		if c.limiter != nil && !c.limiter.allow() {
			slog.Warn("rate limit exceeded; discarding frame",
				"id", c.id, "burst", c.rateLimit.Burst, "interval", c.rateLimit.RefillInterval)
			continue
		}

		c.handleFrame(raw)
	}
}

// writePump drains the outbound queue onto the socket and keeps the
// connection alive with periodic pings. It exits when the queue is
// closed (disconnect) or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			slog.Warn("error closing connection in writePump", "id", c.id, "error", err)
		}
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				slog.Warn("error setting write deadline", "id", c.id, "error", err)
				return
			}
			if !ok {
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
					slog.Warn("error writing close message", "id", c.id, "error", err)
				}
				return
			}
			if !c.writeFrame(frame) {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeFrame writes one frame plus any frames already queued behind it,
// one WebSocket message each so clients never have to split a read.
func (c *Client) writeFrame(frame []byte) bool {
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		slog.Warn("error writing frame", "id", c.id, "error", err)
		return false
	}

	n := len(c.send)
	for i := 0; i < n; i++ {
		queued, ok := <-c.send
		if !ok {
			return false
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, queued); err != nil {
			slog.Warn("error writing queued frame", "id", c.id, "error", err)
			return false
		}
	}
	return true
}
