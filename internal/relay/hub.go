// Package relay coordinates connection registration, room membership, and
// event fan-out for the Chatterbox relay via the Hub type.
package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Hub is the single owner of the relay's shared mutable state: the
// connection registry (id → client, id → joined rooms) and the room
// multicast groups (room → member set). Both views are mutated under one
// mutex so they can never disagree; a disconnect removes a connection
// from every room and from the registry as one operation.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]*Client
	rooms      map[RoomID]map[*Client]struct{}
	membership map[string]map[RoomID]struct{}

	wg sync.WaitGroup
}

// NewHub creates an empty hub ready to accept connections.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[RoomID]map[*Client]struct{}),
		membership: make(map[string]map[RoomID]struct{}),
	}
}

// Register adds a fresh connection to the registry with empty membership.
// The caller guarantees the connection id has not been seen before.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	c.closed = false
	h.clients[c.id] = c
	h.membership[c.id] = make(map[RoomID]struct{})
	total := len(h.clients)
	h.mu.Unlock()

	slog.Info("client connected", "id", c.id, "addr", c.addr, "clients", total)
}

// Disconnect removes the connection from every room it joined and then
// from the registry, as one atomic operation. It is the only path out of
// the hub: transport errors, slow-client eviction, and graceful client
// closes all land here. Safe to call more than once for the same client.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	if _, known := h.clients[c.id]; !known {
		h.mu.Unlock()
		return
	}
	for room := range h.membership[c.id] {
		h.removeMemberLocked(room, c)
	}
	delete(h.membership, c.id)
	delete(h.clients, c.id)
	c.closed = true
	total := len(h.clients)
	h.mu.Unlock()

	close(c.send)
	slog.Info("client disconnected", "id", c.id, "addr", c.addr, "clients", total)
}

// Join adds the connection to a room's member set, materializing the room
// on first join, and records the room in the registry's membership view.
// Joining a room twice is a no-op. The roomId must already be normalized.
func (h *Hub) Join(c *Client, room RoomID) {
	if room == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	joined, known := h.membership[c.id]
	if !known {
		// Register is guaranteed to happen first; tolerate the
		// violation in production rather than crash the relay.
		slog.Warn("join for unknown connection", "id", c.id, "room", room)
		return
	}
	if _, already := joined[room]; already {
		return
	}
	joined[room] = struct{}{}

	members, exists := h.rooms[room]
	if !exists {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
}

// Leave removes the connection from a room's member set and from the
// registry's membership view. Leaving a room the connection never joined
// is a no-op.
func (h *Hub) Leave(c *Client, room RoomID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	joined, known := h.membership[c.id]
	if !known {
		slog.Warn("leave for unknown connection", "id", c.id, "room", room)
		return
	}
	if _, member := joined[room]; !member {
		return
	}
	delete(joined, room)
	h.removeMemberLocked(room, c)
}

// LeaveAll removes the connection from every room it belongs to. Driven
// by the registry's membership set, so the cost is proportional to the
// rooms this connection joined, not to all rooms.
func (h *Hub) LeaveAll(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	joined, known := h.membership[c.id]
	if !known {
		return
	}
	for room := range joined {
		h.removeMemberLocked(room, c)
	}
	h.membership[c.id] = make(map[RoomID]struct{})
}

// removeMemberLocked drops c from a room's member set and garbage-collects
// the room when it empties. Caller holds h.mu.
func (h *Hub) removeMemberLocked(room RoomID, c *Client) {
	members, exists := h.rooms[room]
	if !exists {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// MemberCount returns the current member count of a room, 0 if the room
// has never been joined or has emptied. The roomId must be normalized.
func (h *Hub) MemberCount(room RoomID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// RoomCounts returns a snapshot of every materialized room and its member
// count, for the stats endpoint.
func (h *Hub) RoomCounts() map[RoomID]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	counts := make(map[RoomID]int, len(h.rooms))
	for room, members := range h.rooms {
		counts[room] = len(members)
	}
	return counts
}

// ActiveRooms returns the identifiers of all currently materialized rooms.
func (h *Hub) ActiveRooms() []RoomID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms := make([]RoomID, 0, len(h.rooms))
	for room := range h.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// Deliver sends an already-encoded frame to every current member of the
// room. The member set is snapshotted under the read lock and the sends
// happen outside it, so membership mutation is never blocked for the
// duration of a fan-out. A client whose outbound queue is full is evicted
// rather than allowed to stall the rest of the room.
func (h *Hub) Deliver(room RoomID, frame []byte) {
	h.mu.RLock()
	members, exists := h.rooms[room]
	if !exists {
		h.mu.RUnlock()
		return
	}
	snapshot := make([]*Client, 0, len(members))
	for c := range members {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	var evicted []*Client
	for _, c := range snapshot {
		if !h.trySend(c, frame) {
			evicted = append(evicted, c)
		}
	}
	for _, c := range evicted {
		slog.Warn("evicting slow client", "id", c.id, "addr", c.addr, "room", room)
		h.Disconnect(c)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	}
}

// trySend enqueues a frame on the client's outbound queue without
// blocking. Disconnect marks the client closed under the write lock
// before closing the channel, so a send that passes the registered and
// closed checks under the read lock cannot race the close; the recover
// is a backstop.
func (h *Hub) trySend(c *Client, frame []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("recovered from send on closed client", "id", c.id, "panic", r)
		}
	}()

	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, registered := h.clients[c.id]; !registered || c.closed {
		return false
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// startPumps launches the client's read and write goroutines, tracked so
// Shutdown can wait for them to drain.
func (h *Hub) startPumps(c *Client) {
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()
}

// Shutdown closes every live connection and waits for all pump goroutines
// to finish, or gives up when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if c.conn != nil {
			if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
				slog.Warn("error closing client connection", "id", c.id, "error", err)
			}
		}
	}
	slog.Info("closed client connections", "count", len(clients))

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		slog.Warn("hub shutdown timeout reached")
		return context.DeadlineExceeded
	}
}
