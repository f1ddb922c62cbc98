// Package relay derives the live messages-per-second signal from the
// inbound event stream: lock-cheap counters incremented on every chat
// message, snapshotted and reset once per tick by the Aggregator.
package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Counters accumulates message counts since the last tick. Increments
// must never block event ingestion, and the per-tick read-and-reset must
// be atomic with respect to concurrent increments: the global counter is
// swapped with its zero value and the room map is replaced wholesale
// under the same mutex the increments take, so no count is lost or seen
// twice across a tick boundary.
type Counters struct {
	mu      sync.Mutex
	global  int64
	perRoom map[RoomID]int64
}

// NewCounters creates an empty counter set.
func NewCounters() *Counters {
	return &Counters{perRoom: make(map[RoomID]int64)}
}

// incr records one chat message. The room may be empty for global-only
// traffic, in which case only the global counter moves.
func (t *Counters) incr(room RoomID) {
	t.mu.Lock()
	t.global++
	if room != "" {
		t.perRoom[room]++
	}
	t.mu.Unlock()
}

// snapshot returns the counts accumulated since the previous snapshot and
// resets both counters to zero in the same critical section.
func (t *Counters) snapshot() (global int64, perRoom map[RoomID]int64) {
	t.mu.Lock()
	global = t.global
	perRoom = t.perRoom
	t.global = 0
	t.perRoom = make(map[RoomID]int64)
	t.mu.Unlock()
	return global, perRoom
}

// mpsUpdate is the global room's per-tick rate broadcast.
type mpsUpdate struct {
	MPS        int64            `json:"mps"`
	ChannelMPS map[RoomID]int64 `json:"channelMps"`
	Timestamp  int64            `json:"timestamp"`
}

// channelMPS is a single room's per-tick rate broadcast, delivered only
// to that room's subscribers.
type channelMPS struct {
	Channel   RoomID `json:"channel"`
	MPS       int64  `json:"mps"`
	Timestamp int64  `json:"timestamp"`
}

// Aggregator owns the recurring tick that converts counter state into
// rate broadcasts. It is constructed once at startup and runs until its
// context is cancelled, so tests can drive it with a short interval and
// stop it deterministically.
type Aggregator struct {
	hub      *Hub
	counters *Counters
	interval time.Duration
}

// NewAggregator creates an aggregator broadcasting through the hub every
// interval. A zero or negative interval falls back to one second.
func NewAggregator(hub *Hub, counters *Counters, interval time.Duration) *Aggregator {
	if interval <= 0 {
		interval = time.Second
	}
	return &Aggregator{hub: hub, counters: counters, interval: interval}
}

// Run ticks until ctx is cancelled. Counters are snapshotted and reset
// before any broadcast work, so a slow fan-out never delays the next
// window's counting. This method blocks; call it in its own goroutine.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	slog.Info("aggregator started", "interval", a.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("aggregator stopped")
			return
		case <-ticker.C:
			a.tick(time.Now())
		}
	}
}

// tick snapshots the counters and emits one global mps_update plus one
// channel_mps broadcast for each room that saw traffic this window. A
// failure emitting for one room must not affect the others or the next
// tick, so each emit is isolated.
func (a *Aggregator) tick(now time.Time) {
	global, perRoom := a.counters.snapshot()
	ts := now.UnixMilli()

	a.emit(GlobalRoom, EventMPSUpdate, mpsUpdate{
		MPS:        global,
		ChannelMPS: perRoom,
		Timestamp:  ts,
	})

	for room, count := range perRoom {
		a.emit(room, EventChannelMPS, channelMPS{
			Channel:   room,
			MPS:       count,
			Timestamp: ts,
		})
	}
}

// emit encodes and delivers one rate broadcast, containing any panic so
// the tick always completes.
func (a *Aggregator) emit(room RoomID, event string, payload any) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("recovered from panic in rate broadcast", "room", room, "panic", r)
		}
	}()

	frame, err := EncodeFrame(event, payload)
	if err != nil {
		slog.Error("error encoding rate broadcast", "room", room, "error", err)
		return
	}
	a.hub.Deliver(room, frame)
}
