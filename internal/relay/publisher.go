// Package relay exposes the ingestion API that external pipelines use to
// push events into the relay: chat messages, deletions, moderation
// actions, and arbitrary global-room broadcasts.
package relay

import (
	"log/slog"
	"time"
)

// envelope is the body of message, message_deleted, and mod_action
// broadcasts. The timestamp is assigned at broadcast time, so every
// subscriber of the same room-broadcast sees an identical value.
type envelope struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// Publisher is the single entry point for event producers. Every publish
// call is fire-and-forget: it hands the event to each current member's
// outbound queue and returns, reporting nothing back to the producer.
// Events published for the same room from one producer goroutine reach
// every subscriber in publish order.
type Publisher struct {
	hub      *Hub
	counters *Counters
	now      func() time.Time
}

// NewPublisher creates a publisher delivering through the hub and feeding
// the aggregator's counters.
func NewPublisher(hub *Hub, counters *Counters) *Publisher {
	return &Publisher{hub: hub, counters: counters, now: time.Now}
}

// PublishMessage broadcasts a new chat message to the channel's room and
// counts it toward the global and per-room rates. Publishing to a room
// with no subscribers still counts; there is simply nobody to deliver to.
func (p *Publisher) PublishMessage(channel string, payload any) {
	room := NormalizeRoom(channel)
	p.counters.incr(room)
	p.broadcast(room, EventMessage, "message", payload)
}

// PublishMessageDeleted broadcasts a message-deletion notice. Deletions
// are not traffic: the rate counters do not move.
func (p *Publisher) PublishMessageDeleted(channel string, payload any) {
	p.broadcast(NormalizeRoom(channel), EventMessageDeleted, "delete", payload)
}

// PublishModAction broadcasts a moderation action (ban, timeout, delete,
// clear) to the channel's room. Not counted as traffic.
func (p *Publisher) PublishModAction(channel string, payload any) {
	p.broadcast(NormalizeRoom(channel), EventModAction, "mod_action", payload)
}

// PublishGlobal broadcasts producer-supplied fields to the global room
// under a caller-chosen event name, with the delivery timestamp merged
// in. Used for stats_update, channel_status, and global_mod_action.
func (p *Publisher) PublishGlobal(event string, fields map[string]any) {
	merged := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		merged[k] = v
	}
	merged["timestamp"] = p.now().UnixMilli()

	frame, err := EncodeFrame(event, merged)
	if err != nil {
		slog.Error("error encoding global broadcast", "event", event, "error", err)
		return
	}
	p.hub.Deliver(GlobalRoom, frame)
}

// broadcast wraps the payload in the typed envelope and delivers it to
// one room. Encoding failure is logged and the event dropped; nothing
// propagates back to the producer.
func (p *Publisher) broadcast(room RoomID, event, envelopeType string, payload any) {
	if room == "" {
		return
	}

	frame, err := EncodeFrame(event, envelope{
		Type:      envelopeType,
		Data:      payload,
		Timestamp: p.now().UnixMilli(),
	})
	if err != nil {
		slog.Error("error encoding broadcast", "room", room, "event", event, "error", err)
		return
	}
	p.hub.Deliver(room, frame)
}
