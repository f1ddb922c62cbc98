// Package relay defines the wire protocol: the framed named-event
// envelope exchanged with clients and the inbound control handlers.
package relay

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Inbound control events.
const (
	eventSubscribe         = "subscribe"
	eventUnsubscribe       = "unsubscribe"
	eventSubscribeGlobal   = "subscribe_global"
	eventUnsubscribeGlobal = "unsubscribe_global"
	eventPing              = "ping"
)

// Outbound acknowledgment events.
const (
	eventSubscribed       = "subscribed"
	eventUnsubscribed     = "unsubscribed"
	eventSubscribedGlobal = "subscribed_global"
	eventPong             = "pong"
	eventError            = "error"
)

// Broadcast events.
const (
	EventMessage        = "message"
	EventMessageDeleted = "message_deleted"
	EventModAction      = "mod_action"
	EventChannelMPS     = "channel_mps"
	EventMPSUpdate      = "mps_update"
)

// Frame is the envelope for every message in either direction: a named
// event with a JSON payload.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EncodeFrame marshals a named event and its payload into one wire frame.
func EncodeFrame(event string, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", event, err)
		}
		raw = encoded
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}

// channelList accepts the subscribe payload's channels field as either a
// single string or an array of strings.
type channelList []string

func (l *channelList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = channelList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("channels must be a string or an array of strings")
	}
	*l = channelList(many)
	return nil
}

// subscribePayload is the body of subscribe and unsubscribe frames.
type subscribePayload struct {
	Channels channelList `json:"channels"`
}

// ackPayload echoes the normalized channel list back to the client.
type ackPayload struct {
	Channels []string `json:"channels"`
}

// errorPayload is sent to a single client after a malformed frame. The
// connection and its subscriptions are left untouched.
type errorPayload struct {
	Message string `json:"message"`
}

// handleFrame dispatches one inbound control frame. Malformed input gets
// an error acknowledgment to this connection only; it never tears down
// state or propagates to other connections.
func (c *Client) handleFrame(raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		slog.Warn("malformed frame", "id", c.id, "error", err)
		c.reply(eventError, errorPayload{Message: "malformed frame"})
		return
	}

	switch frame.Event {
	case eventSubscribe:
		c.handleSubscribe(frame.Data, true)
	case eventUnsubscribe:
		c.handleSubscribe(frame.Data, false)
	case eventSubscribeGlobal:
		c.hub.Join(c, GlobalRoom)
		c.reply(eventSubscribedGlobal, nil)
	case eventUnsubscribeGlobal:
		c.hub.Leave(c, GlobalRoom)
	case eventPing:
		c.reply(eventPong, nil)
	default:
		slog.Debug("unknown event", "id", c.id, "event", frame.Event)
		c.reply(eventError, errorPayload{Message: "unknown event: " + frame.Event})
	}
}

// handleSubscribe joins or leaves the normalized channel list and
// acknowledges with the normalized names.
func (c *Client) handleSubscribe(data json.RawMessage, join bool) {
	var payload subscribePayload
	if err := json.Unmarshal(data, &payload); err != nil || len(payload.Channels) == 0 {
		slog.Warn("invalid subscribe payload", "id", c.id, "error", err)
		c.reply(eventError, errorPayload{Message: "invalid channels payload"})
		return
	}

	rooms := normalizeRooms(payload.Channels)
	for _, room := range rooms {
		if join {
			c.hub.Join(c, room)
		} else {
			c.hub.Leave(c, room)
		}
	}

	ack := eventSubscribed
	if !join {
		ack = eventUnsubscribed
	}
	c.reply(ack, ackPayload{Channels: roomNames(rooms)})
}

// reply enqueues an acknowledgment frame for this connection alone.
func (c *Client) reply(event string, data any) {
	frame, err := EncodeFrame(event, data)
	if err != nil {
		slog.Error("error encoding reply", "id", c.id, "event", event, "error", err)
		return
	}
	c.hub.trySend(c, frame)
}
