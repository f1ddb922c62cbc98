// Package relay normalizes channel names so that every spelling of the
// same room lands in the same multicast group.
package relay

import "strings"

// RoomID is a normalized room identifier. Only NormalizeRoom (and the
// GlobalRoom constant) produce values of this type, so an unnormalized
// channel name can never be used as a membership or delivery key.
type RoomID string

// GlobalRoom is the well-known room used for dashboard-wide broadcasts
// (aggregate stats, channel status, the global moderation feed). Clients
// join it through subscribe_global, never through a channel subscribe.
const GlobalRoom RoomID = "*global*"

// NormalizeRoom maps a channel name to its canonical room identifier:
// the whole string lowercased, then a single leading '#' stripped.
// "#SomeChannel", "somechannel", and "SOMECHANNEL" all normalize to
// "somechannel". The function is idempotent.
func NormalizeRoom(name string) RoomID {
	normalized := strings.TrimPrefix(strings.ToLower(name), "#")
	return RoomID(normalized)
}

// normalizeRooms normalizes a list of channel names, dropping entries
// that normalize to the empty string and de-duplicating the result while
// preserving first-seen order.
func normalizeRooms(names []string) []RoomID {
	seen := make(map[RoomID]struct{}, len(names))
	normalized := make([]RoomID, 0, len(names))
	for _, name := range names {
		room := NormalizeRoom(name)
		if room == "" {
			continue
		}
		if _, dup := seen[room]; dup {
			continue
		}
		seen[room] = struct{}{}
		normalized = append(normalized, room)
	}
	return normalized
}

// roomNames converts normalized room ids back to plain strings for
// acknowledgment payloads.
func roomNames(rooms []RoomID) []string {
	names := make([]string, len(rooms))
	for i, room := range rooms {
		names[i] = string(room)
	}
	return names
}
