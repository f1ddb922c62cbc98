// Package relay implements the real-time fan-out core of the Chatterbox
// dashboard: a WebSocket endpoint that lets each client subscribe to a
// dynamic set of chat channels (plus one global room), an ingestion API
// that external pipelines use to push message, deletion, and moderation
// events into those rooms, and a once-per-second aggregator that turns
// the inbound message stream into messages-per-second broadcasts.
//
// The implementation is organized into focused files for the hub
// (membership + delivery), client pumps, the wire protocol, the event
// publisher, the throughput aggregator, configuration, and the HTTP
// surface to keep the codebase maintainable and testable as it grows.
package relay
