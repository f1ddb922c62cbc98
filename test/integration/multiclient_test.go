// Package integration contains multi-client scenarios: shared-room
// fan-out and disconnect cleanup.
package integration

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AwwCookies/Chatterbox-sub001/test/testhelpers"
)

func TestAllRoomMembersReceiveBroadcast(t *testing.T) {
	r := testhelpers.StartRelay(t, nil)

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conn := r.Dial(t)
		testhelpers.SendFrame(t, conn, "subscribe", map[string]any{"channels": "shared"})
		testhelpers.ReadUntilEvent(t, conn, "subscribed", frameTimeout)
		conns[i] = conn
	}

	r.Publisher.PublishMessage("shared", map[string]string{"text": "everyone"})

	var stamps []int64
	for _, conn := range conns {
		frame := testhelpers.ReadUntilEvent(t, conn, "message", frameTimeout)
		var env struct {
			Data      map[string]string `json:"data"`
			Timestamp int64             `json:"timestamp"`
		}
		require.NoError(t, json.Unmarshal(frame.Data, &env))
		assert.Equal(t, "everyone", env.Data["text"])
		stamps = append(stamps, env.Timestamp)
	}

	// One broadcast, one timestamp, for every subscriber.
	assert.Equal(t, stamps[0], stamps[1])
	assert.Equal(t, stamps[1], stamps[2])
}

func TestDisconnectRemovesSubscriptions(t *testing.T) {
	r := testhelpers.StartRelay(t, nil)

	conn := r.Dial(t)
	testhelpers.SendFrame(t, conn, "subscribe", map[string]any{"channels": "foo"})
	testhelpers.ReadUntilEvent(t, conn, "subscribed", frameTimeout)

	require.Equal(t, 1, r.Server.RoomSubscriberCount("foo"))
	require.Equal(t, 1, r.Server.ConnectedClientCount())

	require.NoError(t, conn.Close())

	testhelpers.Eventually(t, func() bool {
		return r.Server.RoomSubscriberCount("foo") == 0 && r.Server.ConnectedClientCount() == 0
	}, 2*time.Second, "disconnect did not clean up membership")

	// Publishing afterwards must not panic or deliver anywhere.
	r.Publisher.PublishMessage("foo", "into the void")
}

func TestSurvivorUnaffectedByPeerDisconnect(t *testing.T) {
	r := testhelpers.StartRelay(t, nil)

	leaver := r.Dial(t)
	stayer := r.Dial(t)

	testhelpers.SendFrame(t, leaver, "subscribe", map[string]any{"channels": "foo"})
	testhelpers.ReadUntilEvent(t, leaver, "subscribed", frameTimeout)
	testhelpers.SendFrame(t, stayer, "subscribe", map[string]any{"channels": "foo"})
	testhelpers.ReadUntilEvent(t, stayer, "subscribed", frameTimeout)

	require.NoError(t, leaver.Close())
	testhelpers.Eventually(t, func() bool {
		return r.Server.RoomSubscriberCount("foo") == 1
	}, 2*time.Second, "leaver still counted in room")

	r.Publisher.PublishMessage("foo", "for the survivor")
	testhelpers.ReadUntilEvent(t, stayer, "message", frameTimeout)
}
