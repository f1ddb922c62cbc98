// Package integration exercises the rate aggregator end to end: counted
// publishes flowing out as mps broadcasts over real connections.
package integration

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AwwCookies/Chatterbox-sub001/internal/relay"
	"github.com/AwwCookies/Chatterbox-sub001/test/testhelpers"
)

func startAggregator(t *testing.T, r *testhelpers.Relay, interval time.Duration) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		relay.NewAggregator(r.Hub, r.Counters, interval).Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestRateBroadcastsOverWebSocket(t *testing.T) {
	r := testhelpers.StartRelay(t, nil)

	globalConn := r.Dial(t)
	fooConn := r.Dial(t)

	testhelpers.SendFrame(t, globalConn, "subscribe_global", nil)
	testhelpers.ReadUntilEvent(t, globalConn, "subscribed_global", frameTimeout)
	testhelpers.SendFrame(t, fooConn, "subscribe", map[string]any{"channels": "foo"})
	testhelpers.ReadUntilEvent(t, fooConn, "subscribed", frameTimeout)

	// Publish before the first tick so the counts land in one window.
	for j := 0; j < 5; j++ {
		r.Publisher.PublishMessage("foo", "x")
	}
	for j := 0; j < 3; j++ {
		r.Publisher.PublishMessage("bar", "y")
	}

	startAggregator(t, r, 50*time.Millisecond)

	// The global room sees the totals for every room.
	for {
		frame := testhelpers.ReadUntilEvent(t, globalConn, "mps_update", frameTimeout)
		var update struct {
			MPS        int64            `json:"mps"`
			ChannelMPS map[string]int64 `json:"channelMps"`
			Timestamp  int64            `json:"timestamp"`
		}
		require.NoError(t, json.Unmarshal(frame.Data, &update))
		if update.MPS == 0 {
			// An empty window ticked before our publishes were counted
			// is impossible (they happened first), but a later idle
			// window is fine once we saw the real one.
			continue
		}
		assert.Equal(t, int64(8), update.MPS)
		assert.Equal(t, map[string]int64{"foo": 5, "bar": 3}, update.ChannelMPS)
		assert.NotZero(t, update.Timestamp)
		break
	}

	// The room's own subscribers get just their channel's rate.
	frame := testhelpers.ReadUntilEvent(t, fooConn, "channel_mps", frameTimeout)
	var rate struct {
		Channel   string `json:"channel"`
		MPS       int64  `json:"mps"`
		Timestamp int64  `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(frame.Data, &rate))
	assert.Equal(t, "foo", rate.Channel)
	assert.Equal(t, int64(5), rate.MPS)
}

func TestIdleWindowsReportZeroGlobally(t *testing.T) {
	r := testhelpers.StartRelay(t, nil)

	globalConn := r.Dial(t)
	testhelpers.SendFrame(t, globalConn, "subscribe_global", nil)
	testhelpers.ReadUntilEvent(t, globalConn, "subscribed_global", frameTimeout)

	startAggregator(t, r, 50*time.Millisecond)

	frame := testhelpers.ReadUntilEvent(t, globalConn, "mps_update", frameTimeout)
	var update struct {
		MPS        int64            `json:"mps"`
		ChannelMPS map[string]int64 `json:"channelMps"`
	}
	require.NoError(t, json.Unmarshal(frame.Data, &update))
	assert.Zero(t, update.MPS)
	assert.Empty(t, update.ChannelMPS)
}
