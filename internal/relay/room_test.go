package relay

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herizador/Proxy-Audio-share/internal/events"
	"github.com/herizador/Proxy-Audio-share/internal/protocol"
)

// Scenario A: host and two guests share a room until everyone leaves
func TestRoomLifecycle(t *testing.T) {
	env := newTestEnv(t)

	host := newMockConn("host")
	g1 := newMockConn("g1")
	g2 := newMockConn("g2")
	hs := env.attach(t, host, "r1", "host")
	g1s := env.attach(t, g1, "r1", "guest")
	g2s := env.attach(t, g2, "r1", "guest")

	hs.Deliver(audioFrame(1, 100))
	flush(hs)

	assert.Equal(t, [][]byte{audioFrame(1, 100).Data}, g1.Audio())
	assert.Equal(t, [][]byte{audioFrame(1, 100).Data}, g2.Audio())
	info := env.info(t, "r1")
	assert.Equal(t, 100, info.BufferedBytes)
	assert.Equal(t, uint64(1), info.PacketsReceived)

	// Guest control text reaches only the host
	g1s.Deliver(protocol.NewControlFrame("hello"))
	flush(g1s)
	assert.Equal(t, []string{protocol.AckHost, "hello"}, host.Texts())
	assert.Equal(t, []string{protocol.AckGuest}, g2.Texts())

	// Host control text reaches every guest
	hs.Deliver(protocol.NewControlFrame("welcome"))
	flush(hs)
	assert.Equal(t, 1, g1.CountText("welcome"))
	assert.Equal(t, 1, g2.CountText("welcome"))

	hs.Leave()

	assert.True(t, host.IsClosed())
	assert.Equal(t, 1, g1.CountText(protocol.HostDisconnected))
	assert.Equal(t, 1, g2.CountText(protocol.HostDisconnected))

	info = env.info(t, "r1")
	assert.False(t, info.HasPublisher)
	assert.Equal(t, 0, info.BufferedBytes)
	assert.Equal(t, 0, info.BufferedFrames)
	assert.Equal(t, 2, info.Subscribers)

	g1s.Leave()
	assert.Equal(t, 1, env.registry.Len())
	g2s.Leave()
	assert.Equal(t, 0, env.registry.Len())

	require.NoError(t, env.dispatcher.Close())
	assert.Equal(t, []string{
		events.TypeRoomCreated,
		events.TypePublisherJoined,
		events.TypeSubscriberJoined,
		events.TypeSubscriberJoined,
		events.TypePublisherLeft,
		events.TypeSubscriberLeft,
		events.TypeSubscriberLeft,
		events.TypeRoomClosed,
	}, env.publisher.Types())
}

func TestLonePublisherLeaveDeletesRoom(t *testing.T) {
	env := newTestEnv(t)
	host := newMockConn("host")
	hs := env.attach(t, host, "r1", "host")

	hs.Leave()

	assert.Equal(t, 0, env.registry.Len())
	assert.Equal(t, protocol.CloseNormal, host.CloseCode())
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.RoomsDestroyed.WithLabelValues(events.ReasonEmpty)))
	assert.Equal(t, 0.0, testutil.ToFloat64(env.metrics.ActiveRooms))
}

func TestBroadcastIsolatesSendFailures(t *testing.T) {
	env := newTestEnv(t)
	hs := env.attach(t, newMockConn("host"), "r1", "host")

	a := newMockConn("a")
	b := newMockConn("b")
	c := newMockConn("c")
	env.attach(t, a, "r1", "guest")
	env.attach(t, b, "r1", "guest")
	env.attach(t, c, "r1", "guest")
	b.failSends()

	hs.Deliver(audioFrame(1, 20))
	flush(hs)

	assert.Len(t, a.Audio(), 1)
	assert.Len(t, c.Audio(), 1)
	assert.Empty(t, b.Audio())
	assert.True(t, b.IsClosed())
	assert.Equal(t, 2, env.info(t, "r1").Subscribers)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.SendFailures))

	hs.Deliver(audioFrame(2, 20))
	flush(hs)

	assert.Len(t, a.Audio(), 2)
	assert.Len(t, c.Audio(), 2)
}

func TestBroadcastSkipsDeadConnections(t *testing.T) {
	env := newTestEnv(t)
	hs := env.attach(t, newMockConn("host"), "r1", "host")

	alive := newMockConn("alive")
	dead := newMockConn("dead")
	env.attach(t, alive, "r1", "guest")
	env.attach(t, dead, "r1", "guest")
	dead.kill()

	hs.Deliver(audioFrame(1, 20))
	flush(hs)

	assert.Len(t, alive.Audio(), 1)
	assert.Empty(t, dead.Audio())
	assert.False(t, dead.IsClosed())
	assert.Equal(t, 2, env.info(t, "r1").Subscribers)
}

func TestPublisherSendFailureNotifiesGuests(t *testing.T) {
	env := newTestEnv(t)
	host := newMockConn("host")
	env.attach(t, host, "r1", "host")
	g1 := newMockConn("g1")
	g2 := newMockConn("g2")
	g1s := env.attach(t, g1, "r1", "guest")
	env.attach(t, g2, "r1", "guest")
	host.failSends()

	g1s.Deliver(protocol.NewControlFrame("ping"))
	flush(g1s)

	assert.True(t, host.IsClosed())
	assert.Equal(t, 1, g1.CountText(protocol.HostDisconnected))
	assert.Equal(t, 1, g2.CountText(protocol.HostDisconnected))
	assert.False(t, env.info(t, "r1").HasPublisher)
}

func TestGuestAudioIgnored(t *testing.T) {
	env := newTestEnv(t)
	host := newMockConn("host")
	env.attach(t, host, "r1", "host")
	gs := env.attach(t, newMockConn("g1"), "r1", "guest")

	gs.Deliver(audioFrame(1, 20))
	flush(gs)

	assert.Empty(t, host.Audio())
	info := env.info(t, "r1")
	assert.Equal(t, uint64(0), info.PacketsReceived)
	assert.Equal(t, 0, info.BufferedBytes)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.FramesReceived.WithLabelValues("audio")))
}

func TestOversizedFramesDropped(t *testing.T) {
	env := newTestEnv(t)
	hs := env.attach(t, newMockConn("host"), "r1", "host")
	guest := newMockConn("g1")
	env.attach(t, guest, "r1", "guest")

	hs.Deliver(audioFrame(1, 2049))
	hs.Deliver(audioFrame(2, 2048))
	flush(hs)

	audio := guest.Audio()
	require.Len(t, audio, 1)
	assert.Len(t, audio[0], 2048)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.OversizedFrames))
	assert.Equal(t, 2048, env.info(t, "r1").BufferedBytes)
}

func TestFastPacketsCountedNotDropped(t *testing.T) {
	env := newTestEnv(t)
	hs := env.attach(t, newMockConn("host"), "r1", "host")
	guest := newMockConn("g1")
	env.attach(t, guest, "r1", "guest")

	// The clock stands still, so every frame after the first arrives too fast
	for i := 0; i < 3; i++ {
		hs.Deliver(audioFrame(byte(i), 10))
	}
	flush(hs)

	env.clock.Advance(20 * time.Millisecond)
	hs.Deliver(audioFrame(9, 10))
	flush(hs)

	audio := guest.Audio()
	require.Len(t, audio, 4, "fast frames are forwarded exactly once")
	for i, tag := range []byte{0, 1, 2, 9} {
		assert.Equal(t, tag, audio[i][0])
	}

	info := env.info(t, "r1")
	assert.Equal(t, uint64(4), info.PacketsReceived)
	assert.Equal(t, uint64(2), info.FastPackets)
	assert.Equal(t, 2.0, testutil.ToFloat64(env.metrics.FastPackets))
}

func TestBufferStaysWithinCapacity(t *testing.T) {
	env := newTestEnv(t, func(cfg *RoomConfig) {
		cfg.BufferCapacity = 100
		cfg.MaxFrameSize = 64
	})
	hs := env.attach(t, newMockConn("host"), "r1", "host")
	guest := newMockConn("g1")
	env.attach(t, guest, "r1", "guest")

	for i := 0; i < 5; i++ {
		hs.Deliver(audioFrame(byte(i), 40))
		flush(hs)
		assert.LessOrEqual(t, env.info(t, "r1").BufferedBytes, 100)
	}

	info := env.info(t, "r1")
	assert.Equal(t, 80, info.BufferedBytes)
	assert.Equal(t, 2, info.BufferedFrames)
	assert.Len(t, guest.Audio(), 5, "eviction never affects live delivery")
	assert.Equal(t, 3.0, testutil.ToFloat64(env.metrics.BufferEvictions))
}

func TestEmptyAudioForwardedNotBuffered(t *testing.T) {
	env := newTestEnv(t)
	hs := env.attach(t, newMockConn("host"), "r1", "host")
	guest := newMockConn("g1")
	env.attach(t, guest, "r1", "guest")

	hs.Deliver(protocol.NewAudioFrame(nil))
	flush(hs)

	assert.Len(t, guest.Audio(), 1)
	assert.Equal(t, 0, env.info(t, "r1").BufferedFrames)
}

func TestMessagesRefreshActivity(t *testing.T) {
	env := newTestEnv(t)
	env.attach(t, newMockConn("host"), "r1", "host")
	gs := env.attach(t, newMockConn("g1"), "r1", "guest")

	env.clock.Advance(5 * time.Second)
	gs.Deliver(protocol.NewControlFrame("still here"))
	flush(gs)

	assert.WithinDuration(t, env.clock.Now(), env.info(t, "r1").LastActivity, 0)
}

func TestMessagesFromDetachedConnectionIgnored(t *testing.T) {
	env := newTestEnv(t)
	hs := env.attach(t, newMockConn("host"), "r1", "host")
	guest := newMockConn("g1")
	env.attach(t, guest, "r1", "guest")

	room, ok := env.registry.Room("r1")
	require.True(t, ok)

	stranger := newMockConn("stranger")
	room.deliver(stranger, audioFrame(1, 10))
	flush(hs)

	assert.Empty(t, guest.Audio())
	assert.Equal(t, uint64(0), env.info(t, "r1").PacketsReceived)
}

func TestCloseForReasons(t *testing.T) {
	tests := []struct {
		reason     string
		wantCode   int
		wantReason string
	}{
		{events.ReasonTimeout, protocol.CloseRoomExpired, protocol.ReasonRoomExpired},
		{events.ReasonShutdown, protocol.CloseGoingAway, protocol.ReasonShutdown},
		{events.ReasonDisconnect, protocol.CloseNormal, protocol.ReasonRemoved},
		{events.ReasonSendFailure, protocol.CloseNormal, protocol.ReasonRemoved},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			code, reason := closeFor(tt.reason)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}
