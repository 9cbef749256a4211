package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/herizador/Proxy-Audio-share/internal/events"
	"github.com/herizador/Proxy-Audio-share/internal/metrics"
	"github.com/herizador/Proxy-Audio-share/internal/protocol"
)

var errMockSend = errors.New("mock send failure")

// mockConn records everything the relay sends to it
type mockConn struct {
	id string

	mu          sync.Mutex
	frames      []protocol.Frame
	sendErr     error
	dead        bool
	closed      bool
	closeCount  int
	closeCode   int
	closeReason string
}

func newMockConn(id string) *mockConn {
	return &mockConn{id: id}
}

func (c *mockConn) ID() string { return c.id }

func (c *mockConn) Send(frame protocol.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	if c.closed {
		return errors.New("mock connection closed")
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *mockConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCount++
	if c.closed {
		return nil
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	return nil
}

func (c *mockConn) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && !c.dead
}

func (c *mockConn) failSends() {
	c.mu.Lock()
	c.sendErr = errMockSend
	c.mu.Unlock()
}

func (c *mockConn) kill() {
	c.mu.Lock()
	c.dead = true
	c.mu.Unlock()
}

func (c *mockConn) Frames() []protocol.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Frame(nil), c.frames...)
}

func (c *mockConn) Audio() [][]byte {
	var out [][]byte
	for _, f := range c.Frames() {
		if f.IsAudio() {
			out = append(out, f.Data)
		}
	}
	return out
}

func (c *mockConn) Texts() []string {
	var out []string
	for _, f := range c.Frames() {
		if f.IsControl() {
			out = append(out, f.Text())
		}
	}
	return out
}

func (c *mockConn) CountText(text string) int {
	n := 0
	for _, s := range c.Texts() {
		if s == text {
			n++
		}
	}
	return n
}

func (c *mockConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *mockConn) CloseCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

func (c *mockConn) CloseReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeReason
}

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingPublisher keeps published lifecycle events in memory
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type testEnv struct {
	registry   *Registry
	router     *Router
	sweeper    *Sweeper
	metrics    *metrics.Metrics
	clock      *fakeClock
	publisher  *recordingPublisher
	dispatcher *events.Dispatcher
}

const testTimeout = 60 * time.Second

func defaultRoomConfig() RoomConfig {
	return RoomConfig{
		BufferCapacity:    16384,
		MaxFrameSize:      2048,
		MinPacketInterval: 10 * time.Millisecond,
		InboxSize:         64,
	}
}

func newTestEnv(t *testing.T, mutate ...func(*RoomConfig)) *testEnv {
	t.Helper()

	cfg := defaultRoomConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewMetrics(prometheus.NewRegistry())
	clock := newFakeClock()
	pub := &recordingPublisher{}
	dispatcher := events.NewDispatcher(pub, 256, time.Second, logger, m)

	registry := NewRegistry(cfg, Dependencies{
		Logger:  logger,
		Metrics: m,
		Events:  dispatcher,
		Clock:   clock.Now,
	})

	env := &testEnv{
		registry:   registry,
		router:     NewRouter(registry, logger, m),
		sweeper:    NewSweeper(registry, time.Second, testTimeout, logger, m),
		metrics:    m,
		clock:      clock,
		publisher:  pub,
		dispatcher: dispatcher,
	}

	t.Cleanup(func() {
		registry.Close()
		_ = dispatcher.Close()
	})

	return env
}

func joinQuery(room, role string) url.Values {
	q := url.Values{}
	if room != "" {
		q.Set(protocol.ParamRoom, room)
	}
	if role != "" {
		q.Set(protocol.ParamRole, role)
	}
	return q
}

// attach joins conn and fails the test on rejection
func (e *testEnv) attach(t *testing.T, conn Connection, room, role string) *Session {
	t.Helper()
	session, err := e.router.Attach(conn, joinQuery(room, role))
	require.NoError(t, err)
	require.NotNil(t, session)
	return session
}

// info waits for every event queued before it and returns the room snapshot
func (e *testEnv) info(t *testing.T, id string) RoomInfo {
	t.Helper()
	info, ok := e.registry.RoomInfo(id)
	require.True(t, ok, "room %q should exist", id)
	return info
}

// flush waits until the session's room has handled everything queued so far
func flush(s *Session) {
	_, _ = s.room.info()
}

func audioFrame(tag byte, n int) protocol.Frame {
	data := make([]byte, n)
	for i := range data {
		data[i] = tag
	}
	return protocol.NewAudioFrame(data)
}
