package relay

import (
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/herizador/Proxy-Audio-share/internal/audio"
	"github.com/herizador/Proxy-Audio-share/internal/events"
	"github.com/herizador/Proxy-Audio-share/internal/metrics"
	"github.com/herizador/Proxy-Audio-share/internal/protocol"
)

// RoomConfig holds per-room limits
type RoomConfig struct {
	BufferCapacity    int           // bytes kept in the drop-oldest buffer
	MaxFrameSize      int           // larger audio frames are dropped
	MinPacketInterval time.Duration // arrivals closer than this count as fast packets
	InboxSize         int           // pending events per room
}

// RoomInfo is a point-in-time view of a room for monitoring and APIs
type RoomInfo struct {
	ID              string    `json:"id"`
	HasPublisher    bool      `json:"has_publisher"`
	PublisherID     string    `json:"publisher_id,omitempty"`
	Subscribers     int       `json:"subscribers"`
	BufferedFrames  int       `json:"buffered_frames"`
	BufferedBytes   int       `json:"buffered_bytes"`
	BufferCapacity  int       `json:"buffer_capacity"`
	PacketsReceived uint64    `json:"packets_received"`
	FastPackets     uint64    `json:"fast_packets"`
	CreatedAt       time.Time `json:"created_at"`
	LastActivity    time.Time `json:"last_activity"`
}

type eventKind uint8

const (
	evJoin eventKind = iota + 1
	evMessage
	evLeave
	evExpire
	evInfo
	evShutdown
)

type roomEvent struct {
	kind    eventKind
	conn    Connection
	role    protocol.Role
	frame   protocol.Frame
	now     time.Time     // evExpire
	timeout time.Duration // evExpire
	reply   chan roomReply
}

type roomReply struct {
	err     error
	info    RoomInfo
	evicted bool
}

// Room is one publisher and its subscribers. All fields below the inbox are
// owned by the room goroutine.
type Room struct {
	id        string
	cfg       RoomConfig
	registry  *Registry
	logger    *slog.Logger
	metrics   *metrics.Metrics
	events    *events.Dispatcher
	now       func() time.Time
	createdAt time.Time

	inbox chan roomEvent
	done  chan struct{}

	lastActivity atomic.Int64 // unix nanoseconds, read by the sweeper

	publisher       Connection
	subscribers     map[string]Connection
	buffer          *audio.Buffer
	lastPacketAt    time.Time
	packetsReceived uint64
	fastPackets     uint64
	released        bool
}

func newRoom(id string, registry *Registry) *Room {
	inboxSize := registry.cfg.InboxSize
	if inboxSize <= 0 {
		inboxSize = 1
	}

	now := registry.now()
	r := &Room{
		id:          id,
		cfg:         registry.cfg,
		registry:    registry,
		logger:      registry.logger.With(slog.String("room_id", id)),
		metrics:     registry.metrics,
		events:      registry.events,
		now:         registry.now,
		createdAt:   now,
		inbox:       make(chan roomEvent, inboxSize),
		done:        make(chan struct{}),
		subscribers: make(map[string]Connection),
		buffer:      audio.NewBuffer(registry.cfg.BufferCapacity),
	}
	r.lastActivity.Store(now.UnixNano())

	return r
}

// ID returns the room id
func (r *Room) ID() string {
	return r.id
}

// LastActivity returns the time of the last join or inbound message
func (r *Room) LastActivity() time.Time {
	return time.Unix(0, r.lastActivity.Load())
}

// Done is closed once the room has been removed from the registry
func (r *Room) Done() <-chan struct{} {
	return r.done
}

func (r *Room) touch(now time.Time) {
	r.lastActivity.Store(now.UnixNano())
}

// submit queues an event unless the room has stopped
func (r *Room) submit(ev roomEvent) bool {
	select {
	case <-r.done:
		return false
	default:
	}

	select {
	case r.inbox <- ev:
		return true
	case <-r.done:
		return false
	}
}

// call queues an event and waits for the room to answer it
func (r *Room) call(ev roomEvent) (roomReply, error) {
	ev.reply = make(chan roomReply, 1)
	if !r.submit(ev) {
		return roomReply{}, ErrRoomClosed
	}

	select {
	case rep := <-ev.reply:
		return rep, nil
	case <-r.done:
		// The event may have been answered just before the room stopped
		select {
		case rep := <-ev.reply:
			return rep, nil
		default:
			return roomReply{}, ErrRoomClosed
		}
	}
}

func (r *Room) join(conn Connection, role protocol.Role) error {
	rep, err := r.call(roomEvent{kind: evJoin, conn: conn, role: role})
	if err != nil {
		return err
	}
	return rep.err
}

func (r *Room) leave(conn Connection) error {
	_, err := r.call(roomEvent{kind: evLeave, conn: conn})
	return err
}

func (r *Room) deliver(conn Connection, frame protocol.Frame) bool {
	return r.submit(roomEvent{kind: evMessage, conn: conn, frame: frame})
}

// info returns a snapshot, or ErrRoomClosed if the room is gone
func (r *Room) info() (RoomInfo, error) {
	rep, err := r.call(roomEvent{kind: evInfo})
	return rep.info, err
}

// expire evicts the room if it is still idle at now. It reports whether the
// room was evicted.
func (r *Room) expire(now time.Time, timeout time.Duration) bool {
	rep, err := r.call(roomEvent{kind: evExpire, now: now, timeout: timeout})
	return err == nil && rep.evicted
}

func (r *Room) shutdown() {
	_, _ = r.call(roomEvent{kind: evShutdown})
}

// run is the room goroutine
func (r *Room) run() {
	r.logger.Debug("Room started")

	for ev := range r.inbox {
		rep := r.handle(ev)
		if ev.reply != nil {
			ev.reply <- rep
		}
		if r.released {
			r.logger.Debug("Room stopped", slog.Int("pending_events", len(r.inbox)))
			return
		}
	}
}

func (r *Room) handle(ev roomEvent) roomReply {
	switch ev.kind {
	case evJoin:
		return roomReply{err: r.handleJoin(ev.conn, ev.role)}
	case evMessage:
		r.handleMessage(ev.conn, ev.frame)
	case evLeave:
		r.removeConnection(ev.conn, events.ReasonDisconnect)
	case evExpire:
		return roomReply{evicted: r.handleExpire(ev.now, ev.timeout)}
	case evInfo:
		return roomReply{info: r.snapshot()}
	case evShutdown:
		r.logger.Info("Shutting down room")
		r.evict(events.ReasonShutdown)
	}
	return roomReply{}
}

func (r *Room) handleJoin(conn Connection, role protocol.Role) error {
	switch role {
	case protocol.RolePublisher:
		if r.publisher != nil {
			return ErrRoleConflict
		}
		r.publisher = conn
	case protocol.RoleSubscriber:
		if r.publisher == nil {
			return ErrNoPublisher
		}
		r.subscribers[conn.ID()] = conn
	default:
		return protocol.ErrInvalidRole
	}

	r.touch(r.now())

	eventType := events.TypeSubscriberJoined
	if role == protocol.RolePublisher {
		eventType = events.TypePublisherJoined
	}
	r.events.Emit(events.Event{
		Type:         eventType,
		RoomID:       r.id,
		ConnectionID: conn.ID(),
		Role:         role.String(),
	})
	r.metrics.RecordJoinAccepted(role.String())

	r.logger.Info("Connection joined room",
		slog.String("conn_id", conn.ID()),
		slog.String("role", role.String()),
		slog.Int("subscribers", len(r.subscribers)),
	)

	if err := conn.Send(protocol.NewControlFrame(role.Ack())); err != nil {
		r.logger.Debug("Failed to send join acknowledgement",
			slog.String("conn_id", conn.ID()),
			slog.String("error", err.Error()),
		)
	}

	return nil
}

func (r *Room) roleOf(conn Connection) protocol.Role {
	if r.publisher != nil && r.publisher.ID() == conn.ID() {
		return protocol.RolePublisher
	}
	if _, ok := r.subscribers[conn.ID()]; ok {
		return protocol.RoleSubscriber
	}
	return protocol.RoleUnknown
}

func (r *Room) handleMessage(conn Connection, frame protocol.Frame) {
	role := r.roleOf(conn)
	if role == protocol.RoleUnknown {
		return
	}

	now := r.now()
	r.touch(now)
	r.metrics.RecordFrameReceived(frame.Kind.String())

	switch {
	case frame.IsAudio():
		if role != protocol.RolePublisher {
			r.logger.Debug("Ignoring audio from guest", slog.String("conn_id", conn.ID()))
			return
		}
		if frame.Len() > r.cfg.MaxFrameSize {
			r.metrics.RecordOversizedFrame()
			r.logger.Debug("Dropping oversized audio frame",
				slog.Int("size", frame.Len()),
				slog.Int("max_frame_size", r.cfg.MaxFrameSize),
			)
			return
		}
		r.ingest(frame, now)
		r.broadcast(frame, conn)

	case frame.IsControl():
		r.broadcast(frame, conn)
	}
}

// ingest buffers a publisher frame. Frames arriving faster than the minimum
// interval are only counted; they are still buffered and forwarded once.
func (r *Room) ingest(frame protocol.Frame, now time.Time) {
	if !r.lastPacketAt.IsZero() && now.Sub(r.lastPacketAt) < r.cfg.MinPacketInterval {
		r.fastPackets++
		r.metrics.RecordFastPacket()
	}
	r.lastPacketAt = now
	r.packetsReceived++

	evicted := r.buffer.Push(frame.Data)
	r.metrics.RecordIngest(frame.Len(), evicted)
}

// broadcast fans a frame out. Frames from the publisher, or from the relay
// itself when sender is nil, go to every subscriber; frames from a subscriber
// go to the publisher. Recipients whose send fails are removed after the loop.
func (r *Room) broadcast(frame protocol.Frame, sender Connection) {
	var targets []Connection
	if sender == nil || r.roleOf(sender) == protocol.RolePublisher {
		targets = make([]Connection, 0, len(r.subscribers))
		for _, sub := range r.subscribers {
			targets = append(targets, sub)
		}
	} else if r.publisher != nil {
		targets = []Connection{r.publisher}
	}

	var failed []Connection
	for _, target := range targets {
		if !target.Alive() {
			continue
		}
		if err := target.Send(frame); err != nil {
			r.metrics.RecordSendFailure()
			r.logger.Warn("Failed to send frame, removing connection",
				slog.String("conn_id", target.ID()),
				slog.String("kind", frame.Kind.String()),
				slog.String("error", err.Error()),
			)
			failed = append(failed, target)
			continue
		}
		r.metrics.RecordFrameDelivered(frame.Kind.String())
	}

	for _, conn := range failed {
		r.removeConnection(conn, events.ReasonSendFailure)
	}
}

// removeConnection detaches conn and closes it. Losing the publisher notifies
// every subscriber once and empties the buffer. An empty room is released.
func (r *Room) removeConnection(conn Connection, reason string) {
	role := r.roleOf(conn)
	switch role {
	case protocol.RolePublisher:
		r.publisher = nil
		r.detached(conn, role, reason)
		r.broadcast(protocol.NewControlFrame(protocol.HostDisconnected), nil)
		r.buffer.Reset()
	case protocol.RoleSubscriber:
		delete(r.subscribers, conn.ID())
		r.detached(conn, role, reason)
	default:
		return
	}

	code, text := closeFor(reason)
	_ = conn.Close(code, text)

	if r.publisher == nil && len(r.subscribers) == 0 {
		r.release(events.ReasonEmpty)
	}
}

func (r *Room) detached(conn Connection, role protocol.Role, reason string) {
	eventType := events.TypeSubscriberLeft
	if role == protocol.RolePublisher {
		eventType = events.TypePublisherLeft
	}
	r.events.Emit(events.Event{
		Type:         eventType,
		RoomID:       r.id,
		ConnectionID: conn.ID(),
		Role:         role.String(),
		Reason:       reason,
	})
	r.metrics.RecordConnectionDetached(role.String())

	r.logger.Info("Connection left room",
		slog.String("conn_id", conn.ID()),
		slog.String("role", role.String()),
		slog.String("reason", reason),
	)
}

// handleExpire re-checks idleness on the room goroutine, since a message may
// have arrived after the sweeper picked this room
func (r *Room) handleExpire(now time.Time, timeout time.Duration) bool {
	idle := now.Sub(r.LastActivity())
	if idle <= timeout {
		return false
	}

	r.logger.Info("Evicting inactive room",
		slog.Duration("idle", idle),
		slog.Duration("timeout", timeout),
	)
	r.evict(events.ReasonTimeout)
	return true
}

// evict closes every connection regardless of liveness and releases the room
func (r *Room) evict(reason string) {
	code, text := closeFor(reason)

	if pub := r.publisher; pub != nil {
		r.publisher = nil
		r.detached(pub, protocol.RolePublisher, reason)
		_ = pub.Close(code, text)
	}

	ids := make([]string, 0, len(r.subscribers))
	for id := range r.subscribers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		sub := r.subscribers[id]
		delete(r.subscribers, id)
		r.detached(sub, protocol.RoleSubscriber, reason)
		_ = sub.Close(code, text)
	}

	r.buffer.Reset()
	r.release(reason)
}

// release removes the room from the registry and stops the room goroutine
func (r *Room) release(reason string) {
	if r.released {
		return
	}
	r.released = true

	r.registry.release(r)
	close(r.done)

	lifetime := r.now().Sub(r.createdAt)
	r.events.Emit(events.Event{
		Type:   events.TypeRoomClosed,
		RoomID: r.id,
		Reason: reason,
	})
	r.metrics.RecordRoomDestroyed(reason, lifetime.Seconds())

	r.logger.Info("Room closed",
		slog.String("reason", reason),
		slog.Duration("lifetime", lifetime),
		slog.Uint64("packets_received", r.packetsReceived),
		slog.Uint64("fast_packets", r.fastPackets),
	)
}

func (r *Room) snapshot() RoomInfo {
	stats := r.buffer.GetStats()
	info := RoomInfo{
		ID:              r.id,
		HasPublisher:    r.publisher != nil,
		Subscribers:     len(r.subscribers),
		BufferedFrames:  stats.Frames,
		BufferedBytes:   stats.Bytes,
		BufferCapacity:  stats.Capacity,
		PacketsReceived: r.packetsReceived,
		FastPackets:     r.fastPackets,
		CreatedAt:       r.createdAt,
		LastActivity:    r.LastActivity(),
	}
	if r.publisher != nil {
		info.PublisherID = r.publisher.ID()
	}
	return info
}

// closeFor maps a removal reason onto the close frame sent to the peer
func closeFor(reason string) (int, string) {
	switch reason {
	case events.ReasonTimeout:
		return protocol.CloseRoomExpired, protocol.ReasonRoomExpired
	case events.ReasonShutdown:
		return protocol.CloseGoingAway, protocol.ReasonShutdown
	default:
		return protocol.CloseNormal, protocol.ReasonRemoved
	}
}
