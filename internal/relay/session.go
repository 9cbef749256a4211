package relay

import (
	"sync"

	"github.com/herizador/Proxy-Audio-share/internal/protocol"
)

// Session is the inbound side of an attached connection. A transport calls
// Deliver for every message it reads and Leave once the connection ends.
// Deliver must be called from a single goroutine to keep arrival order.
type Session struct {
	room      *Room
	conn      Connection
	role      protocol.Role
	leaveOnce sync.Once
}

func newSession(room *Room, conn Connection, role protocol.Role) *Session {
	return &Session{room: room, conn: conn, role: role}
}

// RoomID returns the id of the joined room
func (s *Session) RoomID() string {
	return s.room.id
}

// Role returns the role the connection joined with
func (s *Session) Role() protocol.Role {
	return s.role
}

// Deliver hands an inbound frame to the room. It blocks only while the room
// inbox is full and reports false once the room has stopped.
func (s *Session) Deliver(frame protocol.Frame) bool {
	return s.room.deliver(s.conn, frame)
}

// Leave detaches the connection and waits until the room has processed it
func (s *Session) Leave() {
	s.leaveOnce.Do(func() {
		_ = s.room.leave(s.conn)
	})
}
