package relay

import (
	"errors"

	"github.com/herizador/Proxy-Audio-share/internal/protocol"
)

var (
	// ErrRoleConflict is returned when a host joins a room that already has one
	ErrRoleConflict = errors.New("room already has a host")
	// ErrNoPublisher is returned when a guest joins a room without a host
	ErrNoPublisher = errors.New("room has no host")
	// ErrRoomClosed is returned when a room stopped before handling an event
	ErrRoomClosed = errors.New("room closed")
	// ErrRegistryClosed is returned once the registry has shut down
	ErrRegistryClosed = errors.New("registry closed")
)

// Connection is a bidirectional peer attached to a room.
//
// Send must not block on network I/O; a returned error is treated as a
// delivery failure and removes the connection from its room. Close must be
// safe to call more than once.
type Connection interface {
	ID() string
	Send(frame protocol.Frame) error
	Close(code int, reason string) error
	Alive() bool
}
