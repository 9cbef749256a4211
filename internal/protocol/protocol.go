package protocol

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Join parameter names read from the connection URL query string
const (
	ParamRoom = "room"
	ParamRole = "role"
)

// Close codes sent to a connection when it is rejected or evicted.
// The 4000 range is reserved by RFC 6455 for application use.
const (
	CloseMissingParams = 4000 // room or role absent
	CloseRoleConflict  = 4001 // a host is already attached to the room
	CloseNoHost        = 4002 // guest joined a room without an active host
	CloseInvalidRole   = 4003 // role is neither host nor guest
	CloseRoomExpired   = 4004 // room evicted after inactivity
	CloseGoingAway     = 1001 // server shutting down
	CloseNormal        = 1000
)

// Close reasons paired with the codes above
const (
	ReasonMissingParams = "missing_params"
	ReasonRoleConflict  = "host_already_exists"
	ReasonNoHost        = "no_host"
	ReasonInvalidRole   = "invalid_role"
	ReasonRoomExpired   = "room_inactive"
	ReasonShutdown      = "server_shutdown"
	ReasonRemoved       = "removed"
)

// Control texts sent by the relay itself
const (
	AckHost          = "Connected as HOST"
	AckGuest         = "Connected as GUEST"
	HostDisconnected = "host_disconnected"
)

var (
	// ErrMissingParams is returned when the room id or role is absent
	ErrMissingParams = errors.New("missing room or role parameter")
	// ErrInvalidRole is returned for a role other than host or guest
	ErrInvalidRole = errors.New("invalid role")
)

// Role identifies the slot a connection occupies in a room
type Role uint8

const (
	RoleUnknown Role = iota
	RolePublisher
	RoleSubscriber
)

// Wire names of the roles
const (
	RoleNameHost  = "host"
	RoleNameGuest = "guest"
)

// ParseRole converts a wire role name into a Role
func ParseRole(name string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case RoleNameHost:
		return RolePublisher, nil
	case RoleNameGuest:
		return RoleSubscriber, nil
	default:
		return RoleUnknown, fmt.Errorf("%w: %q", ErrInvalidRole, name)
	}
}

// String returns the wire name of the role
func (r Role) String() string {
	switch r {
	case RolePublisher:
		return RoleNameHost
	case RoleSubscriber:
		return RoleNameGuest
	default:
		return "unknown"
	}
}

// Ack returns the acknowledgement text sent after a successful join
func (r Role) Ack() string {
	if r == RolePublisher {
		return AckHost
	}
	return AckGuest
}

// JoinParams holds the room and role a new connection asked for
type JoinParams struct {
	RoomID string
	Role   Role
}

// ParseJoinParams extracts join parameters from a URL query.
// Missing values are reported before an unknown role.
func ParseJoinParams(q url.Values) (JoinParams, error) {
	roomID := strings.TrimSpace(q.Get(ParamRoom))
	roleName := strings.TrimSpace(q.Get(ParamRole))

	if roomID == "" || roleName == "" {
		return JoinParams{}, ErrMissingParams
	}

	role, err := ParseRole(roleName)
	if err != nil {
		return JoinParams{RoomID: roomID}, err
	}

	return JoinParams{RoomID: roomID, Role: role}, nil
}

// CloseFor maps a protocol error onto the close code and reason sent to the peer
func CloseFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrMissingParams):
		return CloseMissingParams, ReasonMissingParams
	case errors.Is(err, ErrInvalidRole):
		return CloseInvalidRole, ReasonInvalidRole
	default:
		return CloseNormal, ReasonRemoved
	}
}
