package relay

import (
	"errors"
	"log/slog"
	"net/url"

	"github.com/herizador/Proxy-Audio-share/internal/metrics"
	"github.com/herizador/Proxy-Audio-share/internal/protocol"
)

// maxJoinAttempts bounds retries when a room stops between lookup and join
const maxJoinAttempts = 3

// Router validates new connections and attaches them to rooms
type Router struct {
	registry *Registry
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewRouter creates a router over registry
func NewRouter(registry *Registry, logger *slog.Logger, m *metrics.Metrics) *Router {
	return &Router{
		registry: registry,
		logger:   logger,
		metrics:  m,
	}
}

// Attach joins conn to the room and role named in query. On rejection the
// connection is closed with the matching close code and the error is returned.
func (rt *Router) Attach(conn Connection, query url.Values) (*Session, error) {
	params, err := protocol.ParseJoinParams(query)
	if err != nil {
		code, reason := protocol.CloseFor(err)
		rt.reject(conn, params.RoomID, code, reason, err)
		return nil, err
	}

	switch params.Role {
	case protocol.RolePublisher:
		return rt.attachPublisher(conn, params.RoomID)
	default:
		return rt.attachSubscriber(conn, params.RoomID)
	}
}

func (rt *Router) attachPublisher(conn Connection, roomID string) (*Session, error) {
	for attempt := 0; attempt < maxJoinAttempts; attempt++ {
		room, err := rt.registry.acquire(roomID)
		if err != nil {
			rt.reject(conn, roomID, protocol.CloseGoingAway, protocol.ReasonShutdown, err)
			return nil, err
		}

		err = room.join(conn, protocol.RolePublisher)
		switch {
		case err == nil:
			return newSession(room, conn, protocol.RolePublisher), nil
		case errors.Is(err, ErrRoomClosed):
			rt.logger.Debug("Room closed during join, retrying",
				slog.String("room_id", roomID),
				slog.Int("attempt", attempt+1),
			)
			continue
		case errors.Is(err, ErrRoleConflict):
			rt.reject(conn, roomID, protocol.CloseRoleConflict, protocol.ReasonRoleConflict, err)
			return nil, err
		default:
			rt.reject(conn, roomID, protocol.CloseNormal, protocol.ReasonRemoved, err)
			return nil, err
		}
	}

	rt.reject(conn, roomID, protocol.CloseGoingAway, protocol.ReasonShutdown, ErrRoomClosed)
	return nil, ErrRoomClosed
}

// attachSubscriber never creates a room
func (rt *Router) attachSubscriber(conn Connection, roomID string) (*Session, error) {
	for attempt := 0; attempt < maxJoinAttempts; attempt++ {
		room := rt.registry.lookup(roomID)
		if room == nil {
			break
		}

		err := room.join(conn, protocol.RoleSubscriber)
		switch {
		case err == nil:
			return newSession(room, conn, protocol.RoleSubscriber), nil
		case errors.Is(err, ErrRoomClosed):
			continue
		case errors.Is(err, ErrNoPublisher):
			rt.reject(conn, roomID, protocol.CloseNoHost, protocol.ReasonNoHost, err)
			return nil, err
		default:
			rt.reject(conn, roomID, protocol.CloseNormal, protocol.ReasonRemoved, err)
			return nil, err
		}
	}

	rt.reject(conn, roomID, protocol.CloseNoHost, protocol.ReasonNoHost, ErrNoPublisher)
	return nil, ErrNoPublisher
}

func (rt *Router) reject(conn Connection, roomID string, code int, reason string, err error) {
	rt.metrics.RecordJoinRejected(reason)
	rt.logger.Info("Rejected connection",
		slog.String("conn_id", conn.ID()),
		slog.String("room_id", roomID),
		slog.Int("close_code", code),
		slog.String("reason", reason),
		slog.String("error", err.Error()),
	)
	_ = conn.Close(code, reason)
}
