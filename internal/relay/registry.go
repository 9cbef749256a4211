package relay

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/herizador/Proxy-Audio-share/internal/events"
	"github.com/herizador/Proxy-Audio-share/internal/metrics"
)

// Dependencies are the collaborators shared by every room
type Dependencies struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Events  *events.Dispatcher // optional
	Clock   func() time.Time   // defaults to time.Now
}

// Stats aggregates all rooms
type Stats struct {
	Rooms         int `json:"rooms"`
	Publishers    int `json:"publishers"`
	Subscribers   int `json:"subscribers"`
	BufferedBytes int `json:"buffered_bytes"`
}

// Registry owns the rooms of one relay instance
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]*Room
	closed bool

	cfg     RoomConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
	events  *events.Dispatcher
	now     func() time.Time
}

// NewRegistry creates an empty registry
func NewRegistry(cfg RoomConfig, deps Dependencies) *Registry {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMetrics(prometheus.NewRegistry())
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	return &Registry{
		rooms:   make(map[string]*Room),
		cfg:     cfg,
		logger:  deps.Logger,
		metrics: deps.Metrics,
		events:  deps.Events,
		now:     deps.Clock,
	}
}

// acquire returns the room with the given id, creating and starting it if needed
func (g *Registry) acquire(id string) (*Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil, ErrRegistryClosed
	}
	if room, ok := g.rooms[id]; ok {
		return room, nil
	}

	room := newRoom(id, g)
	g.rooms[id] = room
	go room.run()

	g.metrics.RecordRoomCreated()
	g.events.Emit(events.Event{Type: events.TypeRoomCreated, RoomID: id})
	g.logger.Info("Created room",
		slog.String("room_id", id),
		slog.Int("total_rooms", len(g.rooms)),
	)

	return room, nil
}

// lookup returns an existing room or nil
func (g *Registry) lookup(id string) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rooms[id]
}

// release drops room if it is still the registered instance for its id
func (g *Registry) release(room *Room) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if current, ok := g.rooms[room.id]; ok && current == room {
		delete(g.rooms, room.id)
	}
}

// Room returns the room with the given id
func (g *Registry) Room(id string) (*Room, bool) {
	room := g.lookup(id)
	return room, room != nil
}

// Len returns the number of rooms
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// Rooms returns the current rooms sorted by id
func (g *Registry) Rooms() []*Room {
	g.mu.Lock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, room := range g.rooms {
		rooms = append(rooms, room)
	}
	g.mu.Unlock()

	sort.Slice(rooms, func(i, j int) bool { return rooms[i].id < rooms[j].id })
	return rooms
}

// RoomInfo returns a snapshot of one room
func (g *Registry) RoomInfo(id string) (RoomInfo, bool) {
	room := g.lookup(id)
	if room == nil {
		return RoomInfo{}, false
	}
	info, err := room.info()
	if err != nil {
		return RoomInfo{}, false
	}
	return info, true
}

// Snapshot returns a snapshot of every room, sorted by id. Rooms that close
// while the snapshot is taken are left out.
func (g *Registry) Snapshot() []RoomInfo {
	rooms := g.Rooms()
	infos := make([]RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		info, err := room.info()
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	return infos
}

// Stats returns totals across all rooms
func (g *Registry) Stats() Stats {
	var stats Stats
	for _, info := range g.Snapshot() {
		stats.Rooms++
		if info.HasPublisher {
			stats.Publishers++
		}
		stats.Subscribers += info.Subscribers
		stats.BufferedBytes += info.BufferedBytes
	}
	return stats
}

// Close shuts every room down, closing all connections with a going-away
// code. New joins fail with ErrRegistryClosed afterwards.
func (g *Registry) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	rooms := make([]*Room, 0, len(g.rooms))
	for _, room := range g.rooms {
		rooms = append(rooms, room)
	}
	g.mu.Unlock()

	g.logger.Info("Closing all rooms", slog.Int("rooms", len(rooms)))

	for _, room := range rooms {
		room.shutdown()
	}
}
