package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/herizador/Proxy-Audio-share/internal/metrics"
)

// Event is a room lifecycle notification
type Event struct {
	Type         string `json:"type"`
	RoomID       string `json:"room_id"`
	ConnectionID string `json:"connection_id,omitempty"`
	Role         string `json:"role,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Timestamp    int64  `json:"timestamp"` // unix milliseconds
}

// Event types
const (
	TypeRoomCreated      = "room_created"
	TypeRoomClosed       = "room_closed"
	TypePublisherJoined  = "publisher_joined"
	TypePublisherLeft    = "publisher_left"
	TypeSubscriberJoined = "subscriber_joined"
	TypeSubscriberLeft   = "subscriber_left"
)

// Reasons attached to *_left and room_closed events
const (
	ReasonDisconnect  = "disconnect"
	ReasonSendFailure = "send_failure"
	ReasonTimeout     = "timeout"
	ReasonShutdown    = "shutdown"
	ReasonEmpty       = "empty"
)

// Publisher delivers events to an external system
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher discards every event
type NopPublisher struct{}

// Publish implements Publisher
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close implements Publisher
func (NopPublisher) Close() error { return nil }

// Dispatcher queues events and publishes them from one goroutine
type Dispatcher struct {
	publisher Publisher
	queue     chan Event
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewDispatcher creates a dispatcher and starts its publish loop
func NewDispatcher(publisher Publisher, queueSize int, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}

	d := &Dispatcher{
		publisher: publisher,
		queue:     make(chan Event, queueSize),
		timeout:   timeout,
		logger:    logger,
		metrics:   m,
		done:      make(chan struct{}),
	}

	go d.run()

	return d
}

// Emit queues an event without blocking. The event is dropped when the
// queue is full or the dispatcher is closed. Emit on a nil Dispatcher is a no-op.
func (d *Dispatcher) Emit(event Event) {
	if d == nil {
		return
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return
	}

	select {
	case d.queue <- event:
	default:
		d.metrics.RecordEventDropped()
		d.logger.Warn("Event queue full, dropping event",
			slog.String("type", event.Type),
			slog.String("room_id", event.RoomID),
		)
	}
}

// run publishes queued events until the queue is closed
func (d *Dispatcher) run() {
	defer close(d.done)

	for event := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.publisher.Publish(ctx, event)
		cancel()

		if err != nil {
			d.metrics.RecordEventFailed()
			d.logger.Warn("Failed to publish event",
				slog.String("type", event.Type),
				slog.String("room_id", event.RoomID),
				slog.String("error", err.Error()),
			)
			continue
		}

		d.metrics.RecordEventPublished(event.Type)
	}
}

// Close stops accepting events, publishes what is already queued and closes
// the publisher
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	<-d.done

	return d.publisher.Close()
}
