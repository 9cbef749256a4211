package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the audio relay
type Metrics struct {
	// Room metrics
	ActiveRooms    prometheus.Gauge
	RoomsCreated   prometheus.Counter
	RoomsDestroyed *prometheus.CounterVec
	RoomLifetime   prometheus.Histogram

	// Connection metrics
	ActiveConnections *prometheus.GaugeVec
	JoinsAccepted     *prometheus.CounterVec
	JoinsRejected     *prometheus.CounterVec

	// Ingest metrics
	FramesReceived  *prometheus.CounterVec
	OversizedFrames prometheus.Counter
	FastPackets     prometheus.Counter
	IngestedBytes   prometheus.Counter
	BufferEvictions prometheus.Counter
	MalformedFrames prometheus.Counter

	// Delivery metrics
	FramesDelivered *prometheus.CounterVec
	SendFailures    prometheus.Counter

	// Sweep metrics
	SweepDuration  prometheus.Histogram
	SweepEvictions prometheus.Counter

	// Lifecycle event metrics
	EventsPublished *prometheus.CounterVec
	EventsDropped   prometheus.Counter
	EventsFailed    prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all relay metrics and registers them with reg.
// Passing prometheus.DefaultRegisterer exposes them on the default /metrics handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Room metrics
		ActiveRooms: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_active_rooms",
			Help: "Current number of rooms",
		}),
		RoomsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_rooms_created_total",
			Help: "Total number of rooms created",
		}),
		RoomsDestroyed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_rooms_destroyed_total",
			Help: "Total number of rooms destroyed",
		}, []string{"reason"}),
		RoomLifetime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_room_lifetime_seconds",
			Help:    "Lifetime of rooms in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~4.5 hours
		}),

		// Connection metrics
		ActiveConnections: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "relay_active_connections",
			Help: "Current number of attached connections",
		}, []string{"role"}),
		JoinsAccepted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_joins_accepted_total",
			Help: "Total number of accepted joins",
		}, []string{"role"}),
		JoinsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_joins_rejected_total",
			Help: "Total number of rejected joins",
		}, []string{"reason"}),

		// Ingest metrics
		FramesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_frames_received_total",
			Help: "Total number of frames received from connections",
		}, []string{"kind"}),
		OversizedFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_oversized_frames_total",
			Help: "Total number of audio frames dropped for exceeding the frame size limit",
		}),
		FastPackets: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_fast_packets_total",
			Help: "Total number of audio frames arriving faster than the minimum interval",
		}),
		IngestedBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_ingested_bytes_total",
			Help: "Total number of audio bytes ingested into room buffers",
		}),
		BufferEvictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_buffer_evictions_total",
			Help: "Total number of frames evicted from room buffers",
		}),
		MalformedFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_malformed_frames_total",
			Help: "Total number of inbound messages discarded as malformed",
		}),

		// Delivery metrics
		FramesDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_frames_delivered_total",
			Help: "Total number of frames handed to recipients",
		}, []string{"kind"}),
		SendFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_send_failures_total",
			Help: "Total number of failed sends that removed a recipient",
		}),

		// Sweep metrics
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_sweep_duration_seconds",
			Help:    "Time spent in a reclamation sweep",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 100us to ~200ms
		}),
		SweepEvictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_sweep_evictions_total",
			Help: "Total number of rooms evicted for inactivity",
		}),

		// Lifecycle event metrics
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_events_published_total",
			Help: "Total number of lifecycle events published",
		}, []string{"type"}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_events_dropped_total",
			Help: "Total number of lifecycle events dropped on a full queue",
		}),
		EventsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_events_failed_total",
			Help: "Total number of lifecycle events that failed to publish",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordRoomCreated increments the rooms created counter and the active gauge
func (m *Metrics) RecordRoomCreated() {
	m.RoomsCreated.Inc()
	m.ActiveRooms.Inc()
}

// RecordRoomDestroyed records a room removal and its lifetime
func (m *Metrics) RecordRoomDestroyed(reason string, lifetimeSeconds float64) {
	m.RoomsDestroyed.WithLabelValues(reason).Inc()
	m.ActiveRooms.Dec()
	m.RoomLifetime.Observe(lifetimeSeconds)
}

// RecordJoinAccepted records an accepted join for a role
func (m *Metrics) RecordJoinAccepted(role string) {
	m.JoinsAccepted.WithLabelValues(role).Inc()
	m.ActiveConnections.WithLabelValues(role).Inc()
}

// RecordJoinRejected records a rejected join
func (m *Metrics) RecordJoinRejected(reason string) {
	m.JoinsRejected.WithLabelValues(reason).Inc()
}

// RecordConnectionDetached decrements the active connections gauge
func (m *Metrics) RecordConnectionDetached(role string) {
	m.ActiveConnections.WithLabelValues(role).Dec()
}

// RecordFrameReceived increments the frames received counter
func (m *Metrics) RecordFrameReceived(kind string) {
	m.FramesReceived.WithLabelValues(kind).Inc()
}

// RecordOversizedFrame increments the oversized frames counter
func (m *Metrics) RecordOversizedFrame() {
	m.OversizedFrames.Inc()
}

// RecordFastPacket increments the fast packets counter
func (m *Metrics) RecordFastPacket() {
	m.FastPackets.Inc()
}

// RecordIngest records bytes added to a buffer and any evictions it caused
func (m *Metrics) RecordIngest(sizeBytes, evicted int) {
	m.IngestedBytes.Add(float64(sizeBytes))
	if evicted > 0 {
		m.BufferEvictions.Add(float64(evicted))
	}
}

// RecordMalformedFrame increments the malformed frames counter
func (m *Metrics) RecordMalformedFrame() {
	m.MalformedFrames.Inc()
}

// RecordFrameDelivered increments the frames delivered counter
func (m *Metrics) RecordFrameDelivered(kind string) {
	m.FramesDelivered.WithLabelValues(kind).Inc()
}

// RecordSendFailure increments the send failures counter
func (m *Metrics) RecordSendFailure() {
	m.SendFailures.Inc()
}

// RecordSweep records a sweep pass
func (m *Metrics) RecordSweep(durationSeconds float64, evicted int) {
	m.SweepDuration.Observe(durationSeconds)
	if evicted > 0 {
		m.SweepEvictions.Add(float64(evicted))
	}
}

// RecordEventPublished increments the published events counter
func (m *Metrics) RecordEventPublished(eventType string) {
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

// RecordEventDropped increments the dropped events counter
func (m *Metrics) RecordEventDropped() {
	m.EventsDropped.Inc()
}

// RecordEventFailed increments the failed events counter
func (m *Metrics) RecordEventFailed() {
	m.EventsFailed.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
