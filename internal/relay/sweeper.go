package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/herizador/Proxy-Audio-share/internal/metrics"
)

// Sweeper periodically evicts rooms idle for longer than the timeout
type Sweeper struct {
	registry *Registry
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewSweeper creates a sweeper over registry
func NewSweeper(registry *Registry, interval, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Sweeper {
	return &Sweeper{
		registry: registry,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		metrics:  m,
	}
}

// Run sweeps every interval until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Room sweeper started",
		slog.Duration("timeout", s.timeout),
		slog.Duration("check_interval", s.interval),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Room sweeper stopping")
			return

		case <-ticker.C:
			s.Sweep(s.registry.now())
		}
	}
}

// Sweep evicts every room whose last activity is older than the timeout at
// now, whatever its occupancy. It returns the number of evicted rooms.
func (s *Sweeper) Sweep(now time.Time) int {
	start := time.Now()

	evicted := 0
	for _, room := range s.registry.Rooms() {
		if now.Sub(room.LastActivity()) <= s.timeout {
			continue
		}
		if room.expire(now, s.timeout) {
			evicted++
		}
	}

	s.metrics.RecordSweep(time.Since(start).Seconds(), evicted)

	if evicted > 0 {
		s.logger.Info("Cleaned up inactive rooms",
			slog.Int("evicted_count", evicted),
			slog.Int("remaining_rooms", s.registry.Len()),
		)
	}

	return evicted
}
