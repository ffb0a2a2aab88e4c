package order

import (
	"context"
	"log/slog"
	"time"

	"github.com/m3rciful/storebot/internal/logger"
)

// Sweeper periodically removes pending orders stuck without resolution
// longer than the configured TTL, notifying their buyers. Without it an
// order abandoned in awaiting_proof or awaiting_decision would persist
// forever.
type Sweeper struct {
	flow     *Flow
	ttl      time.Duration
	interval time.Duration
}

// NewSweeper returns a sweeper, or nil when ttl is zero (expiry disabled).
func NewSweeper(flow *Flow, ttl, interval time.Duration) *Sweeper {
	if ttl <= 0 {
		return nil
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{flow: flow, ttl: ttl, interval: interval}
}

// Run blocks until ctx is done, sweeping on every tick.
func (s *Sweeper) Run(ctx context.Context) {
	logger.SVCOrders.Info("sweeper started",
		slog.String("event", "sweep.start"),
		slog.Duration("ttl", s.ttl),
		slog.Duration("interval", s.interval),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.SVCOrders.Info("sweeper stopped",
				slog.String("event", "sweep.stop"),
			)
			return
		case <-ticker.C:
			if n := s.flow.ExpireStale(ctx, s.ttl); n > 0 {
				logger.SVCOrders.Info("stale orders expired",
					slog.String("event", "sweep.run"),
					slog.Int("count", n),
				)
			}
		}
	}
}
