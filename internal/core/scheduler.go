package core

// scheduler.go drives the TTL sweep.
//
// The sweep itself lives on the registry; this file only decides when it
// runs. It runs once immediately, then every interval until ctx is
// cancelled, so a restart does not leave stale tables around for a full
// period.

import (
	"context"
	"time"
)

// DefaultSweepInterval is used when the configured interval is not positive.
const DefaultSweepInterval = time.Minute

// StartSweepScheduler blocks, evicting idle tables every interval, until ctx
// is cancelled. Run it in its own goroutine.
func (s *Service) StartSweepScheduler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	s.logger.Info("sweep scheduler started",
		"interval", interval.String(),
		"ttl", s.registry.TTL().String(),
	)

	s.runSweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweep scheduler stopped")
			return
		case <-ticker.C:
			s.runSweep(ctx)
		}
	}
}

func (s *Service) runSweep(ctx context.Context) {
	start := time.Now()
	evicted := s.Sweep(ctx)
	s.logger.Debug("sweep completed",
		"evicted", len(evicted),
		"remaining", s.registry.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
