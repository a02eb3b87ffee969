package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/server/audit"
)

// SweepExpired persists the expired status of overdue active records and
// returns how many were flipped. Readers never depend on it: effective
// status is always computed from the clock.
func (s *TokenService) SweepExpired(ctx context.Context) (n int, err error) {
	defer s.observe("sweep_expired", time.Now(), &err)

	now := s.clock()
	flipped, err := s.repo().MarkExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("error marking expired tokens: %w", err)
	}
	for _, t := range flipped {
		s.emit(ctx, audit.EventExpired, t, now)
	}
	if len(flipped) > 0 {
		s.log.Info(ctx, "expired tokens reconciled", "count", len(flipped))
	}
	return len(flipped), nil
}

// RunReconciler sweeps every interval until ctx is done. A non-positive
// interval disables it.
func (s *TokenService) RunReconciler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepExpired(ctx); err != nil && ctx.Err() == nil {
				s.log.Error(ctx, "reconcile failed", "error", err)
			}
		}
	}
}
