// AngelaMos | 2026
// sweeper.go

package auth

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically deletes refresh records that expired more than
// retention ago. Session correctness never depends on it running.
type Sweeper struct {
	repo      Repository
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger
}

func NewSweeper(
	repo Repository,
	interval, retention time.Duration,
	logger *slog.Logger,
) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		repo:      repo,
		interval:  interval,
		retention: retention,
		logger:    logger.With("component", "session_sweeper"),
	}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) int64 {
	n, err := s.repo.DeleteExpired(ctx, s.retention)
	if err != nil {
		s.logger.WarnContext(ctx, "sweep expired refresh tokens failed", "error", err)
		return 0
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "swept expired refresh tokens", "deleted", n)
	}
	return n
}
