// Package sweeper periodically removes shortened URLs that haven't been
// accessed for a configured idle period.
package sweeper

import (
	"context"
	"log/slog"
	"time"
)

// IdleDeleter is the part of the service layer the sweeper drives.
type IdleDeleter interface {
	// DeleteIdleURLs removes every record last accessed before cutoff and
	// returns the number of records removed.
	DeleteIdleURLs(ctx context.Context, cutoff time.Time) (int, error)
}

// Sweeper runs periodic idle-record sweeps until its context is cancelled.
type Sweeper struct {
	svc      IdleDeleter
	logger   *slog.Logger
	idleTTL  time.Duration
	interval time.Duration
}

// New creates a Sweeper deleting records idle for longer than idleTTL,
// checking every interval.
func New(svc IdleDeleter, logger *slog.Logger, idleTTL, interval time.Duration) *Sweeper {
	return &Sweeper{
		svc:      svc,
		logger:   logger,
		idleTTL:  idleTTL,
		interval: interval,
	}
}

// Run blocks, sweeping on every tick until ctx is cancelled. A failed sweep
// is logged and retried on the next tick; it never stops the loop.
func (s *Sweeper) Run(ctx context.Context) error {
	const op = "sweeper.Sweeper.Run"

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			deleted, err := s.svc.DeleteIdleURLs(ctx, time.Now().Add(-s.idleTTL))
			if err != nil {
				s.logger.Error("idle url sweep failed",
					slog.String("op", op),
					slog.Any("err", err),
				)
				continue
			}

			if deleted > 0 {
				s.logger.Info("idle url sweep finished",
					slog.String("op", op),
					slog.Int("deleted", deleted),
				)
			}
		}
	}
}
