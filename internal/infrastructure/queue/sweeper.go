package queue

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sirpyerre/tenant-portal/internal/api/metrics"
)

const sweepTimeout = time.Minute

// TokenPurger deletes revoked and expired refresh token records.
type TokenPurger interface {
	PurgeInactiveTokens(ctx context.Context) (int64, error)
}

// TokenSweeper purges inactive refresh tokens on a fixed interval.
type TokenSweeper struct {
	purger   TokenPurger
	interval time.Duration
	log      zerolog.Logger
}

func NewTokenSweeper(purger TokenPurger, interval time.Duration, log zerolog.Logger) *TokenSweeper {
	return &TokenSweeper{purger: purger, interval: interval, log: log}
}

// Run sweeps once per interval until ctx is cancelled. A non-positive interval returns immediately.
func (s *TokenSweeper) Run(ctx context.Context) {
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
			_, _ = s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single purge and reports how many records were removed.
func (s *TokenSweeper) SweepOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	start := time.Now()
	n, err := s.purger.PurgeInactiveTokens(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("refresh token sweep failed")
		return 0, err
	}
	metrics.AuthTokensPurgedTotal.Add(float64(n))
	s.log.Info().Int64("deleted", n).Dur("took", time.Since(start)).Msg("refresh token sweep finished")
	return n, nil
}
