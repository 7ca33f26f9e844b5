package engine

import (
	"context"
	"time"

	"github.com/playperu/reelquiz/internal/game"
	"github.com/playperu/reelquiz/internal/sessionstore"
)

type pruner interface {
	Prune(now time.Time) int
}

// Sweep expires idle sessions, evicts finished ones past their grace
// period and drops idle rate-limit buckets.
func (e *Engine) Sweep(ctx context.Context) (sessionstore.SweepResult, error) {
	now := e.now()
	res, err := sessionstore.Sweep(ctx, e.store, now)

	for _, s := range res.Expired {
		e.publish(EventExpired, s)
	}
	for _, id := range res.Evicted {
		e.publish(EventEvicted, game.Session{ID: id})
	}

	pruned := 0
	if p, ok := e.limiter.(pruner); ok {
		pruned = p.Prune(now)
	}

	if len(res.Expired) > 0 || len(res.Evicted) > 0 || pruned > 0 {
		e.logger.Info("sweep finished",
			"expired", len(res.Expired),
			"evicted", len(res.Evicted),
			"rate_buckets_pruned", pruned,
		)
	}
	return res, err
}

// RunSweeper sweeps every interval until ctx is cancelled. Sweep errors
// are logged and the loop carries on.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := e.Sweep(ctx); err != nil && ctx.Err() == nil {
				e.logger.Error("session sweep failed", "error", err)
			}
		}
	}
}
