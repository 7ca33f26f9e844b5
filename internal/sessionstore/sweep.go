package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playperu/reelquiz/internal/game"
	"github.com/playperu/reelquiz/internal/moviequiz"
)

type SweepResult struct {
	Expired []game.Session
	Evicted []string
}

// Sweep expires idle active sessions and evicts terminal sessions whose
// grace period has passed. A session written concurrently is left for the
// next pass.
func Sweep(ctx context.Context, store Store, now time.Time) (SweepResult, error) {
	due, err := store.Due(ctx, now)
	if err != nil {
		return SweepResult{}, fmt.Errorf("listing due sessions: %w", err)
	}

	var res SweepResult
	for _, s := range due {
		if s.Status == game.StatusActive {
			updated, err := store.Update(ctx, game.Expire(s, now))
			if errors.Is(err, moviequiz.ErrStaleWrite) || errors.Is(err, moviequiz.ErrSessionNotFound) {
				continue
			}
			if err != nil {
				return res, fmt.Errorf("expiring session %s: %w", s.ID, err)
			}
			res.Expired = append(res.Expired, updated)
			continue
		}

		err := store.Delete(ctx, s.ID)
		if errors.Is(err, moviequiz.ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return res, fmt.Errorf("evicting session %s: %w", s.ID, err)
		}
		res.Evicted = append(res.Evicted, s.ID)
	}
	return res, nil
}
