// Package sessionstore keeps live game sessions keyed by their opaque id.
//
// Writes use optimistic concurrency: Update succeeds only when the session's
// Version still matches the stored one, and the stored version then moves
// forward by one. A mismatch returns moviequiz.ErrStaleWrite and the caller
// re-reads and re-applies its transition.
package sessionstore

import (
	"context"
	"time"

	"github.com/playperu/reelquiz/internal/game"
)

type Store interface {
	Create(ctx context.Context, s game.Session) (game.Session, error)
	Get(ctx context.Context, id string) (game.Session, error)
	Update(ctx context.Context, s game.Session) (game.Session, error)
	Delete(ctx context.Context, id string) error
	// Due returns sessions whose expiry timestamp is at or before now.
	Due(ctx context.Context, now time.Time) ([]game.Session, error)
	Close() error
}

// Retention holds the eviction timeouts shared by every session.
type Retention struct {
	IdleTimeout   time.Duration
	TerminalGrace time.Duration
}

func DefaultRetention() Retention {
	return Retention{IdleTimeout: 30 * time.Minute, TerminalGrace: 10 * time.Minute}
}

// ExpiresAt is when s is next due for the sweep: idle expiry for active
// sessions, eviction for terminal ones.
func (r Retention) ExpiresAt(s game.Session) time.Time {
	if s.Status == game.StatusActive {
		return s.LastActivity.Add(r.IdleTimeout)
	}
	if s.EndedAt != nil {
		return s.EndedAt.Add(r.TerminalGrace)
	}
	return s.LastActivity.Add(r.TerminalGrace)
}
