// Package engine runs game sessions end to end: it selects targets from
// the catalog, applies state-machine transitions and persists them with
// optimistic concurrency.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/playperu/reelquiz/internal/game"
	"github.com/playperu/reelquiz/internal/matcher"
	"github.com/playperu/reelquiz/internal/moviequiz"
	"github.com/playperu/reelquiz/internal/ratelimit"
	"github.com/playperu/reelquiz/internal/sessionstore"
)

// maxWriteAttempts bounds the read-apply-write loop on version conflicts.
const maxWriteAttempts = 3

type Catalog interface {
	FindEligibleMovie(ctx context.Context, industry moviequiz.Industry) (moviequiz.Movie, moviequiz.HintSet, error)
	RecordOutcome(ctx context.Context, movieID string, won bool) error
}

type Limiter interface {
	Check(id string) ratelimit.Decision
}

type Notifier interface {
	Publish(ev Event)
}

const (
	EventStarted  = "started"
	EventRevealed = "revealed"
	EventGuessed  = "guessed"
	EventWon      = "won"
	EventLost     = "lost"
	EventExpired  = "expired"
	EventEvicted  = "evicted"
)

// Event is published after every successful session write.
type Event struct {
	Type              string      `json:"type"`
	SessionID         string      `json:"sessionId"`
	Stage             int         `json:"stage"`
	AttemptsRemaining int         `json:"attemptsRemaining"`
	Status            game.Status `json:"status"`
}

type Config struct {
	Game      game.Config
	Retention sessionstore.Retention
}

type Engine struct {
	catalog  Catalog
	store    sessionstore.Store
	limiter  Limiter
	notifier Notifier
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

type Option func(*Engine)

func WithLimiter(l Limiter) Option   { return func(e *Engine) { e.limiter = l } }
func WithNotifier(n Notifier) Option { return func(e *Engine) { e.notifier = n } }

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithIDs(newID func() string) Option { return func(e *Engine) { e.newID = newID } }

func New(catalog Catalog, store sessionstore.Store, cfg Config, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		catalog: catalog,
		store:   store,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) checkRate(client string) error {
	if e.limiter == nil {
		return nil
	}
	d := e.limiter.Check(client)
	if d.Allowed {
		return nil
	}
	return &moviequiz.RateLimitError{RetryAfter: d.RetryAfter}
}

// Start opens a session on a movie of the requested industry.
func (e *Engine) Start(ctx context.Context, client string, industry moviequiz.Industry) (game.Session, error) {
	if err := e.checkRate(client); err != nil {
		return game.Session{}, err
	}

	m, hs, err := e.catalog.FindEligibleMovie(ctx, industry)
	if err != nil {
		return game.Session{}, fmt.Errorf("selecting movie: %w", err)
	}

	s, err := game.Start(e.newID(), m, hs, e.cfg.Game, e.now())
	if err != nil {
		return game.Session{}, err
	}
	created, err := e.store.Create(ctx, s)
	if err != nil {
		return game.Session{}, fmt.Errorf("storing session: %w", err)
	}

	e.logger.Info("session started", "session_id", created.ID, "industry", string(industry), "max_stage", created.MaxStage)
	e.publish(EventStarted, created)
	return created, nil
}

// Get returns the current session. An ACTIVE session past its idle
// timeout is expired on read, as the sweep would have done.
func (e *Engine) Get(ctx context.Context, id string) (game.Session, error) {
	for range maxWriteAttempts {
		s, err := e.store.Get(ctx, id)
		if err != nil {
			return game.Session{}, err
		}
		if !e.idle(s) {
			return s, nil
		}

		expired, err := e.store.Update(ctx, game.Expire(s, e.now()))
		if errors.Is(err, moviequiz.ErrStaleWrite) {
			continue
		}
		if err != nil {
			return game.Session{}, err
		}
		e.logger.Info("session expired on read", "session_id", id)
		e.publish(EventExpired, expired)
		return expired, nil
	}
	return game.Session{}, moviequiz.ErrTransient
}

func (e *Engine) idle(s game.Session) bool {
	return s.Status == game.StatusActive && !e.now().Before(e.cfg.Retention.ExpiresAt(s))
}

// Reveal advances the session one stage.
func (e *Engine) Reveal(ctx context.Context, client, id string) (game.Session, error) {
	return e.mutate(ctx, client, id, EventRevealed, func(s game.Session, _ int64) (game.Session, error) {
		return game.RevealNext(s, e.now())
	})
}

// GiveUp ends the session as LOST.
func (e *Engine) GiveUp(ctx context.Context, client, id string) (game.Session, error) {
	return e.mutate(ctx, client, id, EventLost, func(s game.Session, _ int64) (game.Session, error) {
		return game.GiveUp(s, e.now())
	})
}

// Guess submits a title guess. If a write conflict forces a retry and the
// same guess has meanwhile been recorded by another request, the retry is
// rejected with ErrRedundantGuess instead of spending a second attempt.
func (e *Engine) Guess(ctx context.Context, client, id, text string) (game.Session, matcher.Result, error) {
	normalized := matcher.Normalize(text)
	var res matcher.Result

	s, err := e.mutate(ctx, client, id, EventGuessed, func(s game.Session, readVersion int64) (game.Session, error) {
		if s.Version > readVersion {
			for _, g := range s.Guesses {
				if g.Version > readVersion && matcher.Normalize(g.Text) == normalized {
					return game.Session{}, moviequiz.ErrRedundantGuess
				}
			}
		}
		next, r, err := game.SubmitGuess(s, text, e.now())
		res = r
		return next, err
	})
	if err != nil {
		return game.Session{}, matcher.Result{}, err
	}
	return s, res, nil
}

type transition func(s game.Session, readVersion int64) (game.Session, error)

// mutate runs the load, transition, conditional write loop. readVersion is
// the version seen on the first load, so a transition can tell which
// history entries landed while it was retrying.
func (e *Engine) mutate(ctx context.Context, client, id, kind string, apply transition) (game.Session, error) {
	if err := e.checkRate(client); err != nil {
		return game.Session{}, err
	}

	readVersion := int64(-1)
	for attempt := range maxWriteAttempts {
		s, err := e.Get(ctx, id)
		if err != nil {
			return game.Session{}, err
		}
		if readVersion < 0 {
			readVersion = s.Version
		}

		next, err := apply(s, readVersion)
		if err != nil {
			return game.Session{}, err
		}

		stored, err := e.store.Update(ctx, next)
		if errors.Is(err, moviequiz.ErrStaleWrite) {
			e.logger.Debug("stale session write, retrying", "session_id", id, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return game.Session{}, fmt.Errorf("storing session: %w", err)
		}

		e.finished(ctx, s, stored)
		e.publish(kind, stored)
		return stored, nil
	}

	e.logger.Warn("session write retries exhausted", "session_id", id)
	return game.Session{}, moviequiz.ErrTransient
}

// finished records the outcome of a session that just ended by play.
func (e *Engine) finished(ctx context.Context, before, after game.Session) {
	if before.Status.Terminal() || (after.Status != game.StatusWon && after.Status != game.StatusLost) {
		return
	}
	won := after.Status == game.StatusWon
	if err := e.catalog.RecordOutcome(ctx, after.Target.MovieID, won); err != nil {
		e.logger.Error("recording outcome", "session_id", after.ID, "movie_id", after.Target.MovieID, "error", err)
	}
	e.logger.Info("session finished",
		"session_id", after.ID,
		"status", string(after.Status),
		"stage", after.Stage,
		"attempts_used", after.AttemptsUsed(),
		"gave_up", after.GaveUp,
	)
}

func (e *Engine) publish(kind string, s game.Session) {
	if e.notifier == nil {
		return
	}
	if s.Status.Terminal() && kind != EventEvicted {
		kind = strings.ToLower(string(s.Status))
	}
	e.notifier.Publish(Event{
		Type:              kind,
		SessionID:         s.ID,
		Stage:             s.Stage,
		AttemptsRemaining: s.AttemptsRemaining,
		Status:            s.Status,
	})
}
