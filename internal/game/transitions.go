package game

import (
	"errors"
	"strings"
	"time"

	"github.com/playperu/reelquiz/internal/ladder"
	"github.com/playperu/reelquiz/internal/matcher"
	"github.com/playperu/reelquiz/internal/moviequiz"
	"github.com/playperu/reelquiz/internal/scoring"
)

var (
	errInvalidConfig = errors.New("max attempts must be positive")
	errMissingID     = errors.New("session id is required")
)

// Start binds movie to a new ACTIVE session at stage 0.
func Start(id string, m moviequiz.Movie, hints moviequiz.HintSet, cfg Config, now time.Time) (Session, error) {
	if cfg.MaxAttempts <= 0 {
		return Session{}, errInvalidConfig
	}
	if strings.TrimSpace(id) == "" {
		return Session{}, errMissingID
	}

	m = m.Clone()
	normalized := m.NormalizedTitle
	if normalized == "" {
		normalized = matcher.Normalize(m.Title)
	}

	s := Session{
		ID: id,
		Target: Target{
			MovieID:      m.ID,
			Title:        m.Title,
			Normalized:   normalized,
			Aliases:      m.Aliases,
			ReleaseYear:  m.ReleaseYear,
			PosterPath:   m.PosterPath,
			BackdropPath: m.BackdropPath,
		},
		Hints:             hints,
		Industry:          m.Industry,
		MaxAttempts:       cfg.MaxAttempts,
		AttemptsRemaining: cfg.MaxAttempts,
		Guesses:           []Guess{},
		Status:            StatusActive,
		CreatedAt:         now,
		LastActivity:      now,
	}
	s.MaxStage = ladder.New(s.Target.Movie(), hints).MaxStage()
	return s, nil
}

// RevealNext advances one stage. Reaching the full reveal does not end the
// session; the player may keep guessing.
func RevealNext(s Session, now time.Time) (Session, error) {
	if s.Status.Terminal() {
		return s, moviequiz.ErrSessionTerminal
	}
	next := s.clone()
	if next.Stage < next.MaxStage {
		next.Stage++
	}
	next.LastActivity = now
	return next, nil
}

// SubmitGuess evaluates text against the target and records the attempt.
func SubmitGuess(s Session, text string, now time.Time) (Session, matcher.Result, error) {
	if s.Status.Terminal() || s.AttemptsRemaining <= 0 {
		return s, matcher.Result{}, moviequiz.ErrSessionTerminal
	}

	res := matcher.Evaluate(text, s.Target.Movie())

	next := s.clone()
	next.Guesses = append(next.Guesses, Guess{
		Text:       text,
		At:         now,
		Stage:      s.Stage,
		IsMatch:    res.IsMatch,
		Similarity: res.Similarity,
		Version:    s.Version + 1,
	})
	next.LastActivity = now

	if res.IsMatch {
		score := scoring.Score(s.Stage, next.AttemptsUsed(), Elapsed(s, now))
		return finish(next, StatusWon, score, now), res, nil
	}

	next.AttemptsRemaining--
	if next.AttemptsRemaining == 0 {
		return finish(next, StatusLost, scoring.Lost(), now), res, nil
	}
	return next, res, nil
}

// GiveUp ends an ACTIVE session as LOST at the player's request.
func GiveUp(s Session, now time.Time) (Session, error) {
	if s.Status.Terminal() {
		return s, moviequiz.ErrSessionTerminal
	}
	next := s.clone()
	next.GaveUp = true
	next.LastActivity = now
	return finish(next, StatusLost, scoring.Lost(), now), nil
}

// Expire moves an ACTIVE session to EXPIRED. Terminal sessions are returned
// unchanged.
func Expire(s Session, now time.Time) Session {
	if s.Status.Terminal() {
		return s
	}
	next := s.clone()
	next.Status = StatusExpired
	next.EndedAt = &now
	return next
}

func finish(s Session, status Status, score int, now time.Time) Session {
	s.Status = status
	s.Score = &score
	s.EndedAt = &now
	return s
}
