// Package game holds the session state machine. Every transition takes a
// Session value and returns a new one; nothing here performs I/O, so callers
// decide how and when results are persisted.
package game

import (
	"time"

	"github.com/playperu/reelquiz/internal/ladder"
	"github.com/playperu/reelquiz/internal/moviequiz"
)

type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusWon     Status = "WON"
	StatusLost    Status = "LOST"
	StatusExpired Status = "EXPIRED"
)

func (s Status) Terminal() bool {
	return s != StatusActive
}

// Guess is one accepted submission. Entries are never edited or removed.
type Guess struct {
	Text       string    `json:"text"`
	At         time.Time `json:"at"`
	Stage      int       `json:"stage"`
	IsMatch    bool      `json:"isMatch"`
	Similarity float64   `json:"similarity"`
	Version    int64     `json:"version"`
}

// Target is the session's private copy of the movie being guessed.
type Target struct {
	MovieID      string   `json:"movieId"`
	Title        string   `json:"title"`
	Normalized   string   `json:"normalized"`
	Aliases      []string `json:"aliases,omitempty"`
	ReleaseYear  int      `json:"releaseYear"`
	PosterPath   string   `json:"posterPath"`
	BackdropPath string   `json:"backdropPath"`
}

func (t Target) Movie() moviequiz.Movie {
	return moviequiz.Movie{
		ID:              t.MovieID,
		Title:           t.Title,
		NormalizedTitle: t.Normalized,
		Aliases:         append([]string(nil), t.Aliases...),
		ReleaseYear:     t.ReleaseYear,
		PosterPath:      t.PosterPath,
		BackdropPath:    t.BackdropPath,
	}
}

type Session struct {
	ID                string             `json:"id"`
	Target            Target             `json:"target"`
	Hints             moviequiz.HintSet  `json:"hints"`
	Industry          moviequiz.Industry `json:"industry"`
	Stage             int                `json:"stage"`
	MaxStage          int                `json:"maxStage"`
	MaxAttempts       int                `json:"maxAttempts"`
	AttemptsRemaining int                `json:"attemptsRemaining"`
	Guesses           []Guess            `json:"guesses"`
	Status            Status             `json:"status"`
	Score             *int               `json:"score,omitempty"`
	GaveUp            bool               `json:"gaveUp,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
	LastActivity      time.Time          `json:"lastActivity"`
	EndedAt           *time.Time         `json:"endedAt,omitempty"`

	// Version is owned by the session store and bumped on every write.
	Version int64 `json:"-"`
}

type Config struct {
	MaxAttempts int
}

func DefaultConfig() Config {
	return Config{MaxAttempts: 5}
}

// Ladder rebuilds the session's hint ladder from its own snapshot.
func Ladder(s Session) *ladder.Ladder {
	return ladder.New(s.Target.Movie(), s.Hints)
}

// Elapsed is the play time between session start and at.
func Elapsed(s Session, at time.Time) time.Duration {
	if at.Before(s.CreatedAt) {
		return 0
	}
	return at.Sub(s.CreatedAt)
}

func (s Session) AttemptsUsed() int {
	return len(s.Guesses)
}

// clone copies s so that appending to the result never writes into
// the caller's backing arrays.
func (s Session) clone() Session {
	c := s
	c.Guesses = make([]Guess, len(s.Guesses), len(s.Guesses)+1)
	copy(c.Guesses, s.Guesses)
	c.Target.Aliases = append([]string(nil), s.Target.Aliases...)
	if s.Score != nil {
		v := *s.Score
		c.Score = &v
	}
	if s.EndedAt != nil {
		v := *s.EndedAt
		c.EndedAt = &v
	}
	return c
}
