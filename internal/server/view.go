package server

import (
	"time"

	"github.com/playperu/reelquiz/internal/game"
	"github.com/playperu/reelquiz/internal/ladder"
	"github.com/playperu/reelquiz/internal/matcher"
)

type GuessView struct {
	Text       string    `json:"text"`
	At         time.Time `json:"at"`
	Stage      int       `json:"stage"`
	IsMatch    bool      `json:"isMatch"`
	Similarity float64   `json:"similarity"`
	NearMiss   bool      `json:"nearMiss"`
}

// AnswerView is only present once a session is WON or LOST.
type AnswerView struct {
	MovieID      string `json:"movieId"`
	Title        string `json:"title"`
	ReleaseYear  int    `json:"releaseYear"`
	PosterPath   string `json:"posterPath"`
	BackdropPath string `json:"backdropPath"`
}

type SessionView struct {
	ID                string        `json:"id"`
	Status            game.Status   `json:"status"`
	Industry          string        `json:"industry"`
	Stage             int           `json:"stage"`
	MaxStage          int           `json:"maxStage"`
	AttemptsRemaining int           `json:"attemptsRemaining"`
	MaxAttempts       int           `json:"maxAttempts"`
	Reveal            ladder.Reveal `json:"reveal"`
	Guesses           []GuessView   `json:"guesses"`
	Score             *int          `json:"score,omitempty"`
	GaveUp            bool          `json:"gaveUp,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
	EndedAt           *time.Time    `json:"endedAt,omitempty"`
	PosterURL         string        `json:"posterUrl"`
	ShareURL          string        `json:"shareUrl"`
	Answer            *AnswerView   `json:"answer,omitempty"`
}

type GuessResponse struct {
	IsMatch    bool        `json:"isMatch"`
	Similarity float64     `json:"similarity"`
	NearMiss   bool        `json:"nearMiss"`
	Session    SessionView `json:"session"`
}

// links builds the client-facing URLs of a session.
type links struct {
	publicBase string
}

func (l links) poster(id string) string { return "/api/sessions/" + id + "/poster" }
func (l links) share(id string) string  { return l.publicBase + "/play/" + id }

// newSessionView projects s for the player. The target stays hidden until
// the session is WON or LOST; an EXPIRED session never reveals it.
func newSessionView(s game.Session, l links) SessionView {
	solved := s.Status == game.StatusWon || s.Status == game.StatusLost

	stage := s.Stage
	if solved {
		stage = s.MaxStage
	}

	guesses := make([]GuessView, len(s.Guesses))
	for i, g := range s.Guesses {
		res := matcher.Result{IsMatch: g.IsMatch, Similarity: g.Similarity}
		guesses[i] = GuessView{
			Text:       g.Text,
			At:         g.At,
			Stage:      g.Stage,
			IsMatch:    g.IsMatch,
			Similarity: g.Similarity,
			NearMiss:   res.NearMiss(),
		}
	}

	v := SessionView{
		ID:                s.ID,
		Status:            s.Status,
		Industry:          string(s.Industry),
		Stage:             s.Stage,
		MaxStage:          s.MaxStage,
		AttemptsRemaining: s.AttemptsRemaining,
		MaxAttempts:       s.MaxAttempts,
		Reveal:            game.Ladder(s).At(stage),
		Guesses:           guesses,
		Score:             s.Score,
		GaveUp:            s.GaveUp,
		CreatedAt:         s.CreatedAt,
		EndedAt:           s.EndedAt,
		PosterURL:         l.poster(s.ID),
		ShareURL:          l.share(s.ID),
	}
	if solved {
		v.Answer = &AnswerView{
			MovieID:      s.Target.MovieID,
			Title:        s.Target.Title,
			ReleaseYear:  s.Target.ReleaseYear,
			PosterPath:   s.Target.PosterPath,
			BackdropPath: s.Target.BackdropPath,
		}
	}
	return v
}
