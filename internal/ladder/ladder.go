// Package ladder decides which hints a player sees at each reveal stage.
//
// Stage 0 shows only the most blurred poster. Each following stage adds one
// usable hint tier and sharpens the poster. The final stage is the full
// reveal: every hint plus the unblurred poster.
package ladder

import (
	"fmt"

	"github.com/playperu/reelquiz/internal/moviequiz"
)

const (
	MaxBlur = 40
	MinBlur = 4
)

type Hint struct {
	Tier     string `json:"tier"`
	Text     string `json:"text"`
	Degraded bool   `json:"degraded,omitempty"`
}

type Reveal struct {
	Stage      int    `json:"stage"`
	Blur       int    `json:"blur"`
	Hints      []Hint `json:"hints"`
	FullReveal bool   `json:"fullReveal"`
}

// Ladder is immutable once built.
type Ladder struct {
	hints []Hint
}

// New builds the ladder for a movie. Tiers with unusable text are replaced by
// a metadata-derived hint when one exists and skipped otherwise.
func New(m moviequiz.Movie, hs moviequiz.HintSet) *Ladder {
	l := &Ladder{}
	for _, t := range moviequiz.Tiers() {
		text := hs.Text(t)
		if moviequiz.Usable(text) {
			l.hints = append(l.hints, Hint{Tier: t.String(), Text: text})
			continue
		}
		if sub, ok := substitute(t, m); ok {
			l.hints = append(l.hints, Hint{Tier: t.String(), Text: sub, Degraded: true})
		}
	}
	return l
}

func substitute(t moviequiz.Tier, m moviequiz.Movie) (string, bool) {
	switch t {
	case moviequiz.TierTrivia:
		if m.ReleaseYear > 0 {
			return fmt.Sprintf("Released in %d.", m.ReleaseYear), true
		}
	}
	return "", false
}

// MaxStage is the full-reveal stage.
func (l *Ladder) MaxStage() int {
	return len(l.hints) + 1
}

// At returns the reveal for stage, clamped to [0, MaxStage].
func (l *Ladder) At(stage int) Reveal {
	stage = max(0, min(stage, l.MaxStage()))

	visible := min(stage, len(l.hints))
	hints := make([]Hint, visible)
	copy(hints, l.hints[:visible])

	return Reveal{
		Stage:      stage,
		Blur:       l.blur(stage),
		Hints:      hints,
		FullReveal: stage == l.MaxStage(),
	}
}

func (l *Ladder) blur(stage int) int {
	last := len(l.hints)
	switch {
	case stage >= l.MaxStage():
		return 0
	case last == 0:
		return MaxBlur
	}
	return MaxBlur - (MaxBlur-MinBlur)*stage/last
}
