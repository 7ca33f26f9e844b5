// Package hintgen produces hint sets for movies the catalog has no curated
// hints for.
package hintgen

import (
	"context"
	"fmt"
	"strings"

	"github.com/playperu/reelquiz/internal/matcher"
	"github.com/playperu/reelquiz/internal/moviequiz"
)

type Generator interface {
	Generate(ctx context.Context, m moviequiz.Movie) (moviequiz.HintSet, error)
}

// Func adapts a plain function to Generator.
type Func func(ctx context.Context, m moviequiz.Movie) (moviequiz.HintSet, error)

func (f Func) Generate(ctx context.Context, m moviequiz.Movie) (moviequiz.HintSet, error) {
	return f(ctx, m)
}

// minNameToken is the shortest character-name token checked on its own.
// Shorter tokens ("mr", "jr") collide with ordinary words.
const minNameToken = 3

type validating struct {
	next Generator
}

// Validating wraps g so that every returned hint set satisfies the
// non-placeholder invariant and gives nothing away: no tier may name the
// title, an alias or a lead character. Any failure, including one from g
// itself, is reported as moviequiz.ErrGenerationFailed.
func Validating(g Generator) Generator {
	return validating{next: g}
}

func (v validating) Generate(ctx context.Context, m moviequiz.Movie) (moviequiz.HintSet, error) {
	hs, err := v.next.Generate(ctx, m)
	if err != nil {
		return moviequiz.HintSet{}, fmt.Errorf("%w: %w", moviequiz.ErrGenerationFailed, err)
	}
	if err := Check(hs, m); err != nil {
		return moviequiz.HintSet{}, fmt.Errorf("%w: %w", moviequiz.ErrGenerationFailed, err)
	}
	hs.Source = moviequiz.HintSourceGenerated
	return hs, nil
}

// Check reports the first reason hs cannot be served for m.
func Check(hs moviequiz.HintSet, m moviequiz.Movie) error {
	if err := hs.Validate(); err != nil {
		return err
	}

	phrases := spoilers(m)
	for _, t := range moviequiz.Tiers() {
		text := " " + matcher.Normalize(hs.Text(t)) + " "
		for _, p := range phrases {
			if strings.Contains(text, " "+p+" ") {
				return fmt.Errorf("%s hint mentions %q", t, p)
			}
		}
	}
	return nil
}

func spoilers(m moviequiz.Movie) []string {
	var out []string
	add := func(s string) {
		if n := matcher.Normalize(s); n != "" {
			out = append(out, n)
		}
	}

	add(m.Title)
	for _, a := range m.Aliases {
		add(a)
	}
	for _, c := range m.Characters {
		add(c)
		for _, tok := range strings.Fields(matcher.Normalize(c)) {
			if len([]rune(tok)) >= minNameToken {
				out = append(out, tok)
			}
		}
	}
	return out
}
