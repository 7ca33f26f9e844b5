// Package moviequiz defines the core domain types and error values.
// It has zero external dependencies.
package moviequiz

import (
	"fmt"
	"strings"
)

type Industry string

const (
	IndustryAny       Industry = ""
	IndustryHollywood Industry = "HOLLYWOOD"
	IndustryBollywood Industry = "BOLLYWOOD"
	IndustryAnime     Industry = "ANIME"
	IndustryGlobal    Industry = "GLOBAL"
)

// Industries lists every concrete industry tag.
func Industries() []Industry {
	return []Industry{IndustryHollywood, IndustryBollywood, IndustryAnime, IndustryGlobal}
}

// ParseIndustry accepts any casing. The empty string parses as IndustryAny.
func ParseIndustry(s string) (Industry, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" || s == "ANY" {
		return IndustryAny, nil
	}
	for _, ind := range Industries() {
		if string(ind) == s {
			return ind, nil
		}
	}
	return IndustryAny, fmt.Errorf("unknown industry %q", s)
}

type Movie struct {
	ID              string
	Title           string
	NormalizedTitle string
	Aliases         []string
	Characters      []string
	ReleaseYear     int
	Industry        Industry
	PosterPath      string
	BackdropPath    string
	Plays           int
	Solves          int
}

// HasArtwork reports whether the movie carries the poster and backdrop
// references a session needs before it can be selected.
func (m Movie) HasArtwork() bool {
	return strings.TrimSpace(m.PosterPath) != "" && strings.TrimSpace(m.BackdropPath) != ""
}

func (m Movie) SolveRate() float64 {
	if m.Plays == 0 {
		return 0
	}
	return float64(m.Solves) / float64(m.Plays)
}

// Clone returns a copy that shares no slices with m.
func (m Movie) Clone() Movie {
	m.Aliases = append([]string(nil), m.Aliases...)
	m.Characters = append([]string(nil), m.Characters...)
	return m
}
