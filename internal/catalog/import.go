package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"

	"github.com/playperu/reelquiz/internal/moviequiz"
)

//go:embed seed.json
var seedJSON []byte

// Entry is one movie in a catalog file.
type Entry struct {
	ID         string             `json:"id"`
	Title      string             `json:"title"`
	Aliases    []string           `json:"aliases,omitempty"`
	Characters []string           `json:"characters,omitempty"`
	Year       int                `json:"year"`
	Industry   string             `json:"industry"`
	Poster     string             `json:"poster"`
	Backdrop   string             `json:"backdrop"`
	Hints      *moviequiz.HintSet `json:"hints,omitempty"`
}

type ImportStats struct {
	Movies   int `json:"movies"`
	Eligible int `json:"eligible"`
	Flagged  int `json:"flagged"`
}

// Import loads a JSON array of entries. It stops at the first entry that
// cannot be stored at all; entries with bad hints are stored flagged.
func (c *Catalog) Import(ctx context.Context, r io.Reader) (ImportStats, error) {
	var entries []Entry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return ImportStats{}, fmt.Errorf("decoding catalog: %w", err)
	}

	var stats ImportStats
	for i, e := range entries {
		industry, err := moviequiz.ParseIndustry(e.Industry)
		if err != nil {
			return stats, fmt.Errorf("entry %d (%s): %w", i, e.ID, err)
		}
		m := moviequiz.Movie{
			ID:           e.ID,
			Title:        e.Title,
			Aliases:      e.Aliases,
			Characters:   e.Characters,
			ReleaseYear:  e.Year,
			Industry:     industry,
			PosterPath:   e.Poster,
			BackdropPath: e.Backdrop,
		}
		eligible, err := c.Upsert(ctx, m, e.Hints)
		if err != nil {
			return stats, fmt.Errorf("entry %d (%s): %w", i, e.ID, err)
		}
		stats.Movies++
		if eligible {
			stats.Eligible++
		} else {
			stats.Flagged++
		}
	}
	return stats, nil
}

// SeedIfEmpty loads the bundled demo catalog into an empty database.
func (c *Catalog) SeedIfEmpty(ctx context.Context) error {
	n, err := c.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	stats, err := c.Import(ctx, bytes.NewReader(seedJSON))
	if err != nil {
		return fmt.Errorf("seeding catalog: %w", err)
	}
	c.logger.Info("demo catalog seeded", "movies", stats.Movies, "eligible", stats.Eligible, "flagged", stats.Flagged)
	return nil
}
