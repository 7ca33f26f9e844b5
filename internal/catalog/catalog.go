// Package catalog owns the movie library: selection of session targets,
// hint sets, autocomplete search and solve-rate statistics.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/playperu/reelquiz/internal/hintgen"
	"github.com/playperu/reelquiz/internal/matcher"
	"github.com/playperu/reelquiz/internal/moviequiz"
)

const (
	candidatesPerRound = 8
	maxRounds          = 3

	// generationTimeout bounds a shared generation call, which runs
	// detached from the request that started it.
	generationTimeout = 30 * time.Second
)

var errNoHints = errors.New("movie has no hints and no generator is configured")

// Catalog is backed by the tables created in internal/migrations.
type Catalog struct {
	db     *sql.DB
	gen    hintgen.Generator
	logger *slog.Logger
	group  singleflight.Group
}

// New returns a catalog over db. gen may be nil, in which case movies
// without stored hints are never selected.
func New(db *sql.DB, gen hintgen.Generator, logger *slog.Logger) *Catalog {
	return &Catalog{db: db, gen: gen, logger: logger}
}

const movieColumns = `id, title, normalized_title, release_year, industry,
	poster_path, backdrop_path, characters, plays, solves`

type scanner interface {
	Scan(dest ...any) error
}

func scanMovie(row scanner) (moviequiz.Movie, error) {
	var (
		m          moviequiz.Movie
		industry   string
		characters string
	)
	err := row.Scan(&m.ID, &m.Title, &m.NormalizedTitle, &m.ReleaseYear, &industry,
		&m.PosterPath, &m.BackdropPath, &characters, &m.Plays, &m.Solves)
	if err != nil {
		return moviequiz.Movie{}, err
	}
	m.Industry = moviequiz.Industry(industry)
	if err := json.Unmarshal([]byte(characters), &m.Characters); err != nil {
		return moviequiz.Movie{}, fmt.Errorf("decoding characters of %s: %w", m.ID, err)
	}
	return m, nil
}

// Get loads a movie and its aliases.
func (c *Catalog) Get(ctx context.Context, id string) (moviequiz.Movie, error) {
	m, err := scanMovie(c.db.QueryRowContext(ctx,
		`SELECT `+movieColumns+` FROM movies WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return moviequiz.Movie{}, moviequiz.ErrNotFound
	}
	if err != nil {
		return moviequiz.Movie{}, err
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT alias FROM movie_aliases WHERE movie_id = ? ORDER BY alias`, id)
	if err != nil {
		return moviequiz.Movie{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var alias string
		if err := rows.Scan(&alias); err != nil {
			return moviequiz.Movie{}, err
		}
		m.Aliases = append(m.Aliases, alias)
	}
	return m, rows.Err()
}

func (c *Catalog) GetHintSet(ctx context.Context, movieID string) (moviequiz.HintSet, error) {
	var hs moviequiz.HintSet
	err := c.db.QueryRowContext(ctx,
		`SELECT dialogue, emoji, trivia, location, source FROM hint_sets WHERE movie_id = ?`, movieID,
	).Scan(&hs.Dialogue, &hs.Emoji, &hs.Trivia, &hs.Location, &hs.Source)
	if errors.Is(err, sql.ErrNoRows) {
		return moviequiz.HintSet{}, moviequiz.ErrNotFound
	}
	if err != nil {
		return moviequiz.HintSet{}, err
	}
	return hs, nil
}

// FindEligibleMovie picks a random movie of the given industry that has
// artwork and a servable hint set. Missing hints are generated on the
// spot; a movie whose generation fails is flagged and never offered again.
func (c *Catalog) FindEligibleMovie(ctx context.Context, industry moviequiz.Industry) (moviequiz.Movie, moviequiz.HintSet, error) {
	tried := make(map[string]bool)

	for range maxRounds {
		ids, err := c.candidates(ctx, industry)
		if err != nil {
			return moviequiz.Movie{}, moviequiz.HintSet{}, err
		}

		progressed := false
		for _, id := range ids {
			if tried[id] {
				continue
			}
			tried[id] = true
			progressed = true

			m, err := c.Get(ctx, id)
			if errors.Is(err, moviequiz.ErrNotFound) {
				continue
			}
			if err != nil {
				return moviequiz.Movie{}, moviequiz.HintSet{}, err
			}

			hs, err := c.hintsFor(ctx, m)
			switch {
			case err == nil:
				return m, hs, nil
			case errors.Is(err, errNoHints):
				continue
			case ctx.Err() != nil:
				return moviequiz.Movie{}, moviequiz.HintSet{}, ctx.Err()
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				// A timeout says nothing about the movie; try it again next time.
				c.logger.Warn("hint generation timed out", "movie_id", m.ID, "error", err)
				continue
			case errors.Is(err, moviequiz.ErrGenerationFailed):
				c.logger.Warn("hint generation failed, flagging movie", "movie_id", m.ID, "error", err)
				if err := c.flagIneligible(ctx, m.ID, err.Error()); err != nil {
					return moviequiz.Movie{}, moviequiz.HintSet{}, err
				}
				continue
			default:
				return moviequiz.Movie{}, moviequiz.HintSet{}, err
			}
		}
		if !progressed {
			break
		}
	}
	return moviequiz.Movie{}, moviequiz.HintSet{}, moviequiz.ErrNoEligibleMovie
}

func (c *Catalog) candidates(ctx context.Context, industry moviequiz.Industry) ([]string, error) {
	query := `SELECT m.id FROM movies m
		WHERE m.ineligible = 0
		  AND trim(m.poster_path) != '' AND trim(m.backdrop_path) != ''
		  AND (? = '' OR m.industry = ?)`
	args := []any{string(industry), string(industry)}
	if c.gen == nil {
		query += ` AND EXISTS (SELECT 1 FROM hint_sets h WHERE h.movie_id = m.id)`
	}
	query += ` ORDER BY random() LIMIT ?`
	args = append(args, candidatesPerRound)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("selecting candidates: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (c *Catalog) hintsFor(ctx context.Context, m moviequiz.Movie) (moviequiz.HintSet, error) {
	hs, err := c.GetHintSet(ctx, m.ID)
	if err == nil || !errors.Is(err, moviequiz.ErrNotFound) {
		return hs, err
	}
	if c.gen == nil {
		return moviequiz.HintSet{}, errNoHints
	}

	// Concurrent sessions landing on the same hintless movie share one
	// call. It runs under its own deadline so one caller going away does
	// not fail the others; each caller still stops waiting on its own ctx.
	ch := c.group.DoChan(m.ID, func() (any, error) {
		gctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), generationTimeout)
		defer cancel()
		return c.generate(gctx, m)
	})
	select {
	case <-ctx.Done():
		return moviequiz.HintSet{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return moviequiz.HintSet{}, res.Err
		}
		return res.Val.(moviequiz.HintSet), nil
	}
}

// generate asks the generator for hints, checks and stores them. Every
// generator error is reported as ErrGenerationFailed, whether or not the
// generator was wrapped with hintgen.Validating.
func (c *Catalog) generate(ctx context.Context, m moviequiz.Movie) (moviequiz.HintSet, error) {
	hs, err := c.gen.Generate(ctx, m)
	if err != nil {
		if errors.Is(err, moviequiz.ErrGenerationFailed) {
			return moviequiz.HintSet{}, err
		}
		return moviequiz.HintSet{}, fmt.Errorf("%w: %w", moviequiz.ErrGenerationFailed, err)
	}
	if err := hintgen.Check(hs, m); err != nil {
		return moviequiz.HintSet{}, fmt.Errorf("%w: %w", moviequiz.ErrGenerationFailed, err)
	}
	hs.Source = moviequiz.HintSourceGenerated
	if err := c.putHintSet(ctx, c.db, m.ID, hs); err != nil {
		return moviequiz.HintSet{}, err
	}
	c.logger.Info("stored generated hints", "movie_id", m.ID)
	return hs, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (c *Catalog) putHintSet(ctx context.Context, db execer, movieID string, hs moviequiz.HintSet) error {
	source := hs.Source
	if source == "" {
		source = moviequiz.HintSourceCurated
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO hint_sets (movie_id, dialogue, emoji, trivia, location, source)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (movie_id) DO UPDATE SET
			dialogue = excluded.dialogue, emoji = excluded.emoji,
			trivia = excluded.trivia, location = excluded.location,
			source = excluded.source,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		movieID, hs.Dialogue, hs.Emoji, hs.Trivia, hs.Location, source,
	)
	if err != nil {
		return fmt.Errorf("storing hints for %s: %w", movieID, err)
	}
	return nil
}

func (c *Catalog) flagIneligible(ctx context.Context, id, reason string) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE movies SET ineligible = 1, ineligible_reason = ?,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		 WHERE id = ?`, reason, id)
	if err != nil {
		return fmt.Errorf("flagging %s: %w", id, err)
	}
	return nil
}

// Upsert ingests a movie and, when hs is non-nil, its hint set. The
// normalized title is computed here and nowhere else. A hint set that
// fails validation is stored but the movie is flagged ineligible, so
// placeholder text never reaches a session. Upsert reports whether the
// movie is selectable afterwards.
func (c *Catalog) Upsert(ctx context.Context, m moviequiz.Movie, hs *moviequiz.HintSet) (bool, error) {
	if strings.TrimSpace(m.ID) == "" || strings.TrimSpace(m.Title) == "" {
		return false, errors.New("movie id and title are required")
	}
	if m.Industry == moviequiz.IndustryAny {
		return false, fmt.Errorf("movie %s: industry is required", m.ID)
	}
	m.NormalizedTitle = matcher.Normalize(m.Title)

	reason := ""
	if hs != nil {
		if err := hintgen.Check(*hs, m); err != nil {
			reason = err.Error()
		}
	}

	characters, err := json.Marshal(append([]string{}, m.Characters...))
	if err != nil {
		return false, err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO movies (id, title, normalized_title, release_year, industry,
			poster_path, backdrop_path, characters, ineligible, ineligible_reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			title = excluded.title, normalized_title = excluded.normalized_title,
			release_year = excluded.release_year, industry = excluded.industry,
			poster_path = excluded.poster_path, backdrop_path = excluded.backdrop_path,
			characters = excluded.characters,
			ineligible = excluded.ineligible, ineligible_reason = excluded.ineligible_reason,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		m.ID, m.Title, m.NormalizedTitle, m.ReleaseYear, string(m.Industry),
		m.PosterPath, m.BackdropPath, string(characters), boolInt(reason != ""), reason,
	)
	if err != nil {
		return false, fmt.Errorf("upserting movie %s: %w", m.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM movie_aliases WHERE movie_id = ?`, m.ID); err != nil {
		return false, err
	}
	for _, alias := range m.Aliases {
		n := matcher.Normalize(alias)
		if n == "" {
			continue
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO movie_aliases (movie_id, alias, normalized_alias) VALUES (?, ?, ?)`,
			m.ID, alias, n)
		if err != nil {
			return false, fmt.Errorf("storing alias for %s: %w", m.ID, err)
		}
	}

	if hs != nil {
		if err := c.putHintSet(ctx, tx, m.ID, *hs); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	if reason != "" {
		c.logger.Warn("movie flagged ineligible at ingestion", "movie_id", m.ID, "reason", reason)
	}
	return reason == "" && m.HasArtwork(), nil
}

// RecordOutcome counts a finished session towards the movie's solve rate.
func (c *Catalog) RecordOutcome(ctx context.Context, movieID string, won bool) error {
	result, err := c.db.ExecContext(ctx,
		`UPDATE movies SET plays = plays + 1, solves = solves + ? WHERE id = ?`,
		boolInt(won), movieID)
	if err != nil {
		return fmt.Errorf("recording outcome for %s: %w", movieID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return moviequiz.ErrNotFound
	}
	return nil
}

func (c *Catalog) Count(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT count(*) FROM movies`).Scan(&n)
	return n, err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
