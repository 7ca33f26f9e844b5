package catalog

import (
	"context"
	"fmt"

	"github.com/playperu/reelquiz/internal/matcher"
	"github.com/playperu/reelquiz/internal/moviequiz"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

type SearchResult struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	ReleaseYear int    `json:"releaseYear"`
	PosterPath  string `json:"posterPath"`
}

// SearchByTitle matches the normalized query against titles and aliases.
// Exact matches come first, then substring matches; ties are broken by
// solve count and then title.
func (c *Catalog) SearchByTitle(ctx context.Context, query string, industry moviequiz.Industry, limit int) ([]SearchResult, error) {
	q := matcher.Normalize(query)
	if q == "" {
		return []SearchResult{}, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	limit = min(limit, maxSearchLimit)

	// Normalized text holds only letters, digits and spaces, so it needs
	// no LIKE escaping.
	like := "%" + q + "%"
	rows, err := c.db.QueryContext(ctx,
		`SELECT m.id, m.title, m.release_year, m.poster_path,
			MIN(CASE WHEN m.normalized_title = ? OR a.normalized_alias = ? THEN 0 ELSE 1 END) AS rank
		 FROM movies m
		 LEFT JOIN movie_aliases a ON a.movie_id = m.id
		 WHERE (m.normalized_title LIKE ? OR a.normalized_alias LIKE ?)
		   AND (? = '' OR m.industry = ?)
		 GROUP BY m.id
		 ORDER BY rank, m.solves DESC, m.title
		 LIMIT ?`,
		q, q, like, like, string(industry), string(industry), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching titles: %w", err)
	}
	defer rows.Close()

	results := []SearchResult{}
	for rows.Next() {
		var (
			r    SearchResult
			rank int
		)
		if err := rows.Scan(&r.ID, &r.Title, &r.ReleaseYear, &r.PosterPath, &rank); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
