package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/playperu/reelquiz/internal/catalog"
	"github.com/playperu/reelquiz/internal/moviequiz"
)

type Searcher interface {
	SearchByTitle(ctx context.Context, query string, industry moviequiz.Industry, limit int) ([]catalog.SearchResult, error)
}

// handleSearch backs guess autocomplete.
func handleSearch(logger *slog.Logger, search Searcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		industry, err := moviequiz.ParseIndustry(q.Get("industry"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		limit := 0
		if raw := q.Get("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil || limit < 1 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
		}

		results, err := search.SearchByTitle(r.Context(), q.Get("q"), industry, limit)
		if err != nil {
			logger.Error("searching titles", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, results)
	}
}
