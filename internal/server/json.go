package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/playperu/reelquiz/internal/moviequiz"
)

const maxBodyBytes = 4 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// readJSON decodes a small request body into v. An empty body leaves v
// untouched.
func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeSessionError maps engine and store errors to HTTP responses.
func writeSessionError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var rl *moviequiz.RateLimitError
	switch {
	case errors.As(err, &rl):
		w.Header().Set("Retry-After", retryAfterSeconds(rl.RetryAfter.Seconds()))
		writeError(w, http.StatusTooManyRequests, "too many requests")
	case errors.Is(err, moviequiz.ErrSessionNotFound), errors.Is(err, moviequiz.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, moviequiz.ErrSessionTerminal):
		writeError(w, http.StatusConflict, "session is not active")
	case errors.Is(err, moviequiz.ErrRedundantGuess):
		writeError(w, http.StatusConflict, "guess already recorded")
	case errors.Is(err, moviequiz.ErrNoEligibleMovie):
		writeError(w, http.StatusServiceUnavailable, "no movie available for that industry")
	case errors.Is(err, moviequiz.ErrTransient):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable, retry")
	default:
		logger.Error("session request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func retryAfterSeconds(s float64) string {
	return strconv.Itoa(max(1, int(math.Ceil(s))))
}
