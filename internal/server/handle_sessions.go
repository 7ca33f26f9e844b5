package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/playperu/reelquiz/internal/artwork"
	"github.com/playperu/reelquiz/internal/game"
	"github.com/playperu/reelquiz/internal/matcher"
	"github.com/playperu/reelquiz/internal/moviequiz"
)

const maxGuessRunes = 200

// Sessions is the engine surface the HTTP handlers drive.
type Sessions interface {
	Start(ctx context.Context, client string, industry moviequiz.Industry) (game.Session, error)
	Get(ctx context.Context, id string) (game.Session, error)
	Reveal(ctx context.Context, client, id string) (game.Session, error)
	Guess(ctx context.Context, client, id, text string) (game.Session, matcher.Result, error)
	GiveUp(ctx context.Context, client, id string) (game.Session, error)
}

type CreateSessionRequest struct {
	Industry string `json:"industry"`
}

type GuessRequest struct {
	Guess string `json:"guess"`
}

func handleCreateSession(logger *slog.Logger, sessions Sessions, l links) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSessionRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		industry, err := moviequiz.ParseIndustry(req.Industry)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		s, err := sessions.Start(r.Context(), clientKey(r), industry)
		if err != nil {
			writeSessionError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, newSessionView(s, l))
	}
}

func handleGetSession(logger *slog.Logger, sessions Sessions, l links) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessions.Get(r.Context(), sessionID(r))
		if err != nil {
			writeSessionError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, newSessionView(s, l))
	}
}

func handleReveal(logger *slog.Logger, sessions Sessions, l links) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessions.Reveal(r.Context(), clientKey(r), sessionID(r))
		if err != nil {
			writeSessionError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, newSessionView(s, l))
	}
}

func handleGuess(logger *slog.Logger, sessions Sessions, l links) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GuessRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		text := strings.TrimSpace(req.Guess)
		if text == "" {
			writeError(w, http.StatusBadRequest, "guess is required")
			return
		}
		if utf8.RuneCountInString(text) > maxGuessRunes {
			writeError(w, http.StatusBadRequest, "guess is too long")
			return
		}

		s, res, err := sessions.Guess(r.Context(), clientKey(r), sessionID(r), text)
		if err != nil {
			writeSessionError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, GuessResponse{
			IsMatch:    res.IsMatch,
			Similarity: res.Similarity,
			NearMiss:   res.NearMiss(),
			Session:    newSessionView(s, l),
		})
	}
}

func handleGiveUp(logger *slog.Logger, sessions Sessions, l links) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessions.GiveUp(r.Context(), clientKey(r), sessionID(r))
		if err != nil {
			writeSessionError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, newSessionView(s, l))
	}
}

// handlePoster streams the session's artwork. Bytes are proxied rather
// than redirected so the catalog path never reaches the player.
func handlePoster(logger *slog.Logger, sessions Sessions, images artwork.Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := sessions.Get(r.Context(), sessionID(r))
		if err != nil {
			writeSessionError(w, logger, err)
			return
		}
		path := s.Target.PosterPath
		if r.URL.Query().Get("kind") == "backdrop" {
			path = s.Target.BackdropPath
		}

		img, err := images.Open(r.Context(), path)
		if errors.Is(err, artwork.ErrNotFound) {
			writeError(w, http.StatusNotFound, "artwork not found")
			return
		}
		if err != nil {
			logger.Error("opening artwork", "session_id", s.ID, "error", err)
			writeError(w, http.StatusBadGateway, "artwork unavailable")
			return
		}
		defer img.Body.Close()

		w.Header().Set("Content-Type", img.ContentType)
		if img.Size >= 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(img.Size, 10))
		}
		w.Header().Set("Cache-Control", "private, no-store")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, img.Body); err != nil {
			logger.Debug("streaming artwork", "session_id", s.ID, "error", err)
		}
	}
}
