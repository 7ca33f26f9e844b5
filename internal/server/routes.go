package server

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"

	"github.com/playperu/reelquiz/internal/handler/health"
)

func addRoutes(r chi.Router, logger *slog.Logger, deps Deps) {
	l := links{publicBase: deps.PublicBaseURL}

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("ReelQuiz API", "/openapi.json", "/docs"))
	r.Mount("/healthz", health.NewHandler(logger, deps.Checks).Routes())

	r.Post("/api/sessions", handleCreateSession(logger, deps.Sessions, l))

	// Session routes: {id} validated by sessionMiddleware.
	r.Route("/api/sessions/{id}", func(r chi.Router) {
		r.Use(sessionMiddleware)
		r.Get("/", handleGetSession(logger, deps.Sessions, l))
		r.Post("/reveal", handleReveal(logger, deps.Sessions, l))
		r.Post("/guess", handleGuess(logger, deps.Sessions, l))
		r.Post("/giveup", handleGiveUp(logger, deps.Sessions, l))
		r.Get("/events", handleEvents(logger, deps.Sessions, deps.Broker, l))
		r.Get("/ws", handleWS(logger, deps.Sessions, deps.Broker, l))
		r.Get("/share.png", handleShareQR(logger, deps.Sessions, l))
		r.Get("/poster", handlePoster(logger, deps.Sessions, deps.Artwork))
	})

	r.Get("/api/movies/search", handleSearch(logger, deps.Search))
}
