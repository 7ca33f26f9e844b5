package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/playperu/reelquiz/internal/catalog"
	"github.com/playperu/reelquiz/internal/engine"
	"github.com/playperu/reelquiz/internal/handler/health"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

type sessionPath struct {
	ID string `path:"id" format:"uuid"`
}

type guessInput struct {
	sessionPath
	GuessRequest
}

type searchQuery struct {
	Q        string `query:"q" description:"Title or alias fragment."`
	Industry string `query:"industry" enum:"HOLLYWOOD,BOLLYWOOD,ANIME,GLOBAL"`
	Limit    int    `query:"limit" minimum:"1" maximum:"50"`
}

type posterQuery struct {
	sessionPath
	Kind string `query:"kind" enum:"poster,backdrop"`
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "ReelQuiz API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Guess the movie from progressively revealed artwork and hints.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Returns the health status of backend dependencies.")
	getHealthz.AddRespStructure(map[string]health.Result{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(map[string]health.Result{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// POST /api/sessions
	postSession, _ := r.NewOperationContext(http.MethodPost, "/api/sessions")
	postSession.SetSummary("Start a session")
	postSession.SetDescription("Picks an eligible movie of the requested industry (any when blank) and opens a session at stage 0.")
	postSession.AddReqStructure(CreateSessionRequest{})
	postSession.AddRespStructure(SessionView{}, openapi.WithHTTPStatus(http.StatusCreated))
	postSession.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	postSession.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusTooManyRequests))
	postSession.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(postSession)

	// GET /api/sessions/{id}
	getSession, _ := r.NewOperationContext(http.MethodGet, "/api/sessions/{id}")
	getSession.SetSummary("Get session")
	getSession.SetDescription("Returns the player's view of a session. The answer is only included once the session is WON or LOST.")
	getSession.AddReqStructure(sessionPath{})
	getSession.AddRespStructure(SessionView{}, openapi.WithHTTPStatus(http.StatusOK))
	getSession.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getSession)

	// POST /api/sessions/{id}/reveal
	postReveal, _ := r.NewOperationContext(http.MethodPost, "/api/sessions/{id}/reveal")
	postReveal.SetSummary("Reveal next stage")
	postReveal.SetDescription("Sharpens the artwork and unlocks the next hint. Idempotent at the last stage.")
	postReveal.AddReqStructure(sessionPath{})
	postReveal.AddRespStructure(SessionView{}, openapi.WithHTTPStatus(http.StatusOK))
	postReveal.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	postReveal.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	postReveal.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusTooManyRequests))
	_ = r.AddOperation(postReveal)

	// POST /api/sessions/{id}/guess
	postGuess, _ := r.NewOperationContext(http.MethodPost, "/api/sessions/{id}/guess")
	postGuess.SetSummary("Submit a guess")
	postGuess.SetDescription("Matches a title guess against the target. A miss spends one attempt.")
	postGuess.AddReqStructure(guessInput{})
	postGuess.AddRespStructure(GuessResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	postGuess.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	postGuess.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	postGuess.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	postGuess.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusTooManyRequests))
	_ = r.AddOperation(postGuess)

	// POST /api/sessions/{id}/giveup
	postGiveUp, _ := r.NewOperationContext(http.MethodPost, "/api/sessions/{id}/giveup")
	postGiveUp.SetSummary("Give up")
	postGiveUp.SetDescription("Ends the session as LOST and reveals the answer.")
	postGiveUp.AddReqStructure(sessionPath{})
	postGiveUp.AddRespStructure(SessionView{}, openapi.WithHTTPStatus(http.StatusOK))
	postGiveUp.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	postGiveUp.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(postGiveUp)

	// GET /api/sessions/{id}/events
	getEvents, _ := r.NewOperationContext(http.MethodGet, "/api/sessions/{id}/events")
	getEvents.SetSummary("SSE event stream")
	getEvents.SetDescription("Server-Sent Events for the session. The first event is `state` with the session view; later events carry an Event payload.")
	getEvents.AddReqStructure(sessionPath{})
	getEvents.AddRespStructure(engine.Event{}, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("text/event-stream"))
	getEvents.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getEvents)

	// GET /api/sessions/{id}/ws
	getWS, _ := r.NewOperationContext(http.MethodGet, "/api/sessions/{id}/ws")
	getWS.SetSummary("WebSocket event push")
	getWS.SetDescription("Upgrades to a WebSocket that pushes the same events as the SSE stream as JSON messages.")
	getWS.AddReqStructure(sessionPath{})
	getWS.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols))
	getWS.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getWS)

	// GET /api/sessions/{id}/share.png
	getShare, _ := r.NewOperationContext(http.MethodGet, "/api/sessions/{id}/share.png")
	getShare.SetSummary("Share QR code")
	getShare.SetDescription("PNG QR code encoding the session's share link.")
	getShare.AddReqStructure(sessionPath{})
	getShare.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK), openapi.WithContentType("image/png"))
	getShare.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getShare)

	// GET /api/sessions/{id}/poster
	getPoster, _ := r.NewOperationContext(http.MethodGet, "/api/sessions/{id}/poster")
	getPoster.SetSummary("Session artwork")
	getPoster.SetDescription("Streams the target's poster or backdrop. Blur is applied client-side from the session view.")
	getPoster.AddReqStructure(posterQuery{})
	getPoster.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK), openapi.WithContentType("image/*"))
	getPoster.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	getPoster.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadGateway))
	_ = r.AddOperation(getPoster)

	// GET /api/movies/search
	getSearch, _ := r.NewOperationContext(http.MethodGet, "/api/movies/search")
	getSearch.SetSummary("Search titles")
	getSearch.SetDescription("Autocomplete for guesses. Exact title or alias matches rank first.")
	getSearch.AddReqStructure(searchQuery{})
	getSearch.AddRespStructure([]catalog.SearchResult{}, openapi.WithHTTPStatus(http.StatusOK))
	getSearch.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	_ = r.AddOperation(getSearch)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
