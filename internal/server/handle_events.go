package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/playperu/reelquiz/internal/engine"
)

// handleEvents streams a session's events as Server-Sent Events. The first
// event is the current session view; the stream ends when the session is
// evicted or the client goes away.
func handleEvents(logger *slog.Logger, sessions Sessions, broker *Broker, l links) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := sessionID(r)

		// Subscribe before reading so no event between the read and the
		// subscription is lost.
		ch := broker.Subscribe(id)
		defer broker.Unsubscribe(id, ch)

		s, err := sessions.Get(r.Context(), id)
		if err != nil {
			writeSessionError(w, logger, err)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		initial, _ := json.Marshal(newSessionView(s, l))
		fmt.Fprintf(w, "event: state\ndata: %s\n\n", initial)
		flusher.Flush()

		ping := time.NewTicker(30 * time.Second)
		defer ping.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case data := <-ch:
				var ev engine.Event
				json.Unmarshal(data, &ev)
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
				flusher.Flush()
				if ev.Type == engine.EventEvicted {
					return
				}
			case <-ping.C:
				fmt.Fprintf(w, ": ping\n\n")
				flusher.Flush()
			}
		}
	}
}
