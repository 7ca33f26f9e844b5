package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/playperu/reelquiz/internal/engine"
)

const wsWriteTimeout = 5 * time.Second

// handleWS pushes the same events as handleEvents over a WebSocket. Client
// messages are ignored; the socket is push-only.
func handleWS(logger *slog.Logger, sessions Sessions, broker *Broker, l links) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := sessionID(r)
		ch := broker.Subscribe(id)
		defer broker.Unsubscribe(id, ch)

		s, err := sessions.Get(r.Context(), id)
		if err != nil {
			writeSessionError(w, logger, err)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Error("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		// CloseRead handles pings and close frames, and cancels ctx when
		// the client disconnects.
		ctx := conn.CloseRead(r.Context())

		if err := writeWS(ctx, conn, map[string]any{"type": "state", "session": newSessionView(s, l)}); err != nil {
			logger.Debug("websocket write failed", "session_id", id, "error", err)
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case data := <-ch:
				var ev engine.Event
				json.Unmarshal(data, &ev)
				if err := writeWS(ctx, conn, ev); err != nil {
					logger.Debug("websocket write failed", "session_id", id, "error", err)
					return
				}
				if ev.Type == engine.EventEvicted {
					conn.Close(websocket.StatusNormalClosure, "session evicted")
					return
				}
			}
		}
	}
}

func writeWS(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}
