package server

import (
	"log/slog"
	"net/http"

	"github.com/skip2/go-qrcode"
)

const qrSize = 256

// handleShareQR renders the session's share link as a PNG QR code.
func handleShareQR(logger *slog.Logger, sessions Sessions, l links) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := sessionID(r)
		if _, err := sessions.Get(r.Context(), id); err != nil {
			writeSessionError(w, logger, err)
			return
		}

		png, err := qrcode.Encode(l.share(id), qrcode.Medium, qrSize)
		if err != nil {
			logger.Error("encoding share qr", "session_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.WriteHeader(http.StatusOK)
		w.Write(png)
	}
}
