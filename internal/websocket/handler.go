package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"
)

// Accept upgrades the request. The web view is served from the app's own
// origin inside a native wrapper, so origin checks are skipped.
func Accept(w http.ResponseWriter, r *http.Request) (*ws.Conn, error) {
	return ws.Accept(w, r, &ws.AcceptOptions{
		InsecureSkipVerify: true,
	})
}

// HandleFeed returns an HTTP handler that upgrades connections and runs
// them as receive-only clients of hub.
func HandleFeed(hub *Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := Accept(w, r)
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}

		client := NewClient(hub, conn)
		client.Run(r.Context())
	}
}
