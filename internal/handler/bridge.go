package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/emerald/internal/auth"
	"github.com/dukerupert/emerald/internal/bridge"
	"github.com/dukerupert/emerald/internal/websocket"
)

// BridgeHandler runs one ad bridge listener per open view. The listener
// and its in-flight ad session end when the websocket closes.
type BridgeHandler struct {
	grantor bridge.Grantor
	hub     *websocket.Hub
	limiter bridge.Limiter
	limit   int
	logger  *slog.Logger
}

// NewBridgeHandler limits each account to adsPerHour ad starts.
func NewBridgeHandler(grantor bridge.Grantor, hub *websocket.Hub, limiter bridge.Limiter, adsPerHour int, logger *slog.Logger) *BridgeHandler {
	return &BridgeHandler{grantor: grantor, hub: hub, limiter: limiter, limit: adsPerHour, logger: logger}
}

func (h *BridgeHandler) Serve(w http.ResponseWriter, r *http.Request) {
	accountID := auth.AccountID(r.Context())
	if accountID == "" {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	conn, err := websocket.Accept(w, r)
	if err != nil {
		h.logger.Warn("bridge accept", "account_id", accountID, "error", err)
		return
	}

	listener := bridge.NewListener(accountID, h.grantor, h.logger,
		bridge.WithRateLimit(h.limiter, h.limit, time.Hour))

	client := websocket.NewClient(h.hub, conn)
	client.OnMessage(func(ctx context.Context, data []byte) {
		reply, ok := listener.Handle(ctx, data)
		if !ok {
			return
		}
		out, err := json.Marshal(reply)
		if err != nil {
			h.logger.Error("marshal bridge reply", "error", err)
			return
		}
		if !client.Send(out) {
			h.logger.Warn("bridge reply dropped", "account_id", accountID, "type", reply.Type)
		}
	})

	h.logger.Debug("bridge opened", "account_id", accountID)
	client.Run(r.Context())
	h.logger.Debug("bridge closed", "account_id", accountID, "in_flight", listener.InFlight() != "")
}
