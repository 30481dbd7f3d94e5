package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/emerald/internal/auth"
	"github.com/dukerupert/emerald/internal/model"
)

// PushSubscriptions is the storage behind the push endpoints.
type PushSubscriptions interface {
	SaveSubscription(ctx context.Context, sub *model.PushSubscription) error
	ListSubscriptions(ctx context.Context, accountID string) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, accountID string, id int64) (bool, error)
}

type PushHandler struct {
	subs      PushSubscriptions
	publicKey string
	logger    *slog.Logger
}

func NewPushHandler(subs PushSubscriptions, vapidPublicKey string, logger *slog.Logger) *PushHandler {
	return &PushHandler{subs: subs, publicKey: vapidPublicKey, logger: logger}
}

type subscribeRequest struct {
	Endpoint   string `json:"endpoint"`
	P256dh     string `json:"p256dh"`
	Auth       string `json:"auth"`
	DeviceName string `json:"deviceName"`
}

// Subscribe handles POST /api/push/subscriptions
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !strings.HasPrefix(req.Endpoint, "https://") || req.P256dh == "" || req.Auth == "" {
		writeError(w, http.StatusBadRequest, "endpoint, p256dh, and auth are required")
		return
	}

	sub := &model.PushSubscription{
		AccountID:  auth.AccountID(r.Context()),
		Endpoint:   req.Endpoint,
		P256dhKey:  req.P256dh,
		AuthKey:    req.Auth,
		DeviceName: req.DeviceName,
		CreatedAt:  time.Now(),
	}
	if err := h.subs.SaveSubscription(r.Context(), sub); err != nil {
		h.logger.Error("save push subscription", "error", err)
		writeError(w, http.StatusServiceUnavailable, "failed to save subscription")
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// Unsubscribe handles DELETE /api/push/subscriptions/{id}
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	ok, err := h.subs.DeleteSubscription(r.Context(), auth.AccountID(r.Context()), id)
	if err != nil {
		h.logger.Error("delete push subscription", "error", err)
		writeError(w, http.StatusServiceUnavailable, "failed to delete subscription")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "subscription not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /api/push/subscriptions
func (h *PushHandler) List(w http.ResponseWriter, r *http.Request) {
	subs, err := h.subs.ListSubscriptions(r.Context(), auth.AccountID(r.Context()))
	if err != nil {
		h.logger.Error("list push subscriptions", "error", err)
		writeError(w, http.StatusServiceUnavailable, "failed to list subscriptions")
		return
	}
	if subs == nil {
		subs = []model.PushSubscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

// VAPIDKey handles GET /api/push/vapid-key
func (h *PushHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": h.publicKey})
}
