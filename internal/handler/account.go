package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/emerald/internal/auth"
	"github.com/dukerupert/emerald/internal/model"
	"github.com/dukerupert/emerald/internal/rewards"
)

// AccountHandler serves the signed-in user's own data.
type AccountHandler struct {
	svc    *rewards.Service
	logger *slog.Logger
}

func NewAccountHandler(svc *rewards.Service, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{svc: svc, logger: logger}
}

func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	acct, err := h.svc.Account(r.Context(), auth.AccountID(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if acct == nil {
		writeError(w, http.StatusUnauthorized, rewards.ErrUnauthenticated.Error())
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (h *AccountHandler) Activity(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.ListActivity(r.Context(), auth.AccountID(r.Context()), parseLimit(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if records == nil {
		records = []model.ActivityRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *AccountHandler) Withdrawals(w http.ResponseWriter, r *http.Request) {
	requests, err := h.svc.ListWithdrawals(r.Context(), auth.AccountID(r.Context()), parseLimit(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if requests == nil {
		requests = []model.WithdrawalRequest{}
	}
	writeJSON(w, http.StatusOK, requests)
}

type withdrawalRequest struct {
	Points int64  `json:"points"`
	Email  string `json:"email"`
}

func (h *AccountHandler) SubmitWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req withdrawalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	wr, err := h.svc.SubmitWithdrawal(r.Context(), auth.AccountID(r.Context()), req.Points, req.Email)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if wr == nil {
		writeError(w, http.StatusUnauthorized, rewards.ErrUnauthenticated.Error())
		return
	}
	writeJSON(w, http.StatusCreated, wr)
}
