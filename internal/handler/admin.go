package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dukerupert/emerald/internal/model"
	"github.com/dukerupert/emerald/internal/rewards"
)

// AdminHandler serves the withdrawal review queue and dashboard totals.
type AdminHandler struct {
	svc    *rewards.Service
	logger *slog.Logger
}

func NewAdminHandler(svc *rewards.Service, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{svc: svc, logger: logger}
}

func (h *AdminHandler) Withdrawals(w http.ResponseWriter, r *http.Request) {
	requests, err := h.svc.ListAllWithdrawals(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if requests == nil {
		requests = []model.WithdrawalRequest{}
	}
	writeJSON(w, http.StatusOK, requests)
}

type decisionRequest struct {
	Code string `json:"code"`
	Note string `json:"note"`
}

func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, model.StatusApproved)
}

func (h *AdminHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, model.StatusRejected)
}

func (h *AdminHandler) resolve(w http.ResponseWriter, r *http.Request, status model.RequestStatus) {
	id, err := h.svc.ParseWithdrawalID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	// A reject may come without a body.
	var req decisionRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	wr, err := h.svc.ResolveWithdrawal(r.Context(), id, rewards.Decision{
		Status:     status,
		RedeemCode: req.Code,
		AdminNote:  req.Note,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, wr)
}

func (h *AdminHandler) Accounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.svc.ListAccounts(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if accounts == nil {
		accounts = []model.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.Overview(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
