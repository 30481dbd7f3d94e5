package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/emerald/internal/rewards"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service errors to status codes. Store failures
// get a generic message; their cause is logged.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, rewards.ErrInsufficientBalance),
		errors.Is(err, rewards.ErrBelowMinimumWithdrawal),
		errors.Is(err, rewards.ErrMissingRedeemCode),
		errors.Is(err, rewards.ErrInvalidContactEmail),
		errors.Is(err, rewards.ErrInvalidDecision),
		errors.Is(err, rewards.ErrInvalidStatusFilter):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, rewards.ErrAlreadyProcessed),
		errors.Is(err, rewards.ErrDuplicateSignal):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, rewards.ErrWithdrawalNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, rewards.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	}
}

func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

// parseLimit reads the optional ?limit= query parameter; 0 means default.
func parseLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	return dec.Decode(v)
}
