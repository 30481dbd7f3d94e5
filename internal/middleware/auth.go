package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/emerald/internal/auth"
	"github.com/dukerupert/emerald/internal/model"
)

// AccountResolver maps a verified identity to its account, creating it on
// first sight.
type AccountResolver interface {
	EnsureAccount(ctx context.Context, id model.Identity, isAdmin bool) (*model.Account, error)
}

// RequireAuth verifies the bearer identity token and populates AuthContext.
// Browsers cannot set headers on websocket upgrades, so the token may also
// arrive as the access_token query parameter.
func RequireAuth(verifier *auth.Verifier, accounts AccountResolver, isAdminEmail func(string) bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "unauthenticated")
				return
			}

			claims, err := verifier.Parse(token)
			if err != nil {
				logger.Debug("rejected token", "error", err, "remote", RealIP(r))
				writeError(w, http.StatusUnauthorized, "unauthenticated")
				return
			}

			id := claims.Identity()
			acct, err := accounts.EnsureAccount(r.Context(), id, isAdminEmail(id.Email))
			if err != nil || acct == nil {
				logger.Error("resolve account", "account_id", id.Subject, "error", err)
				writeError(w, http.StatusServiceUnavailable, "service unavailable")
				return
			}

			ac := auth.AuthContext{
				AccountID: acct.ID,
				Name:      acct.DisplayName,
				Email:     acct.Email,
				PhotoURL:  acct.PhotoURL,
				Admin:     acct.IsAdmin,
			}

			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin checks that the authenticated account is an admin.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
