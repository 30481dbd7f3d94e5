package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukerupert/emerald/internal/auth"
	"github.com/dukerupert/emerald/internal/model"
)

type fakeAccounts struct {
	err      error
	gotAdmin bool
}

func (f *fakeAccounts) EnsureAccount(_ context.Context, id model.Identity, isAdmin bool) (*model.Account, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.gotAdmin = isAdmin
	return &model.Account{ID: id.Subject, DisplayName: id.Name, Email: id.Email, IsAdmin: isAdmin}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func adminEmail(email string) bool { return email == "owner@emerald.app" }

func issue(t *testing.T, v *auth.Verifier, id model.Identity) string {
	t.Helper()
	token, err := v.Issue(id, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func TestRequireAuthNoToken(t *testing.T) {
	v := auth.NewVerifier("secret")
	handler := RequireAuth(v, &fakeAccounts{}, adminEmail, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthInvalidToken(t *testing.T) {
	v := auth.NewVerifier("secret")
	handler := RequireAuth(v, &fakeAccounts{}, adminEmail, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	for _, header := range []string{"Bearer invalid-token", "Basic dXNlcjpwYXNz"} {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%q: status = %d, want %d", header, rec.Code, http.StatusUnauthorized)
		}
	}
}

func TestRequireAuthValidToken(t *testing.T) {
	v := auth.NewVerifier("secret")
	accounts := &fakeAccounts{}
	token := issue(t, v, model.Identity{Subject: "uid-1", Name: "Owner", Email: "owner@emerald.app"})

	var gotAC auth.AuthContext
	handler := RequireAuth(v, accounts, adminEmail, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok {
			t.Fatal("expected AuthContext in request context")
		}
		gotAC = ac
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotAC.AccountID != "uid-1" {
		t.Errorf("AccountID = %q, want uid-1", gotAC.AccountID)
	}
	if !gotAC.Admin || !accounts.gotAdmin {
		t.Error("expected admin email to mark the account admin")
	}
}

func TestRequireAuthQueryToken(t *testing.T) {
	v := auth.NewVerifier("secret")
	token := issue(t, v, model.Identity{Subject: "uid-2"})

	handler := RequireAuth(v, &fakeAccounts{}, adminEmail, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.AccountID(r.Context()) != "uid-2" {
			t.Errorf("AccountID = %q, want uid-2", auth.AccountID(r.Context()))
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/ws/bridge?access_token="+token, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRequireAuthStoreFailure(t *testing.T) {
	v := auth.NewVerifier("secret")
	token := issue(t, v, model.Identity{Subject: "uid-1"})

	handler := RequireAuth(v, &fakeAccounts{err: errors.New("db down")}, adminEmail, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestRequireAdminAllowed(t *testing.T) {
	ctx := auth.WithAuth(context.Background(), auth.AuthContext{AccountID: "uid-1", Admin: true})
	req := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	handler := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRequireAdminForbidden(t *testing.T) {
	ctx := auth.WithAuth(context.Background(), auth.AuthContext{AccountID: "uid-1"})
	req := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	handler := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}
