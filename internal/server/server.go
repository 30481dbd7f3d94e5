package server

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/emerald/internal/auth"
	"github.com/dukerupert/emerald/internal/handler"
	"github.com/dukerupert/emerald/internal/middleware"
	"github.com/dukerupert/emerald/internal/push"
	"github.com/dukerupert/emerald/internal/rewards"
	"github.com/dukerupert/emerald/internal/store"
	ws "github.com/dukerupert/emerald/internal/websocket"
)

// Options carries the request-level knobs of the HTTP surface.
type Options struct {
	// AdsPerHour caps show_rewarded_ad signals per account.
	AdsPerHour int

	// WithdrawalsPerHour caps withdrawal submissions per account.
	WithdrawalsPerHour int

	IsAdminEmail func(email string) bool

	// Push enables the push subscription routes when set.
	Push *push.Service
}

type Server struct {
	db          *sql.DB
	svc         *rewards.Service
	verifier    *auth.Verifier
	adminHub    *ws.Hub
	bridgeHub   *ws.Hub
	accountH    *handler.AccountHandler
	adminH      *handler.AdminHandler
	bridgeH     *handler.BridgeHandler
	pushH       *handler.PushHandler
	rateLimiter *middleware.RateLimiter
	opts        Options
	logger      *slog.Logger
}

// New builds the server. adminHub must be the hub behind the service's
// withdrawal events so the admin feed sees them.
func New(db *sql.DB, svc *rewards.Service, verifier *auth.Verifier, adminHub *ws.Hub, opts Options, logger *slog.Logger) *Server {
	if opts.IsAdminEmail == nil {
		opts.IsAdminEmail = func(string) bool { return false }
	}
	if opts.AdsPerHour <= 0 {
		opts.AdsPerHour = 30
	}
	if opts.WithdrawalsPerHour <= 0 {
		opts.WithdrawalsPerHour = 10
	}

	var pushH *handler.PushHandler
	if opts.Push != nil {
		pushH = handler.NewPushHandler(store.New(db), opts.Push.VAPIDPublicKey(), logger.With("component", "push_handler"))
	}

	limiter := middleware.NewRateLimiter()
	bridgeHub := ws.NewHub(logger.With("component", "bridge_hub"))

	return &Server{
		db:          db,
		svc:         svc,
		verifier:    verifier,
		adminHub:    adminHub,
		bridgeHub:   bridgeHub,
		accountH:    handler.NewAccountHandler(svc, logger.With("component", "account")),
		adminH:      handler.NewAdminHandler(svc, logger.With("component", "admin")),
		bridgeH:     handler.NewBridgeHandler(svc, bridgeHub, limiter, opts.AdsPerHour, logger.With("component", "bridge")),
		pushH:       pushH,
		rateLimiter: limiter,
		opts:        opts,
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// BridgeConnections reports how many ad bridge views are open.
func (s *Server) BridgeConnections() int {
	return s.bridgeHub.ClientCount()
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()
	outerMux.HandleFunc("GET /health", handler.Health(s.db))

	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.verifier, s.svc, s.opts.IsAdminEmail, s.logger.With("component", "auth"))
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/me", s.accountH.Me)
	mux.HandleFunc("GET /api/activity", s.accountH.Activity)
	mux.HandleFunc("GET /api/withdrawals", s.accountH.Withdrawals)
	mux.Handle("POST /api/withdrawals", middleware.RateLimit(s.rateLimiter, middleware.AccountOrIP,
		s.opts.WithdrawalsPerHour, time.Hour)(http.HandlerFunc(s.accountH.SubmitWithdrawal)))

	mux.HandleFunc("GET /ws/bridge", s.bridgeH.Serve)

	if s.pushH != nil {
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)
		mux.HandleFunc("GET /api/push/subscriptions", s.pushH.List)
		mux.HandleFunc("POST /api/push/subscriptions", s.pushH.Subscribe)
		mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
	}

	// Admin routes
	admin := func(h http.HandlerFunc) http.Handler {
		return middleware.RequireAdmin(h)
	}
	mux.Handle("GET /api/admin/withdrawals", admin(s.adminH.Withdrawals))
	mux.Handle("POST /api/admin/withdrawals/{id}/approve", admin(s.adminH.Approve))
	mux.Handle("POST /api/admin/withdrawals/{id}/reject", admin(s.adminH.Reject))
	mux.Handle("GET /api/admin/accounts", admin(s.adminH.Accounts))
	mux.Handle("GET /api/admin/stats", admin(s.adminH.Stats))
	mux.Handle("GET /ws/admin", admin(ws.HandleFeed(s.adminHub, s.logger.With("component", "admin_feed"))))
}
