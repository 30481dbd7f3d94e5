package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/emerald/internal/app"
	"github.com/dukerupert/emerald/internal/auth"
	"github.com/dukerupert/emerald/internal/backup"
	"github.com/dukerupert/emerald/internal/config"
	"github.com/dukerupert/emerald/internal/logging"
	"github.com/dukerupert/emerald/internal/rewards"
	"github.com/dukerupert/emerald/internal/server"
	ws "github.com/dukerupert/emerald/internal/websocket"
)

// grantRetention is how long reward grants stay in the ledger. The bonus cap
// only looks back to local midnight.
const grantRetention = 48 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if cfg.JWTSecret == "" {
		logger.Error("EMERALD_JWT_SECRET is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	adminHub := ws.NewHub(logger.With("component", "admin_hub"))
	opts := []rewards.Option{rewards.WithEvents(ws.NewFeed(adminHub))}

	a, err := app.Open(ctx, cfg, logger, opts...)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	backups, err := a.Backups(cfg.Backup, logger.With("component", "backup"))
	switch {
	case errors.Is(err, backup.ErrNotConfigured):
		backups = nil
	case err != nil:
		logger.Error("backup setup", "error", err)
		os.Exit(1)
	}

	srv := server.New(a.DB, a.Service, auth.NewVerifier(cfg.JWTSecret), adminHub, server.Options{
		AdsPerHour:         cfg.AdRateLimit,
		WithdrawalsPerHour: cfg.WithdrawalRateLimit,
		IsAdminEmail:       cfg.IsAdminEmail,
		Push:               a.Push,
	}, logger)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Background maintenance
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := srv.RateLimiter().Cleanup(); n > 0 {
					logger.Debug("cleaned up rate limit windows", "count", n)
				}
				a.SweepCache()
				if n, err := a.Service.PurgeGrants(ctx, grantRetention); err != nil {
					logger.Error("purge reward grants", "error", err)
				} else if n > 0 {
					logger.Info("purged reward grants", "count", n)
				}
				if backups != nil && backups.Due() {
					if _, err := backups.Run(ctx); err != nil {
						logger.Error("backup", "error", err)
					}
				}
				logger.Debug("maintenance", "bridge_connections", srv.BridgeConnections(), "admin_feeds", adminHub.ClientCount(), "feed_dropped", adminHub.Dropped())
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("emerald rewards starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
