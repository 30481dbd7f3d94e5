// Package app assembles the database, store and rewards service shared by
// the server and the admin CLI.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/dukerupert/emerald/internal/backup"
	"github.com/dukerupert/emerald/internal/cache"
	"github.com/dukerupert/emerald/internal/config"
	"github.com/dukerupert/emerald/internal/database"
	"github.com/dukerupert/emerald/internal/email"
	"github.com/dukerupert/emerald/internal/ident"
	"github.com/dukerupert/emerald/internal/push"
	"github.com/dukerupert/emerald/internal/rewards"
	"github.com/dukerupert/emerald/internal/store"
	"github.com/dukerupert/emerald/internal/vault"
)

type App struct {
	DB      *sql.DB
	Store   *store.Store
	Service *rewards.Service
	Sealer  vault.Sealer
	Cache   cache.Accounts

	// Push is nil when no VAPID keys are configured.
	Push *push.Service

	memory *cache.Memory
	redis  *redis.Client
}

// Open opens the database and builds the service. The account cache is Redis
// when EMERALD_REDIS_URL is set and in-process otherwise, so the server and
// the CLI invalidate the same entries. Configured email and push notifiers
// are attached; extra options can add events or replace collaborators.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...rewards.Option) (*App, error) {
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	ids, err := ident.New(cfg.NodeID, cfg.HashIDSalt)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("id generator: %w", err)
	}

	st := store.New(db)
	sealer, err := NewSealer(ctx, st, cfg.CodePassphrase, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	a := &App{DB: db, Store: st, Sealer: sealer}
	if err := a.openCache(ctx, cfg, logger.With("component", "cache")); err != nil {
		db.Close()
		return nil, err
	}
	base := []rewards.Option{rewards.WithSealer(sealer), rewards.WithCache(a.Cache)}

	if emailClient := email.NewClient(cfg.PostmarkToken, cfg.FromEmail); emailClient.Configured() {
		base = append(base, rewards.WithNotifier(emailClient))
	} else {
		logger.Info("postmark not configured, withdrawal emails disabled")
	}

	pushCfg := push.Config{
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		Subject:         cfg.VAPIDSubject,
	}
	if pushCfg.Enabled() {
		a.Push = push.NewService(pushCfg, st, logger.With("component", "push"))
		base = append(base, rewards.WithNotifier(a.Push))
	}

	a.Service = rewards.NewService(st, ids, cfg.Policy(), logger.With("component", "rewards"), append(base, opts...)...)
	return a, nil
}

// Backups returns the snapshot manager, or backup.ErrNotConfigured when no
// bucket is set. Snapshots need the code passphrase for encryption.
func (a *App) Backups(cfg config.Backup, logger *slog.Logger) (*backup.Manager, error) {
	sealer, ok := a.Sealer.(backup.Sealer)
	if !ok {
		if !(backup.Config{Bucket: cfg.Bucket, AccessKey: cfg.AccessKey, SecretKey: cfg.SecretKey}).Enabled() {
			return nil, backup.ErrNotConfigured
		}
		return nil, errors.New("backups need EMERALD_CODE_PASSPHRASE")
	}
	return backup.NewManager(backup.Config{
		Endpoint:  cfg.Endpoint,
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Prefix:    cfg.Prefix,
		Keep:      cfg.Keep,
		Interval:  cfg.Interval,
	}, a.DB, sealer, logger)
}

func (a *App) openCache(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if cfg.RedisURL == "" {
		a.memory = cache.NewMemory(cfg.CacheTTL)
		a.Cache = a.memory
		return nil
	}
	client, err := cache.Dial(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	a.redis = client
	a.Cache = cache.NewRedis(client, cfg.CacheTTL, logger)
	return nil
}

// SweepCache drops expired in-process entries. Redis expires its own.
func (a *App) SweepCache() int {
	if a.memory == nil {
		return 0
	}
	return a.memory.Sweep()
}

func (a *App) Close() error {
	if a.redis != nil {
		a.redis.Close()
	}
	return a.DB.Close()
}

// NewSealer returns the redeem code sealer. The key salt is generated on
// first run and kept in settings; without a passphrase codes are stored
// in plaintext.
func NewSealer(ctx context.Context, st *store.Store, passphrase string, logger *slog.Logger) (vault.Sealer, error) {
	if passphrase == "" {
		logger.Warn("EMERALD_CODE_PASSPHRASE not set, redeem codes are stored unencrypted")
		return vault.Plain{}, nil
	}

	salt, err := st.SettingOrInit(ctx, store.KeyCodeSalt, vault.GenerateSalt)
	if err != nil {
		return nil, fmt.Errorf("code key salt: %w", err)
	}
	sealer, err := vault.NewAESSealer(passphrase, salt)
	if err != nil {
		return nil, fmt.Errorf("code sealer: %w", err)
	}
	return sealer, nil
}
