package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/dukerupert/emerald/internal/rewards"
)

// Config holds every setting the server and CLI read from the environment.
type Config struct {
	Port      string `env:"EMERALD_PORT" envDefault:"8080"`
	DBPath    string `env:"EMERALD_DB_PATH" envDefault:"emerald.db"`
	LogLevel  string `env:"EMERALD_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"EMERALD_LOG_FORMAT" envDefault:"text"`

	JWTSecret   string   `env:"EMERALD_JWT_SECRET"`
	AdminEmails []string `env:"EMERALD_ADMIN_EMAILS" envSeparator:","`

	RedisURL string        `env:"EMERALD_REDIS_URL"`
	CacheTTL time.Duration `env:"EMERALD_CACHE_TTL" envDefault:"5m"`

	Timezone       string `env:"EMERALD_TIMEZONE" envDefault:"Local"`
	CodePassphrase string `env:"EMERALD_CODE_PASSPHRASE"`
	HashIDSalt     string `env:"EMERALD_HASHID_SALT" envDefault:"emerald-rewards"`

	// NodeID distinguishes processes minting withdrawal ids (0-1023).
	NodeID int64 `env:"EMERALD_NODE_ID" envDefault:"1"`

	PostmarkToken string `env:"EMERALD_POSTMARK_TOKEN"`
	FromEmail     string `env:"EMERALD_FROM_EMAIL" envDefault:"rewards@emerald.app"`

	VAPIDPublicKey  string `env:"EMERALD_VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `env:"EMERALD_VAPID_PRIVATE_KEY"`
	VAPIDSubject    string `env:"EMERALD_VAPID_SUBJECT" envDefault:"mailto:rewards@emerald.app"`

	AdRateLimit         int `env:"EMERALD_AD_RATE_LIMIT" envDefault:"30"`
	WithdrawalRateLimit int `env:"EMERALD_WITHDRAWAL_RATE_LIMIT" envDefault:"10"`

	Rewards Rewards
	Backup  Backup
}

// Backup configures encrypted database snapshots to S3-compatible storage.
// Snapshots are encrypted with the code passphrase.
type Backup struct {
	Endpoint  string        `env:"EMERALD_BACKUP_ENDPOINT"`
	Bucket    string        `env:"EMERALD_BACKUP_BUCKET"`
	Region    string        `env:"EMERALD_BACKUP_REGION" envDefault:"us-east-1"`
	AccessKey string        `env:"EMERALD_BACKUP_ACCESS_KEY"`
	SecretKey string        `env:"EMERALD_BACKUP_SECRET_KEY"`
	Prefix    string        `env:"EMERALD_BACKUP_PREFIX" envDefault:"emerald/"`
	Keep      int           `env:"EMERALD_BACKUP_KEEP" envDefault:"14"`
	Interval  time.Duration `env:"EMERALD_BACKUP_INTERVAL" envDefault:"24h"`
}

// Rewards is the reward and withdrawal policy.
type Rewards struct {
	BonusChance     float64 `env:"EMERALD_BONUS_CHANCE" envDefault:"0.10"`
	BonusPoints     int64   `env:"EMERALD_BONUS_POINTS" envDefault:"6"`
	BonusDailyCap   int     `env:"EMERALD_BONUS_DAILY_CAP" envDefault:"2"`
	BonusCapEnabled bool    `env:"EMERALD_BONUS_CAP_ENABLED" envDefault:"true"`
	HistoryLimit    int     `env:"EMERALD_HISTORY_LIMIT" envDefault:"10"`
	RefundOnReject  bool    `env:"EMERALD_REFUND_ON_REJECT" envDefault:"true"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges that env tags cannot express.
func (c Config) Validate() error {
	if c.Rewards.BonusChance < 0 || c.Rewards.BonusChance > 1 {
		return fmt.Errorf("bonus chance %v out of range [0, 1]", c.Rewards.BonusChance)
	}
	if c.Rewards.BonusPoints < 1 {
		return fmt.Errorf("bonus points must be >= 1, got %d", c.Rewards.BonusPoints)
	}
	if c.Rewards.HistoryLimit < 1 {
		return fmt.Errorf("history limit must be >= 1, got %d", c.Rewards.HistoryLimit)
	}
	if c.Rewards.BonusDailyCap < 0 {
		return fmt.Errorf("bonus daily cap must be >= 0, got %d", c.Rewards.BonusDailyCap)
	}
	if c.NodeID < 0 || c.NodeID > 1023 {
		return fmt.Errorf("node id %d out of range [0, 1023]", c.NodeID)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the time zone used for "local midnight".
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Policy converts the reward settings into the service policy. The
// location must already have passed Validate.
func (c Config) Policy() rewards.Policy {
	loc, _ := c.Location()
	return rewards.Policy{
		BonusChance:     c.Rewards.BonusChance,
		BonusPoints:     c.Rewards.BonusPoints,
		BonusDailyCap:   c.Rewards.BonusDailyCap,
		BonusCapEnabled: c.Rewards.BonusCapEnabled,
		HistoryLimit:    c.Rewards.HistoryLimit,
		RefundOnReject:  c.Rewards.RefundOnReject,
		Location:        loc,
	}
}

// IsAdminEmail reports whether email is listed in EMERALD_ADMIN_EMAILS.
func (c Config) IsAdminEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	for _, a := range c.AdminEmails {
		if strings.EqualFold(strings.TrimSpace(a), email) {
			return true
		}
	}
	return false
}
