// Package backup uploads encrypted snapshots of the rewards database to
// S3-compatible storage and keeps a fixed number of them.
package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "modernc.org/sqlite"
)

const (
	keyTimeLayout = "2006-01-02T150405.000Z"
	keySuffix     = ".db.enc"
)

var ErrNotConfigured = errors.New("backup not configured")

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Sealer encrypts whole snapshots. vault.AESSealer implements it.
type Sealer interface {
	SealBytes(data []byte) ([]byte, error)
	OpenBytes(data []byte) ([]byte, error)
}

// Config holds S3-compatible storage and retention settings.
type Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	// Prefix is prepended to every object key.
	Prefix   string
	Keep     int
	Interval time.Duration
}

func (c Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// Snapshot describes one uploaded backup object.
type Snapshot struct {
	Key       string
	Size      int64
	CreatedAt time.Time
}

// Manager takes snapshots. Runs are serialized.
type Manager struct {
	mu     sync.Mutex
	cfg    Config
	db     *sql.DB
	sealer Sealer
	client s3Client
	now    func() time.Time
	logger *slog.Logger

	last time.Time
}

func NewManager(cfg Config, db *sql.DB, sealer Sealer, logger *slog.Logger) (*Manager, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	return newManager(cfg, db, sealer, newS3Client(cfg), logger)
}

func newManager(cfg Config, db *sql.DB, sealer Sealer, client s3Client, logger *slog.Logger) (*Manager, error) {
	if sealer == nil {
		return nil, errors.New("backup needs an encryption key")
	}
	if cfg.Keep < 1 {
		cfg.Keep = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	return &Manager{
		cfg:    cfg,
		db:     db,
		sealer: sealer,
		client: client,
		now:    time.Now,
		logger: logger,
	}, nil
}

func newS3Client(cfg Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Due reports whether the interval has passed since the last snapshot
// taken by this process.
func (m *Manager) Due() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last.IsZero() || m.now().Sub(m.last) >= m.cfg.Interval
}

// Run snapshots the database, uploads it encrypted and drops snapshots
// beyond the retention count.
func (m *Manager) Run(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dir, err := os.MkdirTemp("", "emerald-backup-*")
	if err != nil {
		return Snapshot{}, fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	// VACUUM INTO writes a consistent copy without blocking writers for
	// the length of the upload.
	path := filepath.Join(dir, "snapshot.db")
	if _, err := m.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return Snapshot{}, fmt.Errorf("vacuum into: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	sealed, err := m.sealer.SealBytes(data)
	if err != nil {
		return Snapshot{}, fmt.Errorf("encrypt: %w", err)
	}

	now := m.now().UTC()
	snap := Snapshot{
		Key:       m.cfg.Prefix + "emerald-" + now.Format(keyTimeLayout) + keySuffix,
		Size:      int64(len(sealed)),
		CreatedAt: now,
	}

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.Bucket),
		Key:           aws.String(snap.Key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(snap.Size),
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("upload to s3: %w", err)
	}
	m.last = now
	m.logger.Info("backup uploaded", "key", snap.Key, "bytes", snap.Size)

	if n, err := m.prune(ctx); err != nil {
		m.logger.Warn("prune backups", "error", err)
	} else if n > 0 {
		m.logger.Info("pruned backups", "count", n)
	}
	return snap, nil
}

// List returns the stored snapshots, newest first.
func (m *Manager) List(ctx context.Context) ([]Snapshot, error) {
	var snaps []Snapshot
	p := s3.NewListObjectsV2Paginator(m.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(m.cfg.Bucket),
		Prefix: aws.String(m.cfg.Prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			created, ok := parseKeyTime(strings.TrimPrefix(key, m.cfg.Prefix))
			if !ok {
				continue
			}
			snaps = append(snaps, Snapshot{Key: key, Size: aws.ToInt64(obj.Size), CreatedAt: created})
		}
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].CreatedAt.After(snaps[j].CreatedAt) })
	return snaps, nil
}

func parseKeyTime(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, "emerald-") || !strings.HasSuffix(name, keySuffix) {
		return time.Time{}, false
	}
	ts := strings.TrimSuffix(strings.TrimPrefix(name, "emerald-"), keySuffix)
	t, err := time.Parse(keyTimeLayout, ts)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (m *Manager) prune(ctx context.Context) (int, error) {
	snaps, err := m.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(snaps) <= m.cfg.Keep {
		return 0, nil
	}

	removed := 0
	for _, s := range snaps[m.cfg.Keep:] {
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.cfg.Bucket),
			Key:    aws.String(s.Key),
		}); err != nil {
			return removed, fmt.Errorf("delete %s: %w", s.Key, err)
		}
		removed++
	}
	return removed, nil
}

// Fetch downloads and decrypts a snapshot into dst and checks that the
// result is an intact SQLite database. The live database is not touched.
func (m *Manager) Fetch(ctx context.Context, key, dst string) error {
	result, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("download from s3: %w", err)
	}
	defer result.Body.Close()

	sealed, err := io.ReadAll(result.Body)
	if err != nil {
		return fmt.Errorf("read object: %w", err)
	}
	data, err := m.sealer.OpenBytes(sealed)
	if err != nil {
		return fmt.Errorf("decrypt backup: %w", err)
	}
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}

	if err := checkIntegrity(ctx, dst); err != nil {
		os.Remove(dst)
		return err
	}
	return nil
}

func checkIntegrity(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open restored db: %w", err)
	}
	defer db.Close()

	var integrity string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if integrity != "ok" {
		return fmt.Errorf("integrity check failed: %s", integrity)
	}
	return nil
}
