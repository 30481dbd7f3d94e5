package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const KeyCodeSalt = "code_key_salt"

// GetSetting returns the value for key. ok is false when it is unset.
func (s *Store) GetSetting(ctx context.Context, key string) (value string, ok bool, err error) {
	err = s.q.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// SettingOrInit returns the stored value for key, storing and returning
// the result of init when it is unset.
func (s *Store) SettingOrInit(ctx context.Context, key string, init func() (string, error)) (string, error) {
	var value string
	err := s.WithTx(ctx, func(tx *Store) error {
		v, ok, err := tx.GetSetting(ctx, key)
		if err != nil {
			return err
		}
		if ok {
			value = v
			return nil
		}
		v, err = init()
		if err != nil {
			return fmt.Errorf("init setting %q: %w", key, err)
		}
		value = v
		return tx.SetSetting(ctx, key, v)
	})
	return value, err
}
