package store

import (
	"context"
	"fmt"

	"github.com/dukerupert/emerald/internal/model"
)

const pushCols = `id, account_id, endpoint, p256dh_key, auth_key, device_name, created_at`

// SaveSubscription registers sub for its account. A known endpoint is
// moved to the new account and gets the new keys.
func (s *Store) SaveSubscription(ctx context.Context, sub *model.PushSubscription) error {
	var createdAt int64
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO push_subscriptions (account_id, endpoint, p256dh_key, auth_key, device_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(endpoint) DO UPDATE SET
		     account_id = excluded.account_id,
		     p256dh_key = excluded.p256dh_key,
		     auth_key = excluded.auth_key,
		     device_name = excluded.device_name
		 RETURNING id, created_at`,
		sub.AccountID, sub.Endpoint, sub.P256dhKey, sub.AuthKey, sub.DeviceName, toMillis(sub.CreatedAt),
	).Scan(&sub.ID, &createdAt)
	if err != nil {
		return fmt.Errorf("save push subscription: %w", err)
	}
	sub.CreatedAt = fromMillis(createdAt)
	return nil
}

func (s *Store) ListSubscriptions(ctx context.Context, accountID string) ([]model.PushSubscription, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+pushCols+` FROM push_subscriptions WHERE account_id = ? ORDER BY created_at DESC, id DESC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []model.PushSubscription
	for rows.Next() {
		var sub model.PushSubscription
		var createdAt int64
		if err := rows.Scan(&sub.ID, &sub.AccountID, &sub.Endpoint, &sub.P256dhKey, &sub.AuthKey, &sub.DeviceName, &createdAt); err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		sub.CreatedAt = fromMillis(createdAt)
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// DeleteSubscription removes one of the account's subscriptions and reports
// whether it existed.
func (s *Store) DeleteSubscription(ctx context.Context, accountID string, id int64) (bool, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE id = ? AND account_id = ?`, id, accountID)
	if err != nil {
		return false, fmt.Errorf("delete push subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete push subscription: %w", err)
	}
	return n > 0, nil
}

func (s *Store) DeleteSubscriptionByEndpoint(ctx context.Context, endpoint string) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint); err != nil {
		return fmt.Errorf("delete push subscription by endpoint: %w", err)
	}
	return nil
}
