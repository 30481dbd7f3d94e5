package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/emerald/internal/model"
)

// RecordGrant appends g to the grant ledger and sets its ID. A repeated
// non-empty session id violates the unique index.
func (s *Store) RecordGrant(ctx context.Context, g *model.RewardGrant) error {
	var session sql.NullString
	if g.SessionID != "" {
		session = sql.NullString{String: g.SessionID, Valid: true}
	}

	result, err := s.q.ExecContext(ctx,
		`INSERT INTO reward_grants (account_id, session_id, points, bonus, created_at) VALUES (?, ?, ?, ?, ?)`,
		g.AccountID, session, g.Points, boolInt(g.Bonus), toMillis(g.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert grant: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	g.ID = id
	return nil
}

func (s *Store) GrantExists(ctx context.Context, sessionID string) (bool, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM reward_grants WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("grant exists: %w", err)
	}
	return n > 0, nil
}

// CountBonusGrantsSince counts bonus grants for the account at or after since.
func (s *Store) CountBonusGrantsSince(ctx context.Context, accountID string, since time.Time) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reward_grants WHERE account_id = ? AND bonus = 1 AND created_at >= ?`,
		accountID, toMillis(since),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count bonus grants: %w", err)
	}
	return n, nil
}

// PurgeGrantsBefore removes ledger entries older than cutoff.
func (s *Store) PurgeGrantsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.q.ExecContext(ctx, `DELETE FROM reward_grants WHERE created_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge grants: %w", err)
	}
	return result.RowsAffected()
}
