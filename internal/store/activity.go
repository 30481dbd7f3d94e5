package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/emerald/internal/model"
)

func scanActivity(scanner interface{ Scan(...any) error }) (*model.ActivityRecord, error) {
	var r model.ActivityRecord
	var withdrawalID sql.NullInt64
	var createdAt int64

	err := scanner.Scan(&r.ID, &r.AccountID, &r.Kind, &r.PointDelta, &r.Label, &r.Status, &withdrawalID, &createdAt)
	if err != nil {
		return nil, err
	}

	if withdrawalID.Valid {
		r.WithdrawalID = &withdrawalID.Int64
	}
	r.CreatedAt = fromMillis(createdAt)
	return &r, nil
}

const activityCols = `id, account_id, kind, point_delta, label, status, withdrawal_id, created_at`

// AppendActivity inserts r and sets its ID.
func (s *Store) AppendActivity(ctx context.Context, r *model.ActivityRecord) error {
	var wID sql.NullInt64
	if r.WithdrawalID != nil {
		wID = sql.NullInt64{Int64: *r.WithdrawalID, Valid: true}
	}

	result, err := s.q.ExecContext(ctx,
		`INSERT INTO activity_records (account_id, kind, point_delta, label, status, withdrawal_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.AccountID, r.Kind, r.PointDelta, r.Label, r.Status, wID, toMillis(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	r.ID = id
	return nil
}

// ListActivity returns up to limit records for the account, newest first.
func (s *Store) ListActivity(ctx context.Context, accountID string, limit int) ([]model.ActivityRecord, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+activityCols+` FROM activity_records
		 WHERE account_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		accountID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var records []model.ActivityRecord
	for rows.Next() {
		r, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

// PruneActivity deletes all but the newest keep records for the account
// and reports how many were removed.
func (s *Store) PruneActivity(ctx context.Context, accountID string, keep int) (int64, error) {
	result, err := s.q.ExecContext(ctx,
		`DELETE FROM activity_records
		 WHERE account_id = ?
		   AND id NOT IN (
		     SELECT id FROM activity_records
		     WHERE account_id = ?
		     ORDER BY created_at DESC, id DESC
		     LIMIT ?
		   )`,
		accountID, accountID, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune activity: %w", err)
	}
	return result.RowsAffected()
}

// SetActivityStatusForWithdrawal updates the status of the activity record
// linked to a withdrawal request, if it is still retained.
func (s *Store) SetActivityStatusForWithdrawal(ctx context.Context, withdrawalID int64, status model.ActivityStatus) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE activity_records SET status = ? WHERE withdrawal_id = ? AND kind = ? AND point_delta < 0`,
		status, withdrawalID, model.KindWithdrawal,
	)
	if err != nil {
		return fmt.Errorf("set activity status: %w", err)
	}
	return nil
}
