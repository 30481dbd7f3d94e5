package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/emerald/internal/model"
)

func scanWithdrawal(scanner interface{ Scan(...any) error }) (*model.WithdrawalRequest, error) {
	var w model.WithdrawalRequest
	var amount string
	var code sql.NullString
	var createdAt int64
	var processedAt sql.NullInt64

	err := scanner.Scan(&w.ID, &w.Reference, &w.AccountID, &w.ContactEmail, &w.PointsRequested,
		&amount, &w.Method, &w.Status, &code, &w.AdminNote, &createdAt, &processedAt)
	if err != nil {
		return nil, err
	}

	w.AmountInCurrency, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if code.Valid {
		w.RedeemCode = code.String
	}
	w.CreatedAt = fromMillis(createdAt)
	if processedAt.Valid {
		t := fromMillis(processedAt.Int64)
		w.ProcessedAt = &t
	}
	return &w, nil
}

const withdrawalCols = `id, reference, account_id, contact_email, points_requested, amount_in_currency,
	method, status, redeem_code, admin_note, created_at, processed_at`

// AppendWithdrawal inserts w. The caller assigns ID and Reference.
func (s *Store) AppendWithdrawal(ctx context.Context, w *model.WithdrawalRequest) error {
	var code sql.NullString
	if w.RedeemCode != "" {
		code = sql.NullString{String: w.RedeemCode, Valid: true}
	}

	_, err := s.q.ExecContext(ctx,
		`INSERT INTO withdrawal_requests
		 (id, reference, account_id, contact_email, points_requested, amount_in_currency, method, status, redeem_code, admin_note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Reference, w.AccountID, w.ContactEmail, w.PointsRequested, w.AmountInCurrency.String(),
		w.Method, w.Status, code, w.AdminNote, toMillis(w.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	return nil
}

// GetWithdrawal returns nil, nil when the request does not exist.
func (s *Store) GetWithdrawal(ctx context.Context, id int64) (*model.WithdrawalRequest, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+withdrawalCols+` FROM withdrawal_requests WHERE id = ?`, id)
	w, err := scanWithdrawal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get withdrawal: %w", err)
	}
	return w, nil
}

// GetWithdrawalByReference looks a request up by its public reference.
func (s *Store) GetWithdrawalByReference(ctx context.Context, ref string) (*model.WithdrawalRequest, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+withdrawalCols+` FROM withdrawal_requests WHERE reference = ?`, ref)
	w, err := scanWithdrawal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get withdrawal by reference: %w", err)
	}
	return w, nil
}

// UpdateWithdrawal moves a pending request to a terminal status. It reports
// false when the request is missing or no longer pending.
func (s *Store) UpdateWithdrawal(ctx context.Context, id int64, status model.RequestStatus, code, note string, processedAt time.Time) (bool, error) {
	var c sql.NullString
	if code != "" {
		c = sql.NullString{String: code, Valid: true}
	}

	result, err := s.q.ExecContext(ctx,
		`UPDATE withdrawal_requests
		 SET status = ?, redeem_code = ?, admin_note = ?, processed_at = ?
		 WHERE id = ? AND status = ?`,
		status, c, note, toMillis(processedAt), id, model.StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("update withdrawal: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *Store) listWithdrawals(ctx context.Context, query string, args ...any) ([]model.WithdrawalRequest, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}
	defer rows.Close()

	var requests []model.WithdrawalRequest
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan withdrawal: %w", err)
		}
		requests = append(requests, *w)
	}
	return requests, rows.Err()
}

// ListWithdrawals returns up to limit requests for the account, newest first.
func (s *Store) ListWithdrawals(ctx context.Context, accountID string, limit int) ([]model.WithdrawalRequest, error) {
	return s.listWithdrawals(ctx,
		`SELECT `+withdrawalCols+` FROM withdrawal_requests
		 WHERE account_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		accountID, limit,
	)
}

// ListAllWithdrawals returns every request, newest first. An empty status
// returns all of them.
func (s *Store) ListAllWithdrawals(ctx context.Context, status model.RequestStatus) ([]model.WithdrawalRequest, error) {
	if status == "" {
		return s.listWithdrawals(ctx,
			`SELECT `+withdrawalCols+` FROM withdrawal_requests ORDER BY created_at DESC, id DESC`)
	}
	return s.listWithdrawals(ctx,
		`SELECT `+withdrawalCols+` FROM withdrawal_requests WHERE status = ? ORDER BY created_at DESC, id DESC`,
		status,
	)
}

// PruneWithdrawals deletes resolved requests outside the newest keep for
// the account. Pending requests are never deleted.
func (s *Store) PruneWithdrawals(ctx context.Context, accountID string, keep int) (int64, error) {
	result, err := s.q.ExecContext(ctx,
		`DELETE FROM withdrawal_requests
		 WHERE account_id = ?
		   AND status != ?
		   AND id NOT IN (
		     SELECT id FROM withdrawal_requests
		     WHERE account_id = ?
		     ORDER BY created_at DESC, id DESC
		     LIMIT ?
		   )`,
		accountID, model.StatusPending, accountID, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune withdrawals: %w", err)
	}
	return result.RowsAffected()
}

// SumPendingPoints is the total requested by requests awaiting review.
func (s *Store) SumPendingPoints(ctx context.Context) (int64, error) {
	var n int64
	err := s.q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(points_requested), 0) FROM withdrawal_requests WHERE status = ?`,
		model.StatusPending,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sum pending points: %w", err)
	}
	return n, nil
}

func (s *Store) CountWithdrawals(ctx context.Context, status model.RequestStatus) (int64, error) {
	var n int64
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM withdrawal_requests WHERE status = ?`, status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count withdrawals: %w", err)
	}
	return n, nil
}
