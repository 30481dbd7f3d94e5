package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukerupert/emerald/internal/model"
)

func scanAccount(scanner interface{ Scan(...any) error }) (*model.Account, error) {
	var a model.Account
	var isAdmin int
	var createdAt int64

	err := scanner.Scan(&a.ID, &a.DisplayName, &a.Email, &a.PhotoURL, &a.PointBalance, &isAdmin, &createdAt)
	if err != nil {
		return nil, err
	}

	a.IsAdmin = isAdmin != 0
	a.CreatedAt = fromMillis(createdAt)
	return &a, nil
}

const accountCols = `id, display_name, email, photo_url, point_balance, is_admin, created_at`

// GetAccount returns nil, nil when the account does not exist.
func (s *Store) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// CreateAccount inserts a if no account with its id exists yet and returns
// the stored row either way.
func (s *Store) CreateAccount(ctx context.Context, a model.Account) (*model.Account, error) {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO accounts (id, display_name, email, photo_url, point_balance, is_admin, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		a.ID, a.DisplayName, a.Email, a.PhotoURL, a.PointBalance, boolInt(a.IsAdmin), toMillis(a.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return s.GetAccount(ctx, a.ID)
}

// IncrementBalance adds points and returns the new balance. ok is false
// when the account does not exist.
func (s *Store) IncrementBalance(ctx context.Context, id string, points int64) (balance int64, ok bool, err error) {
	err = s.q.QueryRowContext(ctx,
		`UPDATE accounts SET point_balance = point_balance + ? WHERE id = ? RETURNING point_balance`,
		points, id,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("increment balance: %w", err)
	}
	return balance, true, nil
}

// DeductBalance subtracts points only if the balance covers them, in a
// single statement. ok is false when the balance is short or the account
// does not exist.
func (s *Store) DeductBalance(ctx context.Context, id string, points int64) (balance int64, ok bool, err error) {
	err = s.q.QueryRowContext(ctx,
		`UPDATE accounts SET point_balance = point_balance - ?
		 WHERE id = ? AND point_balance >= ?
		 RETURNING point_balance`,
		points, id, points,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("deduct balance: %w", err)
	}
	return balance, true, nil
}

// ListAllAccounts returns every account, newest first.
func (s *Store) ListAllAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+accountCols+` FROM accounts ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func (s *Store) CountAccounts(ctx context.Context) (int64, error) {
	var n int64
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}

// SumBalances is the total of all outstanding point balances.
func (s *Store) SumBalances(ctx context.Context) (int64, error) {
	var n int64
	if err := s.q.QueryRowContext(ctx, `SELECT COALESCE(SUM(point_balance), 0) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sum balances: %w", err)
	}
	return n, nil
}

func (s *Store) SetAdmin(ctx context.Context, id string, admin bool) error {
	_, err := s.q.ExecContext(ctx, `UPDATE accounts SET is_admin = ? WHERE id = ?`, boolInt(admin), id)
	if err != nil {
		return fmt.Errorf("set admin: %w", err)
	}
	return nil
}
