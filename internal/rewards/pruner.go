package rewards

import (
	"context"
	"log/slog"

	"github.com/dukerupert/emerald/internal/model"
	"github.com/dukerupert/emerald/internal/store"
)

// Pruner appends to an account's logs and trims each log to the newest
// Limit entries in the same transaction.
type Pruner struct {
	Limit  int
	logger *slog.Logger
}

func NewPruner(limit int, logger *slog.Logger) *Pruner {
	if limit < 1 {
		limit = model.HistoryLimit
	}
	return &Pruner{Limit: limit, logger: logger}
}

func (p *Pruner) AppendActivity(ctx context.Context, tx *store.Store, r *model.ActivityRecord) error {
	if err := tx.AppendActivity(ctx, r); err != nil {
		return err
	}
	n, err := tx.PruneActivity(ctx, r.AccountID, p.Limit)
	if err != nil {
		return err
	}
	if n > 0 {
		p.logger.Debug("pruned activity", "account_id", r.AccountID, "deleted", n)
	}
	return nil
}

// AppendWithdrawal appends w and trims the account's withdrawal log.
// Pending requests survive trimming.
func (p *Pruner) AppendWithdrawal(ctx context.Context, tx *store.Store, w *model.WithdrawalRequest) error {
	if err := tx.AppendWithdrawal(ctx, w); err != nil {
		return err
	}
	n, err := tx.PruneWithdrawals(ctx, w.AccountID, p.Limit)
	if err != nil {
		return err
	}
	if n > 0 {
		p.logger.Debug("pruned withdrawals", "account_id", w.AccountID, "deleted", n)
	}
	return nil
}
