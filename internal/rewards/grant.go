package rewards

import (
	"context"
	"errors"

	"github.com/dukerupert/emerald/internal/model"
	"github.com/dukerupert/emerald/internal/store"
)

type GrantOptions struct {
	// SessionID identifies the ad playback that earned the reward. A
	// session can be rewarded at most once. Empty disables the check.
	SessionID string
}

type GrantResult struct {
	PointsAwarded int64 `json:"pointsAwarded"`
	IsBonus       bool  `json:"isBonus"`
	Balance       int64 `json:"balance"`
}

// GrantReward credits one completed ad view: 1 to 3 points, or the bonus
// amount with probability BonusChance while the account is under its
// daily bonus cap. An empty or unknown account is a no-op.
func (s *Service) GrantReward(ctx context.Context, accountID string, opts GrantOptions) (GrantResult, error) {
	if accountID == "" {
		return GrantResult{}, nil
	}

	base := int64(s.rand.IntN(3) + 1)
	bonus := s.rand.Float64() < s.policy.BonusChance
	now := s.now()

	var res GrantResult
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		acct, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if acct == nil {
			return errNoAccount
		}

		if opts.SessionID != "" {
			seen, err := tx.GrantExists(ctx, opts.SessionID)
			if err != nil {
				return err
			}
			if seen {
				return ErrDuplicateSignal
			}
		}

		if bonus && s.policy.BonusCapEnabled {
			n, err := tx.CountBonusGrantsSince(ctx, accountID, startOfDay(now, s.policy.Location))
			if err != nil {
				return err
			}
			if n >= s.policy.BonusDailyCap {
				bonus = false
			}
		}

		points, label, status := base, model.LabelAdReward, model.ActivityCompleted
		if bonus {
			points, label, status = s.policy.BonusPoints, model.LabelLuckyBonus, model.ActivityBonus
		}

		grant := &model.RewardGrant{
			AccountID: accountID,
			SessionID: opts.SessionID,
			Points:    points,
			Bonus:     bonus,
			CreatedAt: now,
		}
		if err := tx.RecordGrant(ctx, grant); err != nil {
			return err
		}

		balance, _, err := tx.IncrementBalance(ctx, accountID, points)
		if err != nil {
			return err
		}

		err = s.pruner.AppendActivity(ctx, tx, &model.ActivityRecord{
			AccountID:  accountID,
			Kind:       model.KindAdWatch,
			PointDelta: points,
			Label:      label,
			Status:     status,
			CreatedAt:  now,
		})
		if err != nil {
			return err
		}

		res = GrantResult{PointsAwarded: points, IsBonus: bonus, Balance: balance}
		return nil
	})
	if errors.Is(err, errNoAccount) {
		return GrantResult{}, nil
	}
	if err != nil {
		if !errors.Is(err, ErrDuplicateSignal) {
			s.logger.Error("grant reward", "account_id", accountID, "error", err)
		}
		return GrantResult{}, storeErr(err)
	}

	s.cache.Invalidate(ctx, accountID)
	s.logger.Info("reward granted", "account_id", accountID, "points", res.PointsAwarded, "bonus", res.IsBonus)
	return res, nil
}
