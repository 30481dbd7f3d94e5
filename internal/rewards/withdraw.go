package rewards

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/dukerupert/emerald/internal/model"
	"github.com/dukerupert/emerald/internal/store"
)

// SubmitWithdrawal turns points into a pending redemption request. The
// points leave the balance immediately. An empty or unknown account is a
// no-op returning nil, nil; the account is checked before the amount and
// contact email are validated.
func (s *Service) SubmitWithdrawal(ctx context.Context, accountID string, points int64, contactEmail string) (*model.WithdrawalRequest, error) {
	if accountID == "" {
		return nil, nil
	}
	contactEmail = strings.TrimSpace(contactEmail)

	now := s.now()
	var req *model.WithdrawalRequest
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		acct, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if acct == nil {
			return errNoAccount
		}
		if points < model.MinWithdrawal {
			return ErrBelowMinimumWithdrawal
		}
		if _, err := mail.ParseAddress(contactEmail); err != nil {
			return ErrInvalidContactEmail
		}

		if _, ok, err := tx.DeductBalance(ctx, accountID, points); err != nil {
			return err
		} else if !ok {
			return ErrInsufficientBalance
		}

		id := s.ids.NextID()
		ref, err := s.ids.Reference(id)
		if err != nil {
			return err
		}

		w := &model.WithdrawalRequest{
			ID:               id,
			Reference:        ref,
			AccountID:        accountID,
			ContactEmail:     contactEmail,
			PointsRequested:  points,
			AmountInCurrency: model.AmountForPoints(points),
			Method:           model.MethodGooglePlay,
			Status:           model.StatusPending,
			CreatedAt:        now,
		}
		if err := s.pruner.AppendWithdrawal(ctx, tx, w); err != nil {
			return err
		}

		err = s.pruner.AppendActivity(ctx, tx, &model.ActivityRecord{
			AccountID:    accountID,
			Kind:         model.KindWithdrawal,
			PointDelta:   -points,
			Label:        model.LabelRedemption,
			Status:       model.ActivityPending,
			WithdrawalID: &id,
			CreatedAt:    now,
		})
		if err != nil {
			return err
		}

		req = w
		return nil
	})
	if errors.Is(err, errNoAccount) {
		return nil, nil
	}
	if err != nil {
		if !isDomainErr(err) {
			s.logger.Error("submit withdrawal", "account_id", accountID, "points", points, "error", err)
		}
		return nil, storeErr(err)
	}

	s.cache.Invalidate(ctx, accountID)
	s.events.WithdrawalCreated(*req)
	s.logger.Info("withdrawal submitted", "account_id", accountID, "withdrawal_id", req.ID, "points", points)
	return req, nil
}

// Decision is an admin's resolution of a pending request.
type Decision struct {
	Status     model.RequestStatus
	RedeemCode string
	AdminNote  string
}

// ResolveWithdrawal approves or rejects a pending request. Approval needs
// a redeem code. Rejection refunds the points when the policy says so.
// A request can be resolved once.
func (s *Service) ResolveWithdrawal(ctx context.Context, requestID int64, d Decision) (*model.WithdrawalRequest, error) {
	code := strings.TrimSpace(d.RedeemCode)
	note := strings.TrimSpace(d.AdminNote)

	var activityStatus model.ActivityStatus
	switch d.Status {
	case model.StatusApproved:
		if code == "" {
			return nil, ErrMissingRedeemCode
		}
		activityStatus = model.ActivityCompleted
	case model.StatusRejected:
		code = ""
		activityStatus = model.ActivityRejected
	default:
		return nil, ErrInvalidDecision
	}

	sealed, err := s.sealer.Seal(code)
	if err != nil {
		s.logger.Error("seal redeem code", "withdrawal_id", requestID, "error", err)
		return nil, storeErr(err)
	}

	now := s.now()
	var resolved *model.WithdrawalRequest
	err = s.store.WithTx(ctx, func(tx *store.Store) error {
		w, err := tx.GetWithdrawal(ctx, requestID)
		if err != nil {
			return err
		}
		if w == nil {
			return ErrWithdrawalNotFound
		}
		if w.Status != model.StatusPending {
			return ErrAlreadyProcessed
		}

		ok, err := tx.UpdateWithdrawal(ctx, requestID, d.Status, sealed, note, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyProcessed
		}

		if err := tx.SetActivityStatusForWithdrawal(ctx, requestID, activityStatus); err != nil {
			return err
		}

		if d.Status == model.StatusRejected && s.policy.RefundOnReject {
			if _, _, err := tx.IncrementBalance(ctx, w.AccountID, w.PointsRequested); err != nil {
				return err
			}
			err = s.pruner.AppendActivity(ctx, tx, &model.ActivityRecord{
				AccountID:    w.AccountID,
				Kind:         model.KindWithdrawal,
				PointDelta:   w.PointsRequested,
				Label:        model.LabelRedemptionRefund,
				Status:       model.ActivityCompleted,
				WithdrawalID: &requestID,
				CreatedAt:    now,
			})
			if err != nil {
				return err
			}
		}

		resolved, err = tx.GetWithdrawal(ctx, requestID)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrWithdrawalNotFound), errors.Is(err, ErrAlreadyProcessed):
		default:
			s.logger.Error("resolve withdrawal", "withdrawal_id", requestID, "error", err)
		}
		return nil, storeErr(err)
	}
	resolved.RedeemCode = code

	s.cache.Invalidate(ctx, resolved.AccountID)
	s.events.WithdrawalResolved(*resolved)
	s.logger.Info("withdrawal resolved",
		"withdrawal_id", requestID,
		"account_id", resolved.AccountID,
		"status", resolved.Status,
		"refunded", d.Status == model.StatusRejected && s.policy.RefundOnReject,
	)

	s.notify(ctx, *resolved)
	return resolved, nil
}

func (s *Service) notify(ctx context.Context, w model.WithdrawalRequest) {
	for _, n := range s.notifiers {
		var err error
		switch w.Status {
		case model.StatusApproved:
			err = n.WithdrawalApproved(ctx, w)
		case model.StatusRejected:
			err = n.WithdrawalRejected(ctx, w)
		}
		if err != nil {
			s.logger.Warn("notify requester", "withdrawal_id", w.ID, "error", err)
		}
	}
}
