package rewards

import (
	"context"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/emerald/internal/model"
)

// EnsureAccount returns the caller's account, creating it on first login.
// isAdmin promotes the account; it never demotes.
func (s *Service) EnsureAccount(ctx context.Context, id model.Identity, isAdmin bool) (*model.Account, error) {
	if id.Subject == "" {
		return nil, ErrUnauthenticated
	}

	if a, ok := s.cache.Get(ctx, id.Subject); ok && (a.IsAdmin || !isAdmin) {
		return a, nil
	}
	token := s.cache.Reserve(ctx, id.Subject)

	a, err := s.store.CreateAccount(ctx, model.Account{
		ID:          id.Subject,
		DisplayName: id.Name,
		Email:       id.Email,
		PhotoURL:    id.PhotoURL,
		IsAdmin:     isAdmin,
		CreatedAt:   s.now(),
	})
	if err != nil {
		s.logger.Error("ensure account", "account_id", id.Subject, "error", err)
		return nil, storeErr(err)
	}

	if isAdmin && !a.IsAdmin {
		if err := s.store.SetAdmin(ctx, a.ID, true); err != nil {
			s.logger.Error("promote admin", "account_id", a.ID, "error", err)
			return nil, storeErr(err)
		}
		a.IsAdmin = true
		s.logger.Info("account promoted to admin", "account_id", a.ID)
	}

	s.cache.Fill(ctx, a, token)
	return a, nil
}

// Account reads through the cache. It returns nil, nil for an unknown id.
func (s *Service) Account(ctx context.Context, accountID string) (*model.Account, error) {
	if accountID == "" {
		return nil, nil
	}
	if a, ok := s.cache.Get(ctx, accountID); ok {
		return a, nil
	}

	token := s.cache.Reserve(ctx, accountID)
	a, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, storeErr(err)
	}
	if a != nil {
		s.cache.Fill(ctx, a, token)
	}
	return a, nil
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 || limit > s.policy.HistoryLimit {
		return s.policy.HistoryLimit
	}
	return limit
}

// ListActivity returns the account's retained activity, newest first.
func (s *Service) ListActivity(ctx context.Context, accountID string, limit int) ([]model.ActivityRecord, error) {
	records, err := s.store.ListActivity(ctx, accountID, s.clampLimit(limit))
	if err != nil {
		return nil, storeErr(err)
	}
	return records, nil
}

// ListWithdrawals returns the account's retained requests, newest first,
// with redeem codes readable.
func (s *Service) ListWithdrawals(ctx context.Context, accountID string, limit int) ([]model.WithdrawalRequest, error) {
	requests, err := s.store.ListWithdrawals(ctx, accountID, s.clampLimit(limit))
	if err != nil {
		return nil, storeErr(err)
	}
	s.openCodes(requests)
	return requests, nil
}

// ParseStatusFilter maps "pending", "approved", "rejected" and "all" (or
// empty) to a status filter, where "" means every status.
func ParseStatusFilter(v string) (model.RequestStatus, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" || v == "all" {
		return "", nil
	}
	st := model.RequestStatus(v)
	if !st.Valid() {
		return "", ErrInvalidStatusFilter
	}
	return st, nil
}

// ListAllWithdrawals is the admin review queue.
func (s *Service) ListAllWithdrawals(ctx context.Context, filter string) ([]model.WithdrawalRequest, error) {
	status, err := ParseStatusFilter(filter)
	if err != nil {
		return nil, err
	}
	requests, err := s.store.ListAllWithdrawals(ctx, status)
	if err != nil {
		return nil, storeErr(err)
	}
	s.openCodes(requests)
	return requests, nil
}

func (s *Service) openCodes(requests []model.WithdrawalRequest) {
	for i := range requests {
		if requests[i].RedeemCode == "" {
			continue
		}
		code, err := s.sealer.Open(requests[i].RedeemCode)
		if err != nil {
			s.logger.Warn("open redeem code", "withdrawal_id", requests[i].ID, "error", err)
			requests[i].RedeemCode = ""
			continue
		}
		requests[i].RedeemCode = code
	}
}

func (s *Service) ListAccounts(ctx context.Context) ([]model.Account, error) {
	accounts, err := s.store.ListAllAccounts(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	return accounts, nil
}

// Overview gathers the admin dashboard totals concurrently.
func (s *Service) Overview(ctx context.Context) (model.Overview, error) {
	var o model.Overview
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		o.TotalUsers, err = s.store.CountAccounts(ctx)
		return err
	})
	g.Go(func() (err error) {
		o.PendingPoints, err = s.store.SumPendingPoints(ctx)
		return err
	})
	g.Go(func() (err error) {
		o.ApprovedCount, err = s.store.CountWithdrawals(ctx, model.StatusApproved)
		return err
	})
	g.Go(func() (err error) {
		o.TotalPointsSystem, err = s.store.SumBalances(ctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return model.Overview{}, storeErr(err)
	}
	return o, nil
}

// PurgeGrants drops grant ledger entries older than age. Entries are only
// needed for the current day's bonus cap and recent duplicate checks.
func (s *Service) PurgeGrants(ctx context.Context, age time.Duration) (int64, error) {
	n, err := s.store.PurgeGrantsBefore(ctx, s.now().Add(-age))
	if err != nil {
		return 0, storeErr(err)
	}
	return n, nil
}

// ParseWithdrawalID accepts a numeric request id or a public "WR-"
// reference. References are looked up as stored first, so requests keep
// resolving after EMERALD_HASHID_SALT changes; unknown references fall back
// to decoding. Anything unparseable is ErrWithdrawalNotFound.
func (s *Service) ParseWithdrawalID(ctx context.Context, v string) (int64, error) {
	v = strings.TrimSpace(v)
	if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
		return id, nil
	}
	if !strings.HasPrefix(strings.ToUpper(v), "WR-") {
		return 0, ErrWithdrawalNotFound
	}

	w, err := s.store.GetWithdrawalByReference(ctx, strings.ToUpper(v))
	if err != nil {
		s.logger.Error("lookup withdrawal reference", "reference", v, "error", err)
		return 0, storeErr(err)
	}
	if w != nil {
		return w.ID, nil
	}

	id, err := s.ids.ParseReference(v)
	if err != nil {
		return 0, ErrWithdrawalNotFound
	}
	return id, nil
}
