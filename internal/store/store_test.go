package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dukerupert/emerald/internal/database"
	"github.com/dukerupert/emerald/internal/model"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func createAccount(t *testing.T, s *Store, id string, balance int64) *model.Account {
	t.Helper()
	a, err := s.CreateAccount(context.Background(), model.Account{
		ID:           id,
		DisplayName:  "User " + id,
		Email:        id + "@example.com",
		PointBalance: balance,
		CreatedAt:    t0,
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return a
}

func TestAccountCreateAndGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a := createAccount(t, s, "acc-1", 0)
	if a.DisplayName != "User acc-1" {
		t.Errorf("display name = %q, want %q", a.DisplayName, "User acc-1")
	}
	if !a.CreatedAt.Equal(t0) {
		t.Errorf("created at = %v, want %v", a.CreatedAt, t0)
	}

	// Second create keeps the existing row.
	again, err := s.CreateAccount(ctx, model.Account{ID: "acc-1", DisplayName: "Changed", PointBalance: 99, CreatedAt: t0})
	if err != nil {
		t.Fatalf("create again: %v", err)
	}
	if again.DisplayName != "User acc-1" || again.PointBalance != 0 {
		t.Errorf("existing account overwritten: %+v", again)
	}

	missing, err := s.GetAccount(ctx, "nobody")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing account, got %+v", missing)
	}
}

func TestIncrementBalance(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	createAccount(t, s, "acc-1", 10)

	bal, ok, err := s.IncrementBalance(ctx, "acc-1", 6)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if !ok || bal != 16 {
		t.Errorf("increment = (%d, %v), want (16, true)", bal, ok)
	}

	_, ok, err = s.IncrementBalance(ctx, "nobody", 3)
	if err != nil {
		t.Fatalf("increment missing: %v", err)
	}
	if ok {
		t.Error("expected ok=false for missing account")
	}
}

func TestDeductBalanceConditional(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	createAccount(t, s, "acc-1", 1000)

	_, ok, err := s.DeductBalance(ctx, "acc-1", 2000)
	if err != nil {
		t.Fatalf("deduct: %v", err)
	}
	if ok {
		t.Error("expected deduct over balance to fail")
	}

	bal, ok, err := s.DeductBalance(ctx, "acc-1", 1000)
	if err != nil {
		t.Fatalf("deduct: %v", err)
	}
	if !ok || bal != 0 {
		t.Errorf("deduct = (%d, %v), want (0, true)", bal, ok)
	}

	a, _ := s.GetAccount(ctx, "acc-1")
	if a.PointBalance != 0 {
		t.Errorf("balance = %d, want 0", a.PointBalance)
	}
}

func TestActivityListAndPrune(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	createAccount(t, s, "acc-1", 0)
	createAccount(t, s, "acc-2", 0)

	for i := range 12 {
		r := &model.ActivityRecord{
			AccountID:  "acc-1",
			Kind:       model.KindAdWatch,
			PointDelta: int64(i + 1),
			Label:      model.LabelAdReward,
			Status:     model.ActivityCompleted,
			CreatedAt:  t0.Add(time.Duration(i) * time.Minute),
		}
		if err := s.AppendActivity(ctx, r); err != nil {
			t.Fatalf("append activity: %v", err)
		}
		if r.ID == 0 {
			t.Fatal("expected activity id to be set")
		}
	}
	other := &model.ActivityRecord{AccountID: "acc-2", Kind: model.KindAdWatch, PointDelta: 1, Label: model.LabelAdReward, Status: model.ActivityCompleted, CreatedAt: t0}
	if err := s.AppendActivity(ctx, other); err != nil {
		t.Fatalf("append activity: %v", err)
	}

	deleted, err := s.PruneActivity(ctx, "acc-1", 10)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	records, err := s.ListActivity(ctx, "acc-1", 50)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 10 {
		t.Fatalf("len = %d, want 10", len(records))
	}
	if records[0].PointDelta != 12 {
		t.Errorf("newest delta = %d, want 12", records[0].PointDelta)
	}
	if records[9].PointDelta != 3 {
		t.Errorf("oldest retained delta = %d, want 3", records[9].PointDelta)
	}

	otherRecords, _ := s.ListActivity(ctx, "acc-2", 50)
	if len(otherRecords) != 1 {
		t.Errorf("other account records = %d, want 1", len(otherRecords))
	}
}

func TestActivitySameTimestampOrdersByID(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	createAccount(t, s, "acc-1", 0)

	for i := range 3 {
		r := &model.ActivityRecord{AccountID: "acc-1", Kind: model.KindAdWatch, PointDelta: int64(i + 1), Label: model.LabelAdReward, Status: model.ActivityCompleted, CreatedAt: t0}
		if err := s.AppendActivity(ctx, r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	records, _ := s.ListActivity(ctx, "acc-1", 10)
	if len(records) != 3 || records[0].PointDelta != 3 {
		t.Errorf("expected last appended first, got %+v", records)
	}
}

func newWithdrawal(id int64, account string, points int64, status model.RequestStatus, at time.Time) *model.WithdrawalRequest {
	return &model.WithdrawalRequest{
		ID:               id,
		Reference:        fmt.Sprintf("WR-%d", id),
		AccountID:        account,
		ContactEmail:     "user@example.com",
		PointsRequested:  points,
		AmountInCurrency: model.AmountForPoints(points),
		Method:           model.MethodGooglePlay,
		Status:           status,
		CreatedAt:        at,
	}
}

func TestWithdrawalLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	createAccount(t, s, "acc-1", 0)

	w := newWithdrawal(100, "acc-1", 1234, model.StatusPending, t0)
	if err := s.AppendWithdrawal(ctx, w); err != nil {
		t.Fatalf("append withdrawal: %v", err)
	}

	got, err := s.GetWithdrawal(ctx, 100)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected withdrawal, got nil")
	}
	if got.AmountInCurrency.String() != "12.34" {
		t.Errorf("amount = %s, want 12.34", got.AmountInCurrency)
	}
	if got.ProcessedAt != nil {
		t.Error("expected nil processed at")
	}

	byRef, err := s.GetWithdrawalByReference(ctx, "WR-100")
	if err != nil || byRef == nil || byRef.ID != 100 {
		t.Fatalf("get by reference = %+v, %v", byRef, err)
	}

	processed := t0.Add(time.Hour)
	ok, err := s.UpdateWithdrawal(ctx, 100, model.StatusApproved, "GP-AAAA", "", processed)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !ok {
		t.Fatal("expected update to apply")
	}

	got, _ = s.GetWithdrawal(ctx, 100)
	if got.Status != model.StatusApproved {
		t.Errorf("status = %q, want approved", got.Status)
	}
	if got.RedeemCode != "GP-AAAA" {
		t.Errorf("code = %q, want GP-AAAA", got.RedeemCode)
	}
	if got.ProcessedAt == nil || !got.ProcessedAt.Equal(processed) {
		t.Errorf("processed at = %v, want %v", got.ProcessedAt, processed)
	}

	// Terminal requests cannot be resolved again.
	ok, err = s.UpdateWithdrawal(ctx, 100, model.StatusRejected, "", "", processed)
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if ok {
		t.Error("expected second update to be refused")
	}

	missing, err := s.GetWithdrawal(ctx, 999)
	if err != nil || missing != nil {
		t.Errorf("get missing = %+v, %v", missing, err)
	}
}

func TestApproveWithoutCodeRejectedByDatabase(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	createAccount(t, s, "acc-1", 0)

	if err := s.AppendWithdrawal(ctx, newWithdrawal(1, "acc-1", 1000, model.StatusPending, t0)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := s.UpdateWithdrawal(ctx, 1, model.StatusApproved, "", "", t0); err == nil {
		t.Error("expected check constraint error")
	}
}

func TestPruneWithdrawalsKeepsPending(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	createAccount(t, s, "acc-1", 0)

	// Oldest request stays pending; the other eleven are resolved.
	if err := s.AppendWithdrawal(ctx, newWithdrawal(1, "acc-1", 1000, model.StatusPending, t0)); err != nil {
		t.Fatalf("append: %v", err)
	}
	for i := int64(2); i <= 12; i++ {
		w := newWithdrawal(i, "acc-1", 1000, model.StatusRejected, t0.Add(time.Duration(i)*time.Minute))
		if err := s.AppendWithdrawal(ctx, w); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	deleted, err := s.PruneWithdrawals(ctx, "acc-1", 10)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	pending, err := s.GetWithdrawal(ctx, 1)
	if err != nil || pending == nil {
		t.Errorf("pending request should survive pruning: %+v, %v", pending, err)
	}
	gone, _ := s.GetWithdrawal(ctx, 2)
	if gone != nil {
		t.Error("oldest resolved request should be pruned")
	}

	list, _ := s.ListWithdrawals(ctx, "acc-1", 10)
	if len(list) != 10 {
		t.Errorf("list len = %d, want 10", len(list))
	}
}

func TestListAllWithdrawalsByStatus(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	createAccount(t, s, "acc-1", 0)
	createAccount(t, s, "acc-2", 0)

	s.AppendWithdrawal(ctx, newWithdrawal(1, "acc-1", 1000, model.StatusPending, t0))
	s.AppendWithdrawal(ctx, newWithdrawal(2, "acc-2", 2000, model.StatusPending, t0.Add(time.Minute)))
	s.AppendWithdrawal(ctx, newWithdrawal(3, "acc-2", 1500, model.StatusRejected, t0.Add(2*time.Minute)))

	all, err := s.ListAllWithdrawals(ctx, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 || all[0].ID != 3 {
		t.Errorf("all = %d entries, first %d; want 3 entries, first 3", len(all), all[0].ID)
	}

	pending, _ := s.ListAllWithdrawals(ctx, model.StatusPending)
	if len(pending) != 2 {
		t.Errorf("pending = %d, want 2", len(pending))
	}

	sum, _ := s.SumPendingPoints(ctx)
	if sum != 3000 {
		t.Errorf("pending points = %d, want 3000", sum)
	}
	n, _ := s.CountWithdrawals(ctx, model.StatusRejected)
	if n != 1 {
		t.Errorf("rejected count = %d, want 1", n)
	}
}

func TestSetActivityStatusForWithdrawal(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	createAccount(t, s, "acc-1", 0)

	wID := int64(77)
	r := &model.ActivityRecord{AccountID: "acc-1", Kind: model.KindWithdrawal, PointDelta: -1000, Label: model.LabelRedemption, Status: model.ActivityPending, WithdrawalID: &wID, CreatedAt: t0}
	if err := s.AppendActivity(ctx, r); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := s.SetActivityStatusForWithdrawal(ctx, wID, model.ActivityCompleted); err != nil {
		t.Fatalf("set status: %v", err)
	}

	records, _ := s.ListActivity(ctx, "acc-1", 10)
	if records[0].Status != model.ActivityCompleted {
		t.Errorf("status = %q, want Completed", records[0].Status)
	}
	if records[0].WithdrawalID == nil || *records[0].WithdrawalID != wID {
		t.Errorf("withdrawal id = %v, want %d", records[0].WithdrawalID, wID)
	}
}

func TestGrantLedger(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	createAccount(t, s, "acc-1", 0)

	grants := []*model.RewardGrant{
		{AccountID: "acc-1", SessionID: "s-1", Points: 6, Bonus: true, CreatedAt: t0.Add(-48 * time.Hour)},
		{AccountID: "acc-1", SessionID: "s-2", Points: 6, Bonus: true, CreatedAt: t0},
		{AccountID: "acc-1", Points: 2, CreatedAt: t0},
		{AccountID: "acc-1", Points: 1, CreatedAt: t0},
	}
	for _, g := range grants {
		if err := s.RecordGrant(ctx, g); err != nil {
			t.Fatalf("record grant: %v", err)
		}
	}

	exists, err := s.GrantExists(ctx, "s-2")
	if err != nil || !exists {
		t.Errorf("grant exists = %v, %v; want true", exists, err)
	}
	exists, _ = s.GrantExists(ctx, "s-9")
	if exists {
		t.Error("unexpected grant for unknown session")
	}

	if err := s.RecordGrant(ctx, &model.RewardGrant{AccountID: "acc-1", SessionID: "s-2", Points: 1, CreatedAt: t0}); err == nil {
		t.Error("expected unique violation for repeated session")
	}

	n, err := s.CountBonusGrantsSince(ctx, "acc-1", t0.Add(-time.Hour))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("bonus count = %d, want 1", n)
	}

	purged, err := s.PurgeGrantsBefore(ctx, t0.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}
}

func TestWithTxRollsBack(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	createAccount(t, s, "acc-1", 100)

	errBoom := errors.New("boom")
	err := s.WithTx(ctx, func(tx *Store) error {
		if _, _, err := tx.IncrementBalance(ctx, "acc-1", 50); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want boom", err)
	}

	a, _ := s.GetAccount(ctx, "acc-1")
	if a.PointBalance != 100 {
		t.Errorf("balance = %d, want 100 after rollback", a.PointBalance)
	}

	err = s.WithTx(ctx, func(tx *Store) error {
		_, _, err := tx.IncrementBalance(ctx, "acc-1", 50)
		return err
	})
	if err != nil {
		t.Fatalf("commit tx: %v", err)
	}
	a, _ = s.GetAccount(ctx, "acc-1")
	if a.PointBalance != 150 {
		t.Errorf("balance = %d, want 150 after commit", a.PointBalance)
	}
}

func TestStats(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	createAccount(t, s, "acc-1", 100)
	createAccount(t, s, "acc-2", 250)

	n, err := s.CountAccounts(ctx)
	if err != nil || n != 2 {
		t.Errorf("count accounts = %d, %v; want 2", n, err)
	}
	sum, err := s.SumBalances(ctx)
	if err != nil || sum != 350 {
		t.Errorf("sum balances = %d, %v; want 350", sum, err)
	}

	accounts, _ := s.ListAllAccounts(ctx)
	if len(accounts) != 2 {
		t.Errorf("accounts = %d, want 2", len(accounts))
	}
}

func TestSettings(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetSetting(ctx, KeyCodeSalt)
	if err != nil || ok {
		t.Fatalf("unset setting = %v, %v", ok, err)
	}

	calls := 0
	init := func() (string, error) {
		calls++
		return "c2FsdA==", nil
	}
	v1, err := s.SettingOrInit(ctx, KeyCodeSalt, init)
	if err != nil {
		t.Fatalf("setting or init: %v", err)
	}
	v2, err := s.SettingOrInit(ctx, KeyCodeSalt, init)
	if err != nil {
		t.Fatalf("setting or init: %v", err)
	}
	if v1 != "c2FsdA==" || v2 != v1 {
		t.Errorf("values = %q, %q", v1, v2)
	}
	if calls != 1 {
		t.Errorf("init calls = %d, want 1", calls)
	}

	if err := s.SetSetting(ctx, KeyCodeSalt, "other"); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, _ := s.GetSetting(ctx, KeyCodeSalt)
	if !ok || v != "other" {
		t.Errorf("setting = %q, %v; want other", v, ok)
	}
}
