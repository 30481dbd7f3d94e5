package rewards

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/dukerupert/emerald/internal/model"
)

func TestGrantRewardBase(t *testing.T) {
	svc, st, _ := setupService(t, ":memory:", testPolicy(), WithRandom(fixedRandom{n: 2, f: 0.5}))
	ctx := context.Background()
	seedAccount(t, st, "acc-1", 40)

	res, err := svc.GrantReward(ctx, "acc-1", GrantOptions{})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if res.PointsAwarded != 3 || res.IsBonus {
		t.Errorf("result = %+v, want 3 points without bonus", res)
	}
	if res.Balance != 43 {
		t.Errorf("result balance = %d, want 43", res.Balance)
	}
	if got := balanceOf(t, st, "acc-1"); got != 43 {
		t.Errorf("balance = %d, want 43", got)
	}

	records, err := svc.ListActivity(ctx, "acc-1", 0)
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	r := records[0]
	if r.Kind != model.KindAdWatch || r.PointDelta != 3 || r.Status != model.ActivityCompleted || r.Label != model.LabelAdReward {
		t.Errorf("record = %+v", r)
	}
}

func TestGrantRewardBonus(t *testing.T) {
	svc, st, _ := setupService(t, ":memory:", testPolicy(), WithRandom(fixedRandom{n: 0, f: 0.05}))
	ctx := context.Background()
	seedAccount(t, st, "acc-1", 0)

	res, err := svc.GrantReward(ctx, "acc-1", GrantOptions{})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if res.PointsAwarded != 6 || !res.IsBonus {
		t.Errorf("result = %+v, want 6 point bonus", res)
	}

	records, _ := svc.ListActivity(ctx, "acc-1", 0)
	if records[0].Status != model.ActivityBonus || records[0].Label != model.LabelLuckyBonus {
		t.Errorf("record = %+v, want bonus record", records[0])
	}
}

func TestGrantRewardBonusDailyCap(t *testing.T) {
	svc, st, clock := setupService(t, ":memory:", testPolicy(), WithRandom(fixedRandom{n: 0, f: 0.0}))
	ctx := context.Background()
	seedAccount(t, st, "acc-1", 0)

	var awarded []int64
	for range 4 {
		res, err := svc.GrantReward(ctx, "acc-1", GrantOptions{})
		if err != nil {
			t.Fatalf("grant: %v", err)
		}
		awarded = append(awarded, res.PointsAwarded)
	}
	want := []int64{6, 6, 1, 1}
	for i := range want {
		if awarded[i] != want[i] {
			t.Errorf("grant %d awarded %d, want %d", i, awarded[i], want[i])
		}
	}

	// The cap resets at local midnight.
	clock.Set(time.Date(2025, 3, 2, 0, 0, 5, 0, time.UTC))
	res, err := svc.GrantReward(ctx, "acc-1", GrantOptions{})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !res.IsBonus {
		t.Error("expected bonus on the next day")
	}
	if got := balanceOf(t, st, "acc-1"); got != 6+6+1+1+6 {
		t.Errorf("balance = %d, want 20", got)
	}
}

func TestGrantRewardBonusCapUsesLocation(t *testing.T) {
	policy := testPolicy()
	loc := time.FixedZone("UTC+10", 10*60*60)
	policy.Location = loc
	svc, st, clock := setupService(t, ":memory:", policy, WithRandom(fixedRandom{n: 0, f: 0.0}))
	ctx := context.Background()
	seedAccount(t, st, "acc-1", 0)

	// 13:00 UTC is 23:00 local; two bonuses use up the cap.
	clock.Set(time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC))
	for range 2 {
		if _, err := svc.GrantReward(ctx, "acc-1", GrantOptions{}); err != nil {
			t.Fatalf("grant: %v", err)
		}
	}

	// 14:30 UTC is past local midnight.
	clock.Set(time.Date(2025, 3, 1, 14, 30, 0, 0, time.UTC))
	res, err := svc.GrantReward(ctx, "acc-1", GrantOptions{})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !res.IsBonus {
		t.Error("expected cap reset after local midnight")
	}
}

func TestGrantRewardBonusCapDisabled(t *testing.T) {
	policy := testPolicy()
	policy.BonusCapEnabled = false
	svc, st, _ := setupService(t, ":memory:", policy, WithRandom(fixedRandom{n: 0, f: 0.0}))
	ctx := context.Background()
	seedAccount(t, st, "acc-1", 0)

	for i := range 5 {
		res, err := svc.GrantReward(ctx, "acc-1", GrantOptions{})
		if err != nil {
			t.Fatalf("grant: %v", err)
		}
		if !res.IsBonus {
			t.Errorf("grant %d: expected bonus with cap disabled", i)
		}
	}
}

func TestGrantRewardUnknownAccount(t *testing.T) {
	svc, _, _ := setupService(t, ":memory:", testPolicy())
	ctx := context.Background()

	for _, id := range []string{"", "nobody"} {
		res, err := svc.GrantReward(ctx, id, GrantOptions{})
		if err != nil {
			t.Errorf("GrantReward(%q) err = %v, want nil", id, err)
		}
		if res != (GrantResult{}) {
			t.Errorf("GrantReward(%q) = %+v, want zero result", id, res)
		}
	}
}

func TestGrantRewardDuplicateSession(t *testing.T) {
	svc, st, _ := setupService(t, ":memory:", testPolicy())
	ctx := context.Background()
	seedAccount(t, st, "acc-1", 0)

	if _, err := svc.GrantReward(ctx, "acc-1", GrantOptions{SessionID: "ad-1"}); err != nil {
		t.Fatalf("first grant: %v", err)
	}
	_, err := svc.GrantReward(ctx, "acc-1", GrantOptions{SessionID: "ad-1"})
	if !errors.Is(err, ErrDuplicateSignal) {
		t.Fatalf("err = %v, want ErrDuplicateSignal", err)
	}
	if got := balanceOf(t, st, "acc-1"); got != 2 {
		t.Errorf("balance = %d, want 2 after duplicate", got)
	}
	records, _ := svc.ListActivity(ctx, "acc-1", 0)
	if len(records) != 1 {
		t.Errorf("records = %d, want 1", len(records))
	}
}

func TestGrantRewardDistribution(t *testing.T) {
	policy := testPolicy()
	policy.BonusCapEnabled = false
	svc, st, _ := setupService(t, ":memory:", policy, WithRandom(rand.New(rand.NewPCG(7, 11))))
	ctx := context.Background()
	seedAccount(t, st, "acc-1", 0)

	const n = 3000
	var total int64
	bonuses := 0
	seen := map[int64]int{}
	for range n {
		res, err := svc.GrantReward(ctx, "acc-1", GrantOptions{})
		if err != nil {
			t.Fatalf("grant: %v", err)
		}
		switch res.PointsAwarded {
		case 1, 2, 3, 6:
		default:
			t.Fatalf("awarded %d, want one of 1, 2, 3, 6", res.PointsAwarded)
		}
		if res.IsBonus {
			bonuses++
		}
		seen[res.PointsAwarded]++
		total += res.PointsAwarded
	}

	if bonuses < 240 || bonuses > 360 {
		t.Errorf("bonuses = %d of %d, want about 10%%", bonuses, n)
	}
	for _, p := range []int64{1, 2, 3} {
		if seen[p] < 700 {
			t.Errorf("base reward %d drawn %d times, want roughly uniform", p, seen[p])
		}
	}
	if got := balanceOf(t, st, "acc-1"); got != total {
		t.Errorf("balance = %d, want %d", got, total)
	}
}

func TestActivityRetainsNewestTen(t *testing.T) {
	svc, st, _ := setupService(t, ":memory:", testPolicy())
	ctx := context.Background()
	seedAccount(t, st, "acc-1", 0)

	for range 11 {
		if _, err := svc.GrantReward(ctx, "acc-1", GrantOptions{}); err != nil {
			t.Fatalf("grant: %v", err)
		}
	}

	// Read past the limit to see what the store actually kept.
	records, err := st.ListActivity(ctx, "acc-1", 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 10 {
		t.Fatalf("retained = %d, want 10", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i].CreatedAt.After(records[i-1].CreatedAt) {
			t.Errorf("records not newest first at %d", i)
		}
	}
	if got := balanceOf(t, st, "acc-1"); got != 22 {
		t.Errorf("balance = %d, want 22; pruning must not touch the balance", got)
	}
}
