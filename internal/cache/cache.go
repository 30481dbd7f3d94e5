package cache

import (
	"context"
	"sync/atomic"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/dukerupert/emerald/internal/model"
)

// Accounts caches account snapshots between reads. Writers must call
// Invalidate after every committed mutation of an account.
//
// Fills are two-phase: a reader takes a token with Reserve before reading the
// store and passes it to Fill. Fill is dropped when the account was
// invalidated after the token was issued, so a slow reader cannot put back a
// balance a concurrent write already replaced.
type Accounts interface {
	Get(ctx context.Context, id string) (*model.Account, bool)
	Reserve(ctx context.Context, id string) uint64
	Fill(ctx context.Context, a *model.Account, token uint64)
	Invalidate(ctx context.Context, id string)
}

// slot holds an account's generation and, once filled, its snapshot.
type slot struct {
	gen       uint64
	account   *model.Account
	expiresAt time.Time
}

// Memory is an in-process Accounts backend.
type Memory struct {
	slots cmap.ConcurrentMap[string, slot]
	gen   atomic.Uint64
	ttl   time.Duration
	now   func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		slots: cmap.New[slot](),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (m *Memory) Get(_ context.Context, id string) (*model.Account, bool) {
	sl, ok := m.slots.Get(id)
	if !ok || sl.account == nil || m.now().After(sl.expiresAt) {
		return nil, false
	}
	a := *sl.account
	return &a, true
}

// Reserve returns the current generation of id, starting one if needed.
// Generations come from one counter, so a token never matches a slot that
// was swept and recreated.
func (m *Memory) Reserve(_ context.Context, id string) uint64 {
	sl := m.slots.Upsert(id, slot{}, func(exists bool, cur, _ slot) slot {
		if exists && cur.gen != 0 {
			return cur
		}
		return slot{gen: m.gen.Add(1), expiresAt: m.now().Add(m.ttl)}
	})
	return sl.gen
}

func (m *Memory) Fill(_ context.Context, a *model.Account, token uint64) {
	if a == nil || token == 0 {
		return
	}
	snapshot := *a
	m.slots.Upsert(a.ID, slot{}, func(exists bool, cur, _ slot) slot {
		if !exists || cur.gen != token {
			return cur
		}
		cur.account = &snapshot
		cur.expiresAt = m.now().Add(m.ttl)
		return cur
	})
}

// Invalidate drops the snapshot and moves id to a new generation, voiding
// outstanding tokens.
func (m *Memory) Invalidate(_ context.Context, id string) {
	m.slots.Set(id, slot{gen: m.gen.Add(1), expiresAt: m.now().Add(m.ttl)})
}

// Sweep drops expired slots and returns how many were removed.
func (m *Memory) Sweep() int {
	now := m.now()
	removed := 0
	for _, id := range m.slots.Keys() {
		if m.slots.RemoveCb(id, func(_ string, sl slot, exists bool) bool {
			return exists && now.After(sl.expiresAt)
		}) {
			removed++
		}
	}
	return removed
}

func (m *Memory) Len() int {
	return m.slots.Count()
}
