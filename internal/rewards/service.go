package rewards

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukerupert/emerald/internal/cache"
	"github.com/dukerupert/emerald/internal/ident"
	"github.com/dukerupert/emerald/internal/model"
	"github.com/dukerupert/emerald/internal/store"
	"github.com/dukerupert/emerald/internal/vault"
)

// Policy holds the tunable reward and withdrawal rules.
type Policy struct {
	BonusChance     float64
	BonusPoints     int64
	BonusDailyCap   int
	BonusCapEnabled bool
	HistoryLimit    int
	RefundOnReject  bool
	// Location defines "local midnight" for the daily bonus cap.
	Location *time.Location
}

func DefaultPolicy() Policy {
	return Policy{
		BonusChance:     0.10,
		BonusPoints:     6,
		BonusDailyCap:   2,
		BonusCapEnabled: true,
		HistoryLimit:    model.HistoryLimit,
		RefundOnReject:  true,
		Location:        time.Local,
	}
}

// Events receives committed withdrawal changes, for the admin live feed.
type Events interface {
	WithdrawalCreated(w model.WithdrawalRequest)
	WithdrawalResolved(w model.WithdrawalRequest)
}

// Notifier tells the requester about a resolved withdrawal.
type Notifier interface {
	WithdrawalApproved(ctx context.Context, w model.WithdrawalRequest) error
	WithdrawalRejected(ctx context.Context, w model.WithdrawalRequest) error
}

type noopEvents struct{}

func (noopEvents) WithdrawalCreated(model.WithdrawalRequest)  {}
func (noopEvents) WithdrawalResolved(model.WithdrawalRequest) {}

// Service implements reward granting, withdrawal processing and the
// account queries behind the API.
type Service struct {
	store     *store.Store
	ids       *ident.Generator
	pruner    *Pruner
	policy    Policy
	cache     cache.Accounts
	sealer    vault.Sealer
	rand      Random
	now       func() time.Time
	events    Events
	notifiers []Notifier
	logger    *slog.Logger
}

// Option configures optional Service collaborators.
type Option func(*Service)

func WithCache(c cache.Accounts) Option {
	return func(s *Service) { s.cache = c }
}

func WithSealer(v vault.Sealer) Option {
	return func(s *Service) { s.sealer = v }
}

func WithRandom(r Random) Option {
	return func(s *Service) { s.rand = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithEvents(e Events) Option {
	return func(s *Service) { s.events = e }
}

// WithNotifier adds n to the notifiers told about resolved requests.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifiers = append(s.notifiers, n) }
}

func NewService(st *store.Store, ids *ident.Generator, policy Policy, logger *slog.Logger, opts ...Option) *Service {
	if policy.Location == nil {
		policy.Location = time.Local
	}
	if policy.HistoryLimit < 1 {
		policy.HistoryLimit = model.HistoryLimit
	}

	s := &Service{
		store:  st,
		ids:    ids,
		pruner: NewPruner(policy.HistoryLimit, logger),
		policy: policy,
		cache:  cache.NewMemory(5 * time.Minute),
		sealer: vault.Plain{},
		rand:   globalRandom{},
		now:    time.Now,
		events: noopEvents{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Policy() Policy {
	return s.policy
}
