package bridge

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/emerald/internal/rewards"
)

const (
	MessageRewardAdded = "Points Added Successfully!"
	MessageNotReady    = "Ad is still loading... wait 5 seconds."
	MessageAdFailed    = "Ad failed to load. Please try again."
	MessageRateLimited = "Too many ads right now. Try again later."
	MessageUnavailable = "Could not add points right now."
)

// Reply is the outbound message for the view.
type Reply struct {
	Type    string `json:"type"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Session string `json:"session,omitempty"`
	Points  int64  `json:"points,omitempty"`
	Bonus   bool   `json:"bonus,omitempty"`
	Balance int64  `json:"balance,omitempty"`
}

// Grantor credits a rewarded ad view.
type Grantor interface {
	GrantReward(ctx context.Context, accountID string, opts rewards.GrantOptions) (rewards.GrantResult, error)
}

// Limiter bounds how often an account may start ads.
type Limiter interface {
	Allow(key string, limit int, per time.Duration) bool
}

// Listener handles the bridge signals of one open view. It is not safe for
// concurrent use; the connection's read loop owns it and it ends with the
// connection.
type Listener struct {
	accountID string
	grantor   Grantor
	limiter   Limiter
	limit     int
	per       time.Duration
	newID     func() string
	logger    *slog.Logger

	// session is the ad playback currently in flight, if any.
	session string
}

type Option func(*Listener)

// WithRateLimit caps ad starts at limit per window for the account.
func WithRateLimit(l Limiter, limit int, per time.Duration) Option {
	return func(li *Listener) {
		li.limiter = l
		li.limit = limit
		li.per = per
	}
}

func NewListener(accountID string, grantor Grantor, logger *slog.Logger, opts ...Option) *Listener {
	l := &Listener{
		accountID: accountID,
		grantor:   grantor,
		newID:     uuid.NewString,
		logger:    logger.With("account_id", accountID),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// InFlight returns the current ad session token, or "".
func (l *Listener) InFlight() string {
	return l.session
}

// Handle processes one inbound frame. ok is false when nothing should be
// sent back.
func (l *Listener) Handle(ctx context.Context, data []byte) (reply Reply, ok bool) {
	f, err := ParseFrame(data)
	if err != nil {
		l.logger.Debug("ignored bridge frame", "error", err)
		return Reply{Type: "error", Status: "unknown_signal"}, true
	}

	switch f.Signal {
	case SignalShowAd:
		return l.startSession(), true
	case SignalRewardGranted:
		return l.grant(ctx, f.Session)
	case SignalAdClosed, SignalAdDismissed:
		l.session = ""
		return Reply{Type: "status", Status: "closed"}, true
	case SignalAdNotReady:
		l.session = ""
		return Reply{Type: "status", Status: "not_ready", Message: MessageNotReady}, true
	case SignalAdFailed:
		l.session = ""
		return Reply{Type: "status", Status: "failed", Message: MessageAdFailed}, true
	}
	return Reply{}, false
}

func (l *Listener) startSession() Reply {
	if l.limiter != nil && !l.limiter.Allow("ad:"+l.accountID, l.limit, l.per) {
		l.logger.Warn("ad start rate limited")
		return Reply{Type: "error", Status: "rate_limited", Message: MessageRateLimited}
	}
	l.session = l.newID()
	return Reply{Type: "ad_session", Session: l.session}
}

func (l *Listener) grant(ctx context.Context, session string) (Reply, bool) {
	if l.session == "" {
		l.logger.Debug("reward signal without an ad in flight")
		return Reply{}, false
	}
	if session != "" && session != l.session {
		l.logger.Debug("reward signal for stale session", "session", session)
		return Reply{}, false
	}

	sessionID := l.session
	l.session = ""

	res, err := l.grantor.GrantReward(ctx, l.accountID, rewards.GrantOptions{SessionID: sessionID})
	if errors.Is(err, rewards.ErrDuplicateSignal) {
		return Reply{}, false
	}
	if err != nil {
		return Reply{Type: "error", Status: "unavailable", Message: MessageUnavailable}, true
	}
	return Reply{
		Type:    "reward",
		Status:  "granted",
		Message: MessageRewardAdded,
		Points:  res.PointsAwarded,
		Bonus:   res.IsBonus,
		Balance: res.Balance,
	}, true
}
