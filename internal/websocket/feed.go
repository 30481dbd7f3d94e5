package websocket

import (
	"time"

	"github.com/dukerupert/emerald/internal/model"
)

const (
	TypeWithdrawalCreated  = "withdrawal.created"
	TypeWithdrawalResolved = "withdrawal.resolved"
)

// WithdrawalEvent is the data of a withdrawal feed frame. The redeem code
// never leaves the service through the feed.
type WithdrawalEvent struct {
	ID        int64  `json:"id,string"`
	Reference string `json:"reference"`
	AccountID string `json:"accountId"`
	Points    int64  `json:"points"`
	Amount    string `json:"amount"`
	Status    string `json:"status"`
}

// Feed publishes withdrawal changes to the admin hub.
type Feed struct {
	hub *Hub
	now func() time.Time
}

func NewFeed(hub *Hub) *Feed {
	return &Feed{hub: hub, now: time.Now}
}

func (f *Feed) publish(typ string, w model.WithdrawalRequest) {
	f.hub.Broadcast(Message{
		Type: typ,
		At:   f.now().UnixMilli(),
		Data: WithdrawalEvent{
			ID:        w.ID,
			Reference: w.Reference,
			AccountID: w.AccountID,
			Points:    w.PointsRequested,
			Amount:    w.AmountInCurrency.StringFixed(2),
			Status:    string(w.Status),
		},
	})
}

func (f *Feed) WithdrawalCreated(w model.WithdrawalRequest) {
	f.publish(TypeWithdrawalCreated, w)
}

func (f *Feed) WithdrawalResolved(w model.WithdrawalRequest) {
	f.publish(TypeWithdrawalResolved, w)
}
