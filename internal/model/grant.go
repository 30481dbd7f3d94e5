package model

import "time"

// RewardGrant is a ledger entry for one awarded ad reward. Unlike the
// activity log it is not pruned per account, so it backs the daily bonus
// cap and duplicate-signal detection.
type RewardGrant struct {
	ID        int64     `json:"id"`
	AccountID string    `json:"accountId"`
	SessionID string    `json:"sessionId,omitempty"`
	Points    int64     `json:"points"`
	Bonus     bool      `json:"bonus"`
	CreatedAt time.Time `json:"createdAt"`
}
