package model

import "time"

type ActivityKind string

const (
	KindAdWatch      ActivityKind = "WATCH_AD"
	KindWithdrawal   ActivityKind = "WITHDRAWAL"
	KindReferral     ActivityKind = "REFERRAL"
	KindDailyCheckin ActivityKind = "DAILY_CHECKIN"
)

type ActivityStatus string

const (
	ActivityCompleted ActivityStatus = "Completed"
	ActivityPending   ActivityStatus = "Pending"
	ActivityRejected  ActivityStatus = "Rejected"
	ActivityBonus     ActivityStatus = "Bonus"
)

const (
	LabelAdReward         = "Ad Reward"
	LabelLuckyBonus       = "Lucky Bonus Reward"
	LabelRedemption       = "Reward Redemption"
	LabelRedemptionRefund = "Redemption Refund"
)

// ActivityRecord is one entry of an account's advisory activity log.
// PointDelta is signed: positive for earnings, negative for withdrawals.
type ActivityRecord struct {
	ID           int64          `json:"id"`
	AccountID    string         `json:"userId"`
	Kind         ActivityKind   `json:"type"`
	PointDelta   int64          `json:"amount"`
	Label        string         `json:"title"`
	Status       ActivityStatus `json:"status"`
	WithdrawalID *int64         `json:"withdrawalId,string,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}
