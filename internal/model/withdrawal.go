package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

// Valid reports whether s is one of the three request states.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

const (
	MinWithdrawal    int64 = 1000
	HistoryLimit           = 10
	MethodGooglePlay       = "Google Play Redeem"
)

// ConversionFactor is the currency value of one point.
var ConversionFactor = decimal.New(1, -2)

// AmountForPoints converts points to currency without floating point error.
func AmountForPoints(points int64) decimal.Decimal {
	return decimal.NewFromInt(points).Mul(ConversionFactor)
}

type WithdrawalRequest struct {
	ID               int64           `json:"id,string"`
	Reference        string          `json:"reference"`
	AccountID        string          `json:"userId"`
	ContactEmail     string          `json:"email"`
	PointsRequested  int64           `json:"pointsRequested"`
	AmountInCurrency decimal.Decimal `json:"amountInCurrency"`
	Method           string          `json:"method"`
	Status           RequestStatus   `json:"status"`
	RedeemCode       string          `json:"redeemCode,omitempty"`
	AdminNote        string          `json:"adminNote,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	ProcessedAt      *time.Time      `json:"processedAt,omitempty"`
}
