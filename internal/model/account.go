package model

import "time"

type Account struct {
	ID           string    `json:"uid"`
	DisplayName  string    `json:"displayName"`
	Email        string    `json:"email"`
	PhotoURL     string    `json:"photoURL"`
	PointBalance int64     `json:"pointBalance"`
	IsAdmin      bool      `json:"isAdmin"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Identity is what a verified login token tells us about the caller.
type Identity struct {
	Subject  string
	Name     string
	Email    string
	PhotoURL string
}

// Overview is the admin dashboard summary.
type Overview struct {
	TotalUsers        int64 `json:"totalUsers"`
	PendingPoints     int64 `json:"pendingPoints"`
	ApprovedCount     int64 `json:"approvedCount"`
	TotalPointsSystem int64 `json:"totalPointsSystem"`
}
