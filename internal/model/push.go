package model

import "time"

// PushSubscription is a browser push endpoint registered by an account's
// device.
type PushSubscription struct {
	ID         int64     `json:"id"`
	AccountID  string    `json:"accountId"`
	Endpoint   string    `json:"endpoint"`
	P256dhKey  string    `json:"p256dh"`
	AuthKey    string    `json:"auth"`
	DeviceName string    `json:"deviceName"`
	CreatedAt  time.Time `json:"createdAt"`
}
