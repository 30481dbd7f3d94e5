package push

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/dukerupert/emerald/internal/model"
)

// ErrExpired is returned when a push subscription is no longer valid (410 Gone).
var ErrExpired = errors.New("push subscription expired")

// Payload is the JSON sent to the push service.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

// Config holds VAPID configuration.
type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	// Subject is the contact URI the push service sees, e.g. "mailto:ops@emerald.app".
	Subject string
}

func (c Config) Enabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// Subscriptions is the storage the service reads devices from and prunes
// expired endpoints in.
type Subscriptions interface {
	ListSubscriptions(ctx context.Context, accountID string) ([]model.PushSubscription, error)
	DeleteSubscriptionByEndpoint(ctx context.Context, endpoint string) error
}

type sendFunc func(message []byte, s *webpush.Subscription, opts *webpush.Options) (*http.Response, error)

// Service sends web push notifications to an account's devices.
type Service struct {
	cfg    Config
	subs   Subscriptions
	send   sendFunc
	logger *slog.Logger
}

func NewService(cfg Config, subs Subscriptions, logger *slog.Logger) *Service {
	return &Service{cfg: cfg, subs: subs, send: webpush.SendNotification, logger: logger}
}

// VAPIDPublicKey returns the VAPID public key for client-side subscription.
func (s *Service) VAPIDPublicKey() string {
	return s.cfg.VAPIDPublicKey
}

// Send sends a push notification to a subscription.
func (s *Service) Send(sub model.PushSubscription, payload Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := s.send(data, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpush.Options{
		VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
		Subscriber:      s.cfg.Subject,
		TTL:             86400,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		return ErrExpired
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}
	return nil
}

// Notify sends payload to every device of the account. Expired endpoints
// are removed; other failures are logged and counted.
func (s *Service) Notify(ctx context.Context, accountID string, payload Payload) (sent int, err error) {
	subs, err := s.subs.ListSubscriptions(ctx, accountID)
	if err != nil {
		return 0, err
	}

	var failed int
	for _, sub := range subs {
		err := s.Send(sub, payload)
		switch {
		case err == nil:
			sent++
		case errors.Is(err, ErrExpired):
			if err := s.subs.DeleteSubscriptionByEndpoint(ctx, sub.Endpoint); err != nil {
				s.logger.Warn("remove expired push subscription", "id", sub.ID, "error", err)
			}
		default:
			failed++
			s.logger.Warn("push send failed", "account_id", accountID, "id", sub.ID, "error", err)
		}
	}
	if sent == 0 && failed > 0 {
		return 0, fmt.Errorf("push to %d devices failed", failed)
	}
	return sent, nil
}

// WithdrawalApproved tells the requester's devices that the code is ready.
// The code itself stays out of the payload.
func (s *Service) WithdrawalApproved(ctx context.Context, w model.WithdrawalRequest) error {
	_, err := s.Notify(ctx, w.AccountID, Payload{
		Title: "Redemption approved",
		Body:  fmt.Sprintf("Your %s redemption for %d points is ready.", w.Method, w.PointsRequested),
		URL:   "/withdrawals",
		Tag:   w.Reference,
	})
	return err
}

func (s *Service) WithdrawalRejected(ctx context.Context, w model.WithdrawalRequest) error {
	_, err := s.Notify(ctx, w.AccountID, Payload{
		Title: "Redemption rejected",
		Body:  fmt.Sprintf("Your redemption request %s was not approved.", w.Reference),
		URL:   "/withdrawals",
		Tag:   w.Reference,
	})
	return err
}

// GenerateVAPIDKeys generates a new ECDSA P-256 key pair for VAPID.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate ECDSA key: %w", err)
	}

	pubBytes := elliptic.Marshal(elliptic.P256(), key.PublicKey.X, key.PublicKey.Y)
	publicKey = base64.RawURLEncoding.EncodeToString(pubBytes)
	privateKey = base64.RawURLEncoding.EncodeToString(key.D.FillBytes(make([]byte, 32)))

	return publicKey, privateKey, nil
}
