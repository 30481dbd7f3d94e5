package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"

	"github.com/dukerupert/emerald/internal/model"
)

const postmarkURL = "https://api.postmarkapp.com/email"

var ErrNotConfigured = errors.New("email client not configured: missing server token")

// Client sends withdrawal notifications through Postmark.
type Client struct {
	serverToken string
	fromEmail   string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(serverToken, fromEmail string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
	Tag      string `json:"Tag,omitempty"`
}

// WithdrawalApproved mails the redeem code to the request's contact address.
func (c *Client) WithdrawalApproved(ctx context.Context, w model.WithdrawalRequest) error {
	subject := fmt.Sprintf("Your %s code is ready (%s)", w.Method, w.Reference)
	textBody := fmt.Sprintf(
		"Your redemption of %d points ($%s) was approved.\n\nRedeem code: %s\n\nReference: %s",
		w.PointsRequested, w.AmountInCurrency.StringFixed(2), w.RedeemCode, w.Reference,
	)
	htmlBody := fmt.Sprintf(
		`<p>Your redemption of %d points ($%s) was approved.</p><p>Redeem code: <strong>%s</strong></p><p>Reference: %s</p>`,
		w.PointsRequested, w.AmountInCurrency.StringFixed(2), html.EscapeString(w.RedeemCode), w.Reference,
	)
	return c.send(ctx, postmarkEmail{
		To:       w.ContactEmail,
		Subject:  subject,
		TextBody: textBody,
		HtmlBody: htmlBody,
		Tag:      "withdrawal-approved",
	})
}

// WithdrawalRejected tells the requester their redemption was declined.
func (c *Client) WithdrawalRejected(ctx context.Context, w model.WithdrawalRequest) error {
	subject := fmt.Sprintf("Your redemption %s was declined", w.Reference)
	textBody := fmt.Sprintf("Your redemption of %d points was declined.", w.PointsRequested)
	htmlBody := fmt.Sprintf(`<p>Your redemption of %d points was declined.</p>`, w.PointsRequested)
	if w.AdminNote != "" {
		textBody += "\n\nNote: " + w.AdminNote
		htmlBody += "<p>Note: " + html.EscapeString(w.AdminNote) + "</p>"
	}
	return c.send(ctx, postmarkEmail{
		To:       w.ContactEmail,
		Subject:  subject,
		TextBody: textBody,
		HtmlBody: htmlBody,
		Tag:      "withdrawal-rejected",
	})
}

func (c *Client) send(ctx context.Context, payload postmarkEmail) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	payload.From = c.fromEmail

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postmarkURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}
