// Package payment adapts hosted-checkout payment gateways. Every provider
// falls back to a demo mode that always succeeds when it has no credentials,
// so the site stays usable in development.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUnavailable wraps network failures and unexpected gateway responses.
	ErrUnavailable      = errors.New("payment service unavailable")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")

	errGatewayAuth = errors.New("gateway rejected credentials")
)

// Status is the normalized payment state reported by a gateway.
type Status string

const (
	StatusPaid    Status = "paid"
	StatusPending Status = "pending"
	StatusFailed  Status = "failed"
)

// Draft is what the registration flow asks a gateway to charge.
type Draft struct {
	RegistrationID string
	Reference      string
	Amount         float64
	Currency       string
	Description    string
	CustomerName   string
	CustomerEmail  string
	ReturnURL      string
	CancelURL      string
}

// Session is a created checkout page.
type Session struct {
	PaymentID  string  `json:"payment_id"`
	PaymentURL string  `json:"payment_url"`
	Reference  string  `json:"transaction_reference"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	Demo       bool    `json:"demo,omitempty"`
}

// Verification is the gateway's view of a payment.
type Verification struct {
	PaymentID string  `json:"payment_id"`
	Reference string  `json:"reference"`
	Status    Status  `json:"status"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
}

// WebhookEvent is a parsed and authenticated webhook delivery.
type WebhookEvent struct {
	PaymentID string
	Reference string
	Status    Status
	Amount    float64
	Currency  string
}

// Gateway is implemented by each provider.
type Gateway interface {
	Name() string
	// SignatureHeader names the request header carrying the webhook signature.
	SignatureHeader() string
	CreateSession(ctx context.Context, d Draft) (Session, error)
	Verify(ctx context.Context, paymentID string) (Verification, error)
	ParseWebhook(ctx context.Context, payload []byte, signature string) (WebhookEvent, error)
}

const (
	demoPrefix     = "demo_"
	defaultTimeout = 30 * time.Second
)

// IsDemoID reports whether a payment id was issued in demo mode.
func IsDemoID(id string) bool {
	return strings.HasPrefix(id, demoPrefix)
}

func demoSession(d Draft) Session {
	id := demoPrefix + uuid.NewString()
	return Session{
		PaymentID:  id,
		PaymentURL: withQuery(d.ReturnURL, url.Values{"payment_id": {id}, "reference": {d.Reference}, "demo": {"1"}}),
		Reference:  d.Reference,
		Amount:     d.Amount,
		Currency:   d.Currency,
		Demo:       true,
	}
}

func demoVerification(id string) Verification {
	return Verification{PaymentID: id, Status: StatusPaid}
}

// demoWebhook accepts unsigned deliveries shaped like
// {"payment_id": "...", "reference": "...", "status": "paid"}.
func demoWebhook(payload []byte) (WebhookEvent, error) {
	var body struct {
		PaymentID string `json:"payment_id"`
		Reference string `json:"reference"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if body.PaymentID == "" && body.Reference == "" {
		return WebhookEvent{}, fmt.Errorf("%w: missing payment id and reference", ErrInvalidPayload)
	}
	return WebhookEvent{PaymentID: body.PaymentID, Reference: body.Reference, Status: normalizeStatus(body.Status)}, nil
}

func withQuery(base string, q url.Values) string {
	u, err := url.Parse(base)
	if err != nil || base == "" {
		return "/payment/callback?" + q.Encode()
	}
	existing := u.Query()
	for k, v := range q {
		existing[k] = v
	}
	u.RawQuery = existing.Encode()
	return u.String()
}

// normalizeStatus folds provider vocabularies onto paid/pending/failed.
func normalizeStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "paid", "success", "successful", "succeeded", "completed", "approved", "charge.success":
		return StatusPaid
	case "failed", "declined", "cancelled", "canceled", "abandoned", "reversed", "expired":
		return StatusFailed
	}
	return StatusPending
}

// httpClient is the JSON transport shared by the providers.
type httpClient struct {
	baseURL string
	http    *http.Client
}

func newHTTPClient(baseURL string, hc *http.Client) httpClient {
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return httpClient{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// do sends the request and decodes a 2xx JSON body into out. 401/403 map to
// errGatewayAuth; every other failure wraps ErrUnavailable.
func (c httpClient) do(ctx context.Context, method, path string, body []byte, headers map[string]string, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %s", errGatewayAuth, resp.Status)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: gateway error %s: %s", ErrUnavailable, resp.Status, truncate(string(raw), 200))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// flexAmount decodes amounts sent either as numbers or strings.
type flexAmount float64

func (a *flexAmount) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*a = flexAmount(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*a = 0
		return nil
	}
	if _, err := fmt.Sscanf(s, "%g", &f); err != nil {
		return fmt.Errorf("invalid amount %q", s)
	}
	*a = flexAmount(f)
	return nil
}
