package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// SignedConfig configures the HMAC signed gateway.
type SignedConfig struct {
	BaseURL        string
	MerchantID     string
	Secret         string
	FallbackToDemo bool
	HTTP           *http.Client
	Now            func() time.Time
}

// SignedGateway signs every request with HMAC-SHA256 over the URL path
// followed by the canonical JSON body.
type SignedGateway struct {
	cfg    SignedConfig
	client httpClient
	log    zerolog.Logger
}

// NewSigned creates the gateway. Without merchant id or secret it runs in demo mode.
func NewSigned(cfg SignedConfig, log zerolog.Logger) *SignedGateway {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SignedGateway{
		cfg:    cfg,
		client: newHTTPClient(cfg.BaseURL, cfg.HTTP),
		log:    log.With().Str("gateway", "signed").Logger(),
	}
}

func (g *SignedGateway) Name() string            { return "signed" }
func (g *SignedGateway) SignatureHeader() string { return "X-Signature" }

// Demo reports whether credentials are missing.
func (g *SignedGateway) Demo() bool {
	return g.cfg.MerchantID == "" || g.cfg.Secret == ""
}

func (g *SignedGateway) CreateSession(ctx context.Context, d Draft) (Session, error) {
	if g.Demo() {
		return demoSession(d), nil
	}
	const path = "/v1/checkout/sessions"
	ts := g.cfg.Now().UTC().Unix()
	payload := map[string]any{
		"merchant_id": g.cfg.MerchantID,
		"reference":   d.Reference,
		"amount":      strconv.FormatFloat(d.Amount, 'f', 2, 64),
		"currency":    d.Currency,
		"description": d.Description,
		"customer":    map[string]any{"name": d.CustomerName, "email": d.CustomerEmail},
		"return_url":  d.ReturnURL,
		"cancel_url":  d.CancelURL,
		"metadata":    map[string]any{"registration_id": d.RegistrationID},
		"timestamp":   ts,
	}
	body, err := canonicalJSON(payload)
	if err != nil {
		return Session{}, err
	}

	var out struct {
		ID          string `json:"id"`
		CheckoutURL string `json:"checkout_url"`
		Reference   string `json:"reference"`
	}
	headers := g.headers(path, body)
	headers["X-Timestamp"] = strconv.FormatInt(ts, 10)
	err = g.client.do(ctx, http.MethodPost, path, body, headers, &out)
	if errors.Is(err, errGatewayAuth) && g.cfg.FallbackToDemo {
		g.log.Warn().Err(err).Str("reference", d.Reference).Msg("gateway rejected credentials, using demo checkout")
		return demoSession(d), nil
	}
	if err != nil {
		return Session{}, wrapAuth(err)
	}
	if out.ID == "" || out.CheckoutURL == "" {
		return Session{}, fmt.Errorf("%w: incomplete checkout response", ErrUnavailable)
	}
	ref := out.Reference
	if ref == "" {
		ref = d.Reference
	}
	return Session{
		PaymentID:  out.ID,
		PaymentURL: out.CheckoutURL,
		Reference:  ref,
		Amount:     d.Amount,
		Currency:   d.Currency,
	}, nil
}

func (g *SignedGateway) Verify(ctx context.Context, paymentID string) (Verification, error) {
	if IsDemoID(paymentID) && (g.Demo() || g.cfg.FallbackToDemo) {
		return demoVerification(paymentID), nil
	}
	if g.Demo() {
		return Verification{}, fmt.Errorf("%w: unknown payment %q", ErrUnavailable, paymentID)
	}
	path := "/v1/payments/" + url.PathEscape(paymentID)
	var out struct {
		ID        string     `json:"id"`
		Status    string     `json:"status"`
		Amount    flexAmount `json:"amount"`
		Currency  string     `json:"currency"`
		Reference string     `json:"reference"`
	}
	if err := g.client.do(ctx, http.MethodGet, path, nil, g.headers(path, nil), &out); err != nil {
		return Verification{}, wrapAuth(err)
	}
	id := out.ID
	if id == "" {
		id = paymentID
	}
	return Verification{
		PaymentID: id,
		Reference: out.Reference,
		Status:    normalizeStatus(out.Status),
		Amount:    float64(out.Amount),
		Currency:  out.Currency,
	}, nil
}

// ParseWebhook authenticates the raw payload with the shared secret.
func (g *SignedGateway) ParseWebhook(ctx context.Context, payload []byte, signature string) (WebhookEvent, error) {
	if g.Demo() {
		return demoWebhook(payload)
	}
	if !validHexMAC(sha256.New, []byte(g.cfg.Secret), payload, signature) {
		return WebhookEvent{}, ErrInvalidSignature
	}
	var body struct {
		PaymentID string     `json:"payment_id"`
		Reference string     `json:"reference"`
		Status    string     `json:"status"`
		Amount    flexAmount `json:"amount"`
		Currency  string     `json:"currency"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if body.PaymentID == "" && body.Reference == "" {
		return WebhookEvent{}, fmt.Errorf("%w: missing payment id and reference", ErrInvalidPayload)
	}
	return WebhookEvent{
		PaymentID: body.PaymentID,
		Reference: body.Reference,
		Status:    normalizeStatus(body.Status),
		Amount:    float64(body.Amount),
		Currency:  body.Currency,
	}, nil
}

func (g *SignedGateway) headers(path string, body []byte) map[string]string {
	return map[string]string{
		"X-Merchant-Id": g.cfg.MerchantID,
		"X-Signature":   signRequest(g.cfg.Secret, path, body),
	}
}

// signRequest returns hex(HMAC-SHA256(secret, path || body)).
func signRequest(secret, path string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(path))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// canonicalJSON re-encodes v with sorted object keys, no insignificant
// whitespace and no HTML escaping.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// wrapAuth turns a credential rejection into an unavailable error when no
// demo fallback applies.
func wrapAuth(err error) error {
	if errors.Is(err, errGatewayAuth) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
