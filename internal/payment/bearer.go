package payment

import (
	"context"
	"crypto/sha512"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// RateSource converts amounts between currencies.
type RateSource interface {
	Rate(ctx context.Context, from, to string) (rate float64, fallback bool)
}

// BearerConfig configures the bearer-token gateway.
type BearerConfig struct {
	BaseURL        string
	SecretKey      string
	WebhookSecret  string
	Currency       string
	FallbackToDemo bool
	HTTP           *http.Client
}

// BearerGateway authenticates with a bearer secret key and charges in a local
// currency, converting from the schedule currency at checkout time.
type BearerGateway struct {
	cfg    BearerConfig
	client httpClient
	rates  RateSource
	log    zerolog.Logger
}

// NewBearer creates the gateway. Without a secret key it runs in demo mode.
func NewBearer(cfg BearerConfig, rates RateSource, log zerolog.Logger) *BearerGateway {
	cfg.Currency = strings.ToUpper(cfg.Currency)
	if cfg.WebhookSecret == "" {
		cfg.WebhookSecret = cfg.SecretKey
	}
	return &BearerGateway{
		cfg:    cfg,
		client: newHTTPClient(cfg.BaseURL, cfg.HTTP),
		rates:  rates,
		log:    log.With().Str("gateway", "bearer").Logger(),
	}
}

func (g *BearerGateway) Name() string            { return "bearer" }
func (g *BearerGateway) SignatureHeader() string { return "X-Paystack-Signature" }

// Demo reports whether credentials are missing.
func (g *BearerGateway) Demo() bool { return g.cfg.SecretKey == "" }

func (g *BearerGateway) auth() map[string]string {
	return map[string]string{"Authorization": "Bearer " + g.cfg.SecretKey}
}

// convert returns the charge amount in the gateway currency.
func (g *BearerGateway) convert(ctx context.Context, amount float64, currency string) (float64, string) {
	if g.cfg.Currency == "" || strings.EqualFold(currency, g.cfg.Currency) || g.rates == nil {
		return amount, strings.ToUpper(currency)
	}
	rate, fallback := g.rates.Rate(ctx, currency, g.cfg.Currency)
	if fallback {
		g.log.Info().Float64("rate", rate).Msg("converting with fallback fx rate")
	}
	return math.Round(amount*rate*100) / 100, g.cfg.Currency
}

func (g *BearerGateway) CreateSession(ctx context.Context, d Draft) (Session, error) {
	if g.Demo() {
		return demoSession(d), nil
	}
	local, currency := g.convert(ctx, d.Amount, d.Currency)
	body, err := json.Marshal(map[string]any{
		"email":        d.CustomerEmail,
		"amount":       int64(math.Round(local * 100)),
		"currency":     currency,
		"reference":    d.Reference,
		"callback_url": d.ReturnURL,
		"metadata": map[string]any{
			"registration_id":   d.RegistrationID,
			"cancel_action":     d.CancelURL,
			"original_amount":   d.Amount,
			"original_currency": d.Currency,
		},
	})
	if err != nil {
		return Session{}, fmt.Errorf("encode payload: %w", err)
	}

	var out struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			AuthorizationURL string `json:"authorization_url"`
			AccessCode       string `json:"access_code"`
			Reference        string `json:"reference"`
		} `json:"data"`
	}
	err = g.client.do(ctx, http.MethodPost, "/transaction/initialize", body, g.auth(), &out)
	if errors.Is(err, errGatewayAuth) && g.cfg.FallbackToDemo {
		g.log.Warn().Err(err).Str("reference", d.Reference).Msg("gateway rejected credentials, using demo checkout")
		return demoSession(d), nil
	}
	if err != nil {
		return Session{}, wrapAuth(err)
	}
	if !out.Status || out.Data.AuthorizationURL == "" {
		return Session{}, fmt.Errorf("%w: %s", ErrUnavailable, out.Message)
	}
	ref := out.Data.Reference
	if ref == "" {
		ref = d.Reference
	}
	// The gateway verifies by reference, so the reference doubles as payment id.
	return Session{
		PaymentID:  ref,
		PaymentURL: out.Data.AuthorizationURL,
		Reference:  ref,
		Amount:     local,
		Currency:   currency,
	}, nil
}

func (g *BearerGateway) Verify(ctx context.Context, paymentID string) (Verification, error) {
	if IsDemoID(paymentID) && (g.Demo() || g.cfg.FallbackToDemo) {
		return demoVerification(paymentID), nil
	}
	if g.Demo() {
		return Verification{}, fmt.Errorf("%w: unknown payment %q", ErrUnavailable, paymentID)
	}
	var out struct {
		Status bool `json:"status"`
		Data   struct {
			Status    string  `json:"status"`
			Amount    float64 `json:"amount"`
			Currency  string  `json:"currency"`
			Reference string  `json:"reference"`
		} `json:"data"`
	}
	path := "/transaction/verify/" + url.PathEscape(paymentID)
	if err := g.client.do(ctx, http.MethodGet, path, nil, g.auth(), &out); err != nil {
		return Verification{}, wrapAuth(err)
	}
	ref := out.Data.Reference
	if ref == "" {
		ref = paymentID
	}
	return Verification{
		PaymentID: ref,
		Reference: ref,
		Status:    normalizeStatus(out.Data.Status),
		Amount:    out.Data.Amount / 100,
		Currency:  out.Data.Currency,
	}, nil
}

// ParseWebhook checks the HMAC-SHA512 signature and reads the charge event.
func (g *BearerGateway) ParseWebhook(ctx context.Context, payload []byte, signature string) (WebhookEvent, error) {
	if g.Demo() {
		return demoWebhook(payload)
	}
	if !validHexMAC(sha512.New, []byte(g.cfg.WebhookSecret), payload, signature) {
		return WebhookEvent{}, ErrInvalidSignature
	}
	var body struct {
		Event string `json:"event"`
		Data  struct {
			Status    string  `json:"status"`
			Amount    float64 `json:"amount"`
			Currency  string  `json:"currency"`
			Reference string  `json:"reference"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if body.Data.Reference == "" {
		return WebhookEvent{}, fmt.Errorf("%w: missing reference", ErrInvalidPayload)
	}
	status := normalizeStatus(body.Data.Status)
	if body.Event == "charge.success" {
		status = StatusPaid
	}
	return WebhookEvent{
		PaymentID: body.Data.Reference,
		Reference: body.Data.Reference,
		Status:    status,
		Amount:    body.Data.Amount / 100,
		Currency:  body.Data.Currency,
	}, nil
}
