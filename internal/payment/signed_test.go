package payment

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testDraft() Draft {
	return Draft{
		RegistrationID: "reg-1",
		Reference:      "REF-1",
		Amount:         426,
		Currency:       "USD",
		CustomerName:   "Ada",
		CustomerEmail:  "ada@example.org",
		ReturnURL:      "https://site.example/payment/callback",
		CancelURL:      "https://site.example/payment/cancelled",
	}
}

func TestSignedDemoMode(t *testing.T) {
	g := NewSigned(SignedConfig{BaseURL: "http://unused"}, zerolog.Nop())
	sess, err := g.CreateSession(context.Background(), testDraft())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !sess.Demo || !IsDemoID(sess.PaymentID) {
		t.Fatalf("expected demo session, got %+v", sess)
	}
	if !strings.HasPrefix(sess.PaymentURL, "https://site.example/payment/callback?") || !strings.Contains(sess.PaymentURL, "reference=REF-1") {
		t.Fatalf("demo url = %s", sess.PaymentURL)
	}
	v, err := g.Verify(context.Background(), sess.PaymentID)
	if err != nil || v.Status != StatusPaid {
		t.Fatalf("demo verify: %+v %v", v, err)
	}
	evt, err := g.ParseWebhook(context.Background(), []byte(`{"reference":"REF-1","status":"paid"}`), "")
	if err != nil || evt.Status != StatusPaid || evt.Reference != "REF-1" {
		t.Fatalf("demo webhook: %+v %v", evt, err)
	}
}

func TestSignedCreateSessionSignsRequest(t *testing.T) {
	const secret = "s3cret"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.URL.Path != "/v1/checkout/sessions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("X-Merchant-Id") != "m-1" {
			t.Errorf("merchant header = %q", r.Header.Get("X-Merchant-Id"))
		}
		if r.Header.Get("X-Timestamp") != "1700000000" {
			t.Errorf("timestamp header = %q", r.Header.Get("X-Timestamp"))
		}
		if want := signRequest(secret, r.URL.Path, body); r.Header.Get("X-Signature") != want {
			t.Errorf("signature mismatch")
		}
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("body not json: %v", err)
		}
		if payload["amount"] != "426.00" {
			t.Errorf("amount = %v", payload["amount"])
		}
		_, _ = w.Write([]byte(`{"id":"pay_1","checkout_url":"https://pay.example/c/1","reference":"REF-1"}`))
	}))
	defer srv.Close()

	g := NewSigned(SignedConfig{BaseURL: srv.URL, MerchantID: "m-1", Secret: secret,
		Now: func() time.Time { return time.Unix(1700000000, 0) }}, zerolog.Nop())
	sess, err := g.CreateSession(context.Background(), testDraft())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.PaymentID != "pay_1" || sess.PaymentURL != "https://pay.example/c/1" || sess.Demo {
		t.Fatalf("unexpected session %+v", sess)
	}
}

func TestSignedFailuresAreUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	g := NewSigned(SignedConfig{BaseURL: srv.URL, MerchantID: "m", Secret: "s"}, zerolog.Nop())
	if _, err := g.CreateSession(context.Background(), testDraft()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("5xx: want ErrUnavailable, got %v", err)
	}
	srv.Close()
	if _, err := g.CreateSession(context.Background(), testDraft()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("network error: want ErrUnavailable, got %v", err)
	}
	if _, err := g.Verify(context.Background(), "pay_1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("verify network error: want ErrUnavailable, got %v", err)
	}
}

func TestSignedAuthFailureFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	strict := NewSigned(SignedConfig{BaseURL: srv.URL, MerchantID: "m", Secret: "s"}, zerolog.Nop())
	if _, err := strict.CreateSession(context.Background(), testDraft()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("without fallback: want ErrUnavailable, got %v", err)
	}

	lenient := NewSigned(SignedConfig{BaseURL: srv.URL, MerchantID: "m", Secret: "s", FallbackToDemo: true}, zerolog.Nop())
	sess, err := lenient.CreateSession(context.Background(), testDraft())
	if err != nil || !sess.Demo {
		t.Fatalf("with fallback: %+v %v", sess, err)
	}
	if v, err := lenient.Verify(context.Background(), sess.PaymentID); err != nil || v.Status != StatusPaid {
		t.Fatalf("verify demo id: %+v %v", v, err)
	}
	if _, err := strict.Verify(context.Background(), sess.PaymentID); err == nil {
		t.Fatal("strict gateway must not trust demo ids")
	}
}

func TestSignedVerifyStatusMapping(t *testing.T) {
	status := "succeeded"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"pay_9","status":"` + status + `","amount":"426.00","currency":"USD","reference":"REF-9"}`))
	}))
	defer srv.Close()
	g := NewSigned(SignedConfig{BaseURL: srv.URL, MerchantID: "m", Secret: "s"}, zerolog.Nop())

	for in, want := range map[string]Status{"succeeded": StatusPaid, "processing": StatusPending, "declined": StatusFailed} {
		status = in
		v, err := g.Verify(context.Background(), "pay_9")
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if v.Status != want || v.Amount != 426 || v.Reference != "REF-9" {
			t.Fatalf("%s: got %+v", in, v)
		}
	}
}

func TestSignedWebhookSignature(t *testing.T) {
	g := NewSigned(SignedConfig{BaseURL: "http://unused", MerchantID: "m", Secret: "hook"}, zerolog.Nop())
	payload := []byte(`{"payment_id":"pay_1","reference":"REF-1","status":"paid","amount":426}`)

	evt, err := g.ParseWebhook(context.Background(), payload, SignPayload(sha256.New, []byte("hook"), payload))
	if err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if evt.Status != StatusPaid || evt.PaymentID != "pay_1" || evt.Amount != 426 {
		t.Fatalf("event = %+v", evt)
	}
	if _, err := g.ParseWebhook(context.Background(), payload, "deadbeef"); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("bad signature: %v", err)
	}
	if _, err := g.ParseWebhook(context.Background(), payload, ""); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("missing signature: %v", err)
	}
}

func TestCanonicalJSONSortsKeys(t *testing.T) {
	out, err := canonicalJSON(map[string]any{"b": 1, "a": map[string]any{"z": "<x>", "y": 2.5}})
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	if string(out) != `{"a":{"y":2.5,"z":"<x>"},"b":1}` {
		t.Fatalf("canonical = %s", out)
	}
}
