package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("PAYMENT_AUTH_FALLBACK_DEMO", "")
	cfg := Load()

	if cfg.Env != "dev" {
		t.Fatalf("env = %q, want dev", cfg.Env)
	}
	if cfg.StoreBackend != "postgres" {
		t.Fatalf("store backend = %q", cfg.StoreBackend)
	}
	if !cfg.PaymentAuthFallbackDemo {
		t.Fatal("auth fallback should default on outside production")
	}
	if cfg.FXCacheTTL != time.Hour {
		t.Fatalf("fx ttl = %s", cfg.FXCacheTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("PAYMENT_AUTH_FALLBACK_DEMO", "")
	t.Setenv("ACCESS_TTL", "30m")
	t.Setenv("RATE_LIMIT_PER_MIN", "7")
	t.Setenv("FX_FALLBACK_RATE", "not-a-number")
	t.Setenv("CORS_ORIGINS", "https://conf.example, ,https://admin.conf.example")
	cfg := Load()

	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://admin.conf.example" {
		t.Fatalf("cors origins = %v", cfg.CORSOrigins)
	}
	if cfg.PaymentAuthFallbackDemo {
		t.Fatal("auth fallback must be off in production unless set")
	}
	if cfg.AccessTTL != 30*time.Minute {
		t.Fatalf("access ttl = %s", cfg.AccessTTL)
	}
	if cfg.RateLimitPerMin != 7 {
		t.Fatalf("rate limit = %d", cfg.RateLimitPerMin)
	}
	if cfg.FXFallbackRate != 1500 {
		t.Fatalf("fx fallback = %v", cfg.FXFallbackRate)
	}
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := App{Timezone: "Not/AZone"}
	if cfg.Location() != time.UTC {
		t.Fatal("expected UTC for unknown zone")
	}
}
