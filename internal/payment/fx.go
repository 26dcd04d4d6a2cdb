package payment

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"conference/internal/metrics"
)

// RateCache stores exchange rates for a fixed TTL.
type RateCache interface {
	Get(ctx context.Context, key string) (float64, bool)
	Set(ctx context.Context, key string, rate float64, ttl time.Duration)
}

type cachedRate struct {
	rate    float64
	expires time.Time
}

// MemoryRateCache is the process-local cache. Concurrent misses may both hit
// the FX API; the result is the same either way.
type MemoryRateCache struct {
	mu      sync.Mutex
	entries map[string]cachedRate
	now     func() time.Time
}

// NewMemoryRateCache creates an empty cache.
func NewMemoryRateCache(now func() time.Time) *MemoryRateCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryRateCache{entries: make(map[string]cachedRate), now: now}
}

func (c *MemoryRateCache) Get(ctx context.Context, key string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expires) {
		return 0, false
	}
	return e.rate, true
}

func (c *MemoryRateCache) Set(ctx context.Context, key string, rate float64, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = cachedRate{rate: rate, expires: c.now().Add(ttl)}
	c.mu.Unlock()
}

// RedisRateCache shares rates between processes.
type RedisRateCache struct {
	client *redis.Client
	prefix string
}

// NewRedisRateCache creates a cache under the given key prefix.
func NewRedisRateCache(client *redis.Client, prefix string) *RedisRateCache {
	if prefix == "" {
		prefix = "conference:fx:"
	}
	return &RedisRateCache{client: client, prefix: prefix}
}

func (c *RedisRateCache) Get(ctx context.Context, key string) (float64, bool) {
	val, err := c.client.Get(ctx, c.prefix+key).Result()
	if err != nil {
		return 0, false
	}
	rate, err := strconv.ParseFloat(val, 64)
	if err != nil || rate <= 0 {
		return 0, false
	}
	return rate, true
}

func (c *RedisRateCache) Set(ctx context.Context, key string, rate float64, ttl time.Duration) {
	_ = c.client.Set(ctx, c.prefix+key, strconv.FormatFloat(rate, 'f', -1, 64), ttl).Err()
}

// FXConfig configures the exchange rate client.
type FXConfig struct {
	BaseURL      string
	APIKey       string
	TTL          time.Duration
	FallbackRate float64
	HTTP         *http.Client
	Local        RateCache
	Shared       RateCache
}

// FXRates converts between currencies using a third-party rate API.
type FXRates struct {
	cfg    FXConfig
	client httpClient
	log    zerolog.Logger
}

// NewFXRates creates the client; a nil Local cache gets an in-memory one.
func NewFXRates(cfg FXConfig, log zerolog.Logger) *FXRates {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.Local == nil {
		cfg.Local = NewMemoryRateCache(nil)
	}
	return &FXRates{cfg: cfg, client: newHTTPClient(cfg.BaseURL, cfg.HTTP), log: log.With().Str("component", "fx").Logger()}
}

// Rate returns units of `to` per one unit of `from`. When the API cannot be
// reached the configured fallback rate is returned and fallback is true.
func (f *FXRates) Rate(ctx context.Context, from, to string) (rate float64, fallback bool) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return 1, false
	}
	key := from + "_" + to
	if r, ok := f.cfg.Local.Get(ctx, key); ok {
		return r, false
	}
	if f.cfg.Shared != nil {
		if r, ok := f.cfg.Shared.Get(ctx, key); ok {
			f.cfg.Local.Set(ctx, key, r, f.cfg.TTL)
			return r, false
		}
	}

	r, err := f.fetch(ctx, from, to)
	if err != nil {
		metrics.FXFallbacks.Inc()
		f.log.Warn().Err(err).Str("pair", key).Float64("fallback_rate", f.cfg.FallbackRate).Msg("fx lookup failed, using fallback rate")
		return f.cfg.FallbackRate, true
	}
	f.cfg.Local.Set(ctx, key, r, f.cfg.TTL)
	if f.cfg.Shared != nil {
		f.cfg.Shared.Set(ctx, key, r, f.cfg.TTL)
	}
	return r, false
}

func (f *FXRates) fetch(ctx context.Context, from, to string) (float64, error) {
	if f.cfg.APIKey == "" {
		return 0, fmt.Errorf("fx api key not configured")
	}
	q := url.Values{"base": {from}, "symbols": {to}, "access_key": {f.cfg.APIKey}}
	var out struct {
		Rates           map[string]float64 `json:"rates"`
		ConversionRates map[string]float64 `json:"conversion_rates"`
	}
	if err := f.client.do(ctx, http.MethodGet, "/latest?"+q.Encode(), nil, nil, &out); err != nil {
		return 0, err
	}
	rate := out.Rates[to]
	if rate == 0 {
		rate = out.ConversionRates[to]
	}
	if rate <= 0 {
		return 0, fmt.Errorf("fx response has no rate for %s", to)
	}
	return rate, nil
}
