// Package ratelimit provides per-tenant ingestion backpressure for the sink
// (C4), grounded on infrastructure/ratelimit/ratelimit.go's
// golang.org/x/time/rate wrapper but trimmed to the sink's needs (no
// outbound HTTP client: ingestion has no egress leg to throttle).
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config controls one tenant's token bucket.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig mirrors IngestConfig's defaults (internal/config).
func DefaultConfig() Config {
	return Config{RequestsPerSecond: 5000, Burst: 10000}
}

// Limiter wraps a single tenant's token bucket.
type Limiter struct {
	limiter *rate.Limiter
	config  Config
}

// New creates a Limiter, filling in sane defaults for non-positive values.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultConfig().RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond * 2)
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst), config: cfg}
}

// Allow reports whether a single record may proceed right now.
func (l *Limiter) Allow() bool { return l.limiter.Allow() }

// AllowN reports whether n records may proceed right now (batch ingestion).
func (l *Limiter) AllowN(now time.Time, n int) bool { return l.limiter.AllowN(now, n) }

// Wait blocks until a record may proceed or ctx is canceled.
func (l *Limiter) Wait(ctx context.Context) error { return l.limiter.Wait(ctx) }

// WaitN blocks until n records may proceed or ctx is canceled.
func (l *Limiter) WaitN(ctx context.Context, n int) error { return l.limiter.WaitN(ctx, n) }

// TenantLimiters is a registry of per-tenant Limiters, created lazily so
// the sink doesn't need to know the tenant set ahead of time.
type TenantLimiters struct {
	mu       sync.Mutex
	config   Config
	limiters map[string]*Limiter
}

// NewTenantLimiters creates a registry applying cfg to every new tenant.
func NewTenantLimiters(cfg Config) *TenantLimiters {
	return &TenantLimiters{config: cfg, limiters: make(map[string]*Limiter)}
}

// For returns (creating if necessary) the Limiter for tenantID.
func (t *TenantLimiters) For(tenantID string) *Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.limiters[tenantID]
	if !ok {
		l = New(t.config)
		t.limiters[tenantID] = l
	}
	return l
}

// WaitN blocks the given tenant's batch until n records may proceed.
func (t *TenantLimiters) WaitN(ctx context.Context, tenantID string, n int) error {
	return t.For(tenantID).WaitN(ctx, n)
}
