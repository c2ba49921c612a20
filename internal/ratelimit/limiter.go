// Package ratelimit implements VectorGate's two-tier fixed-window rate
// limiter: one bucket set keyed by client IP, one keyed by tenant code.
// Buckets live in process memory, not Redis — each gateway instance
// enforces its own limits independently.
package ratelimit

import (
	"sync"
	"time"

	"github.com/vectorgate/vectorgate/internal/telemetry"
)

// Tier selects which limit applies to a tenant bucket.
type Tier string

const (
	TierDefault Tier = "default"
	TierPremium Tier = "premium"
)

type bucket struct {
	count      int
	windowEnds time.Time
	lastSeen   time.Time
}

// Config carries the limits and windows for both scopes.
type Config struct {
	IPLimit            int
	IPPeriod           time.Duration
	TenantDefaultLimit int
	TenantPremiumLimit int
	TenantPeriod       time.Duration
	TenantMaxInactive  time.Duration
}

// Limiter enforces fixed-window limits per IP and per tenant.
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	ipBkts  map[string]*bucket
	tntBkts map[string]*bucket
}

// New creates a Limiter from the given configuration.
func New(cfg Config) *Limiter {
	return &Limiter{
		cfg:     cfg,
		ipBkts:  make(map[string]*bucket),
		tntBkts: make(map[string]*bucket),
	}
}

// AllowIP checks and records a hit against the per-IP bucket.
func (l *Limiter) AllowIP(ip string, now time.Time) bool {
	allowed := l.allow(l.ipBkts, ip, l.cfg.IPLimit, l.cfg.IPPeriod, now)
	if !allowed {
		telemetry.RateLimitDeniedTotal.WithLabelValues("ip").Inc()
	}
	return allowed
}

// AllowTenant checks and records a hit against the per-tenant bucket,
// using the limit for the given tier.
func (l *Limiter) AllowTenant(tenantCode string, tier Tier, now time.Time) bool {
	limit := l.cfg.TenantDefaultLimit
	if tier == TierPremium {
		limit = l.cfg.TenantPremiumLimit
	}
	allowed := l.allow(l.tntBkts, tenantCode, limit, l.cfg.TenantPeriod, now)
	if !allowed {
		telemetry.RateLimitDeniedTotal.WithLabelValues("tenant").Inc()
	}
	return allowed
}

func (l *Limiter) allow(buckets map[string]*bucket, key string, limit int, period time.Duration, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := buckets[key]
	if !ok || now.After(b.windowEnds) {
		b = &bucket{count: 0, windowEnds: now.Add(period)}
		buckets[key] = b
	}
	b.lastSeen = now

	if b.count >= limit {
		return false
	}
	b.count++
	return true
}

// Sweep evicts tenant buckets that have been inactive longer than
// TenantMaxInactive. It is called periodically by the background sweeper.
// IP buckets are never removed: a bucket whose window has ended is reset
// when its IP is seen again, so the IP map keeps one entry per distinct
// client IP seen since the process started.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for key, b := range l.tntBkts {
		if now.Sub(b.lastSeen) > l.cfg.TenantMaxInactive {
			delete(l.tntBkts, key)
			evicted++
		}
	}
	return evicted
}

// TenantBucketCount reports the number of tracked tenant buckets, for tests
// and the connections/status endpoint.
func (l *Limiter) TenantBucketCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tntBkts)
}
