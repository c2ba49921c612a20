package ratelimit

import (
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		IPLimit:            3,
		IPPeriod:           time.Minute,
		TenantDefaultLimit: 2,
		TenantPremiumLimit: 5,
		TenantPeriod:       time.Minute,
		TenantMaxInactive:  time.Hour,
	}
}

func TestAllowIPWithinLimit(t *testing.T) {
	l := New(testConfig())
	now := time.Now()

	for i := 0; i < 3; i++ {
		if !l.AllowIP("1.2.3.4", now) {
			t.Fatalf("expected request %d to be allowed", i)
		}
	}
	if l.AllowIP("1.2.3.4", now) {
		t.Fatal("expected 4th request to be denied")
	}
}

func TestAllowIPResetsAfterWindow(t *testing.T) {
	l := New(testConfig())
	now := time.Now()

	for i := 0; i < 3; i++ {
		l.AllowIP("1.2.3.4", now)
	}
	if l.AllowIP("1.2.3.4", now) {
		t.Fatal("expected request to be denied within window")
	}

	later := now.Add(2 * time.Minute)
	if !l.AllowIP("1.2.3.4", later) {
		t.Fatal("expected request to be allowed in a new window")
	}
}

func TestAllowTenantUsesTierLimit(t *testing.T) {
	l := New(testConfig())
	now := time.Now()

	if !l.AllowTenant("acme", TierDefault, now) {
		t.Fatal("expected first default-tier request to be allowed")
	}
	if !l.AllowTenant("acme", TierDefault, now) {
		t.Fatal("expected second default-tier request to be allowed")
	}
	if l.AllowTenant("acme", TierDefault, now) {
		t.Fatal("expected third default-tier request to be denied")
	}

	for i := 0; i < 5; i++ {
		if !l.AllowTenant("globex", TierPremium, now) {
			t.Fatalf("expected premium request %d to be allowed", i)
		}
	}
	if l.AllowTenant("globex", TierPremium, now) {
		t.Fatal("expected 6th premium request to be denied")
	}
}

func TestSweepEvictsInactiveTenantBuckets(t *testing.T) {
	l := New(testConfig())
	now := time.Now()

	l.AllowTenant("stale", TierDefault, now)
	l.AllowTenant("fresh", TierDefault, now)

	later := now.Add(2 * time.Hour)
	l.AllowTenant("fresh", TierDefault, later)

	evicted := l.Sweep(later)
	if evicted != 1 {
		t.Fatalf("expected 1 bucket evicted, got %d", evicted)
	}
	if l.TenantBucketCount() != 1 {
		t.Fatalf("expected 1 remaining bucket, got %d", l.TenantBucketCount())
	}
}

func TestIndependentScopes(t *testing.T) {
	l := New(testConfig())
	now := time.Now()

	for i := 0; i < 3; i++ {
		l.AllowIP("9.9.9.9", now)
	}
	if !l.AllowTenant("acme", TierDefault, now) {
		t.Fatal("expected tenant bucket to be independent of IP bucket exhaustion")
	}
}
