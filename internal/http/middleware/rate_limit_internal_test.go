package middleware

import (
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestRateLimiterStorePrunesIdleBuckets(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	now := start
	s := newRateLimiterStore(rate.Limit(10), 5)
	s.now = func() time.Time { return now }
	s.lastPrune = start

	for _, k := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		s.get(k)
	}
	now = start.Add(s.idle / 2)
	s.get("10.0.0.1")

	now = start.Add(s.idle)
	s.get("10.0.0.4")

	if len(s.limiters) != 2 {
		t.Fatalf("limiters = %d, want 2", len(s.limiters))
	}
	for _, k := range []string{"10.0.0.1", "10.0.0.4"} {
		if _, ok := s.limiters[k]; !ok {
			t.Errorf("bucket %s evicted while in use", k)
		}
	}
}

func TestRateLimiterStoreKeepsIdleWindowAboveRefill(t *testing.T) {
	s := newRateLimiterStore(rate.Limit(0.001), 2)
	if s.idle < 1999*time.Second {
		t.Fatalf("idle = %v, shorter than a full refill", s.idle)
	}
	s = newRateLimiterStore(rate.Limit(100), 10)
	if s.idle != defaultLimiterIdle {
		t.Fatalf("idle = %v, want %v", s.idle, defaultLimiterIdle)
	}
}
