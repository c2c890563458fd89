package ratelimit

import (
	"context"
	"testing"
	"time"
)

func newTestLimiter(perMinute, perHour int) (*Limiter, *MemoryStore, *time.Time) {
	store := NewMemoryStore()
	limiter := New(store, perMinute, perHour)

	now := time.Date(2026, 3, 10, 15, 4, 30, 0, time.UTC)
	clock := &now
	store.now = func() time.Time { return *clock }
	limiter.now = func() time.Time { return *clock }
	return limiter, store, clock
}

func TestMinuteCapBlocksNextRequest(t *testing.T) {
	ctx := context.Background()
	limiter, _, _ := newTestLimiter(5, 1000)

	for i := 0; i < 5; i++ {
		limited, err := limiter.IsLimited(ctx, "10.0.0.1")
		if err != nil {
			t.Fatalf("IsLimited: %v", err)
		}
		if limited {
			t.Fatalf("request %d unexpectedly limited", i+1)
		}
		if err := limiter.Increment(ctx, "10.0.0.1"); err != nil {
			t.Fatalf("Increment: %v", err)
		}
	}

	limited, err := limiter.IsLimited(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("IsLimited: %v", err)
	}
	if !limited {
		t.Fatal("expected 6th request in the same bucket to be limited")
	}
}

func TestNewBucketAdmitsAfterExhaustion(t *testing.T) {
	ctx := context.Background()
	limiter, _, clock := newTestLimiter(3, 1000)

	for i := 0; i < 3; i++ {
		if err := limiter.Increment(ctx, "10.0.0.1"); err != nil {
			t.Fatalf("Increment: %v", err)
		}
	}
	if limited, _ := limiter.IsLimited(ctx, "10.0.0.1"); !limited {
		t.Fatal("expected limit after exhausting minute cap")
	}

	// Cross into the next minute bucket.
	*clock = clock.Add(time.Minute)

	limited, err := limiter.IsLimited(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("IsLimited: %v", err)
	}
	if limited {
		t.Fatal("expected first request of a fresh bucket to be admitted")
	}
}

func TestHourCapBlocksIndependently(t *testing.T) {
	ctx := context.Background()
	limiter, _, clock := newTestLimiter(1000, 4)

	for i := 0; i < 4; i++ {
		if err := limiter.Increment(ctx, "10.0.0.2"); err != nil {
			t.Fatalf("Increment: %v", err)
		}
		// Spread requests over minutes so the minute cap stays cold.
		*clock = clock.Add(2 * time.Minute)
	}

	limited, err := limiter.IsLimited(ctx, "10.0.0.2")
	if err != nil {
		t.Fatalf("IsLimited: %v", err)
	}
	if !limited {
		t.Fatal("expected hour cap to block the 5th request")
	}
}

func TestIdentifiersAreIndependent(t *testing.T) {
	ctx := context.Background()
	limiter, _, _ := newTestLimiter(2, 1000)

	limiter.Increment(ctx, "10.0.0.1")
	limiter.Increment(ctx, "10.0.0.1")

	if limited, _ := limiter.IsLimited(ctx, "10.0.0.1"); !limited {
		t.Fatal("expected 10.0.0.1 to be limited")
	}
	if limited, _ := limiter.IsLimited(ctx, "10.0.0.9"); limited {
		t.Fatal("expected 10.0.0.9 to be unaffected")
	}
}

func TestGetRemaining(t *testing.T) {
	ctx := context.Background()
	limiter, _, _ := newTestLimiter(10, 100)

	for i := 0; i < 3; i++ {
		if err := limiter.Increment(ctx, "10.0.0.3"); err != nil {
			t.Fatalf("Increment: %v", err)
		}
	}

	rem, err := limiter.GetRemaining(ctx, "10.0.0.3")
	if err != nil {
		t.Fatalf("GetRemaining: %v", err)
	}
	if rem.Minute != 7 {
		t.Fatalf("expected 7 remaining in minute window, got %d", rem.Minute)
	}
	if rem.Hour != 97 {
		t.Fatalf("expected 97 remaining in hour window, got %d", rem.Hour)
	}
}

func TestRemainingNeverNegative(t *testing.T) {
	ctx := context.Background()
	limiter, _, _ := newTestLimiter(2, 100)

	for i := 0; i < 5; i++ {
		limiter.Increment(ctx, "10.0.0.4")
	}

	rem, err := limiter.GetRemaining(ctx, "10.0.0.4")
	if err != nil {
		t.Fatalf("GetRemaining: %v", err)
	}
	if rem.Minute != 0 {
		t.Fatalf("expected 0 remaining, got %d", rem.Minute)
	}
}

func TestMemoryStoreCleansExpiredEntries(t *testing.T) {
	ctx := context.Background()
	limiter, store, clock := newTestLimiter(10, 100)

	limiter.Increment(ctx, "10.0.0.5")
	if len(store.entries) == 0 {
		t.Fatal("expected entries after increment")
	}

	// Advance past the hour window so every entry has expired; the next
	// access sweeps them.
	*clock = clock.Add(2 * time.Hour)
	limiter.IsLimited(ctx, "10.0.0.6")

	if got := len(store.entries); got != 0 {
		t.Fatalf("expected expired entries to be cleaned, still have %d", got)
	}
}

func TestDefaultCaps(t *testing.T) {
	limiter := New(NewMemoryStore(), 0, -1)
	if limiter.perMinute != DefaultPerMinute {
		t.Fatalf("expected default per-minute cap %d, got %d", DefaultPerMinute, limiter.perMinute)
	}
	if limiter.perHour != DefaultPerHour {
		t.Fatalf("expected default per-hour cap %d, got %d", DefaultPerHour, limiter.perHour)
	}
}
