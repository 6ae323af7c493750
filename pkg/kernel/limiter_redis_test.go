package kernel

import (
	"context"
	"testing"
)

// TestRedisLimiterStore_Integration requires a running Redis; skipped
// automatically when one isn't reachable.
func TestRedisLimiterStore_Integration(t *testing.T) {
	store := NewRedisLimiterStore("localhost:6379", "", 0)
	ctx := context.Background()
	if _, err := store.client.Ping(ctx).Result(); err != nil {
		t.Skip("skipping redis integration test: redis not available")
	}

	policy := Policy{MaxRequests: 1, WindowSeconds: 60, Burst: 0}

	allowed, err := store.Allow(ctx, "test-actor", policy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Errorf("expected allowed=true for fresh window")
	}

	allowed, err = store.Allow(ctx, "test-actor", policy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Errorf("expected allowed=false once window budget is spent")
	}

	if err := store.Reset(ctx, "test-actor"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	allowed, err = store.Allow(ctx, "test-actor", policy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Errorf("expected allowed=true after reset")
	}
}
