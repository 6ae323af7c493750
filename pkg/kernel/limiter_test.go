package kernel_test

import (
	"context"
	"testing"

	"github.com/lattice-run/agentgw/pkg/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryLimiterStore_AllowsWithinBudget(t *testing.T) {
	s := kernel.NewInMemoryLimiterStore()
	policy := kernel.Policy{MaxRequests: 2, WindowSeconds: 60}

	ok, err := s.Allow(context.Background(), "k", policy)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Allow(context.Background(), "k", policy)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Allow(context.Background(), "k", policy)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInMemoryLimiterStore_BurstAllowance(t *testing.T) {
	s := kernel.NewInMemoryLimiterStore()
	policy := kernel.Policy{MaxRequests: 1, WindowSeconds: 60, Burst: 1}

	ctx := context.Background()
	ok1, _ := s.Allow(ctx, "k", policy)
	ok2, _ := s.Allow(ctx, "k", policy)
	ok3, _ := s.Allow(ctx, "k", policy)

	assert.True(t, ok1)
	assert.True(t, ok2)
	assert.False(t, ok3)
}

func TestInMemoryLimiterStore_ZeroMaxRequestsRejectsAll(t *testing.T) {
	s := kernel.NewInMemoryLimiterStore()
	ok, err := s.Allow(context.Background(), "k", kernel.Policy{MaxRequests: 0, WindowSeconds: 60})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInMemoryLimiterStore_Reset(t *testing.T) {
	s := kernel.NewInMemoryLimiterStore()
	policy := kernel.Policy{MaxRequests: 1, WindowSeconds: 60}
	ctx := context.Background()

	ok, _ := s.Allow(ctx, "k", policy)
	require.True(t, ok)
	ok, _ = s.Allow(ctx, "k", policy)
	require.False(t, ok)

	require.NoError(t, s.Reset(ctx, "k"))

	ok, _ = s.Allow(ctx, "k", policy)
	assert.True(t, ok)
}

func TestGate_ChecksIPAndUserIndependently(t *testing.T) {
	store := kernel.NewInMemoryLimiterStore()
	gate := kernel.NewGate(store, kernel.Policy{MaxRequests: 1, WindowSeconds: 60})
	ctx := context.Background()

	allowed, scope, err := gate.Check(ctx, "1.2.3.4", "alice")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Empty(t, scope)

	allowed, scope, err = gate.Check(ctx, "1.2.3.4", "bob")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, "client", scope)
}

func TestGate_SetPolicyReconfiguresLive(t *testing.T) {
	store := kernel.NewInMemoryLimiterStore()
	gate := kernel.NewGate(store, kernel.Policy{MaxRequests: 0, WindowSeconds: 60})

	allowed, _, _ := gate.Check(context.Background(), "1.1.1.1", "")
	assert.False(t, allowed)

	gate.SetPolicy(kernel.Policy{MaxRequests: 5, WindowSeconds: 60})
	allowed, _, _ = gate.Check(context.Background(), "1.1.1.1", "")
	assert.True(t, allowed)
}

func TestGate_SheddingRejectsBeforeSlidingWindow(t *testing.T) {
	store := kernel.NewInMemoryLimiterStore()
	gate := kernel.NewGate(store, kernel.Policy{MaxRequests: 100, WindowSeconds: 60})
	gate.SetSheddingRate(1, 1)

	ctx := context.Background()
	allowed, _, err := gate.Check(ctx, "5.5.5.5", "")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, scope, err := gate.Check(ctx, "5.5.5.5", "")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, "client", scope)
}

func TestGate_ResetClientAndUser(t *testing.T) {
	store := kernel.NewInMemoryLimiterStore()
	gate := kernel.NewGate(store, kernel.Policy{MaxRequests: 1, WindowSeconds: 60})
	ctx := context.Background()

	gate.Check(ctx, "9.9.9.9", "carol")
	allowed, _, _ := gate.Check(ctx, "9.9.9.9", "carol")
	require.False(t, allowed)

	require.NoError(t, gate.ResetClient(ctx, "9.9.9.9"))
	require.NoError(t, gate.ResetUser(ctx, "carol"))

	allowed, _, _ = gate.Check(ctx, "9.9.9.9", "carol")
	assert.True(t, allowed)
}
