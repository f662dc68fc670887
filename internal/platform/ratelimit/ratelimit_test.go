package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemory_AllowsUpToLimit(t *testing.T) {
	l := NewInMemory(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _, err := l.Allow(ctx, "1")
		require.NoError(t, err)
		assert.True(t, allowed, "call %d should fit the budget", i+1)
	}

	allowed, retryAfter, err := l.Allow(ctx, "1")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, 0)
	assert.LessOrEqual(t, retryAfter, 61)
}

func TestInMemory_WindowResets(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base

	l := NewInMemory(1, time.Minute)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	allowed, _, err := l.Allow(ctx, "1")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, _, err = l.Allow(ctx, "1")
	require.NoError(t, err)
	require.False(t, allowed)

	now = base.Add(time.Minute)
	allowed, _, err = l.Allow(ctx, "1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestInMemory_KeysAreIndependent(t *testing.T) {
	l := NewInMemory(1, time.Minute)
	ctx := context.Background()

	allowed, _, err := l.Allow(ctx, "1")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, _, err = l.Allow(ctx, "2")
	require.NoError(t, err)
	assert.True(t, allowed)
}
