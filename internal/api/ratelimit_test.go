package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLimiterBurst(t *testing.T) {
	l := NewLocalLimiter(2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _, err := l.Allow(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, retry, err := l.Allow(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, retry, time.Duration(0))

	ok, _, err = l.Allow(ctx, "b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalLimiterEvictsIdleKeys(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewLocalLimiter(5)
	l.now = func() time.Time { return clock }
	ctx := context.Background()

	for _, key := range []string{"booking:10.0.0.1", "booking:10.0.0.2", "booking:10.0.0.3"} {
		_, _, err := l.Allow(ctx, key)
		require.NoError(t, err)
	}
	assert.Len(t, l.visitors, 3)

	clock = clock.Add(2 * time.Minute)
	_, _, err := l.Allow(ctx, "booking:10.0.0.1")
	require.NoError(t, err)
	assert.Len(t, l.visitors, 3)

	clock = clock.Add(2 * time.Minute)
	_, _, err = l.Allow(ctx, "booking:10.0.0.4")
	require.NoError(t, err)
	assert.Len(t, l.visitors, 2)
	assert.Contains(t, l.visitors, "booking:10.0.0.1")
	assert.Contains(t, l.visitors, "booking:10.0.0.4")
}
