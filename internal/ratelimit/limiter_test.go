package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBuckets_ExhaustsAndRefills(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tb := NewTokenBuckets()
	tb.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := tb.CheckAndIncrement(ctx, "chat:session:s1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "call %d should pass", i)
	}

	ok, err := tb.CheckAndIncrement(ctx, "chat:session:s1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _ = tb.CheckAndIncrement(ctx, "chat:session:s2", 3, time.Minute)
	assert.True(t, ok, "keys are independent")

	now = now.Add(20 * time.Second)
	ok, _ = tb.CheckAndIncrement(ctx, "chat:session:s1", 3, time.Minute)
	assert.True(t, ok, "one token refills every window/limit")
}

func TestTokenBuckets_ZeroLimitIsUnlimited(t *testing.T) {
	tb := NewTokenBuckets()
	for i := 0; i < 100; i++ {
		ok, err := tb.CheckAndIncrement(context.Background(), "k", 0, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, 0, tb.Len())
}

func TestTokenBuckets_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := NewTokenBuckets().CheckAndIncrement(ctx, "k", 1, time.Minute)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTokenBuckets_ConcurrentCallersNeverExceedLimit(t *testing.T) {
	now := time.Now()
	tb := NewTokenBuckets()
	tb.now = func() time.Time { return now }

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := tb.CheckAndIncrement(context.Background(), "chat:global", 10, time.Minute); ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), allowed.Load())
}

func TestTokenBuckets_Sweep(t *testing.T) {
	now := time.Now()
	tb := NewTokenBuckets()
	tb.now = func() time.Time { return now }

	_, _ = tb.CheckAndIncrement(context.Background(), "old", 5, time.Minute)
	now = now.Add(10 * time.Minute)
	_, _ = tb.CheckAndIncrement(context.Background(), "fresh", 5, time.Minute)

	assert.Equal(t, 1, tb.Sweep(5*time.Minute))
	assert.Equal(t, 1, tb.Len())
}
