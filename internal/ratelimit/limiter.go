// Package ratelimit provides the shared check-and-increment counters used by
// the chat entry point, the security gate and MCP proxy calls.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter atomically consumes one unit for key if the budget allows it.
// A limit <= 0 disables limiting for that call.
type Limiter interface {
	CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type bucket struct {
	limiter  *rate.Limiter
	limit    int
	window   time.Duration
	lastSeen time.Time
}

// TokenBuckets keeps one token bucket per key. Each bucket holds limit tokens
// and refills at limit/window.
type TokenBuckets struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

func NewTokenBuckets() *TokenBuckets {
	return &TokenBuckets{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (t *TokenBuckets) CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if limit <= 0 {
		return true, nil
	}
	if window <= 0 {
		window = time.Minute
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	b, ok := t.buckets[key]
	if !ok || b.limit != limit || b.window != window {
		b = &bucket{
			limiter: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit),
			limit:   limit,
			window:  window,
		}
		t.buckets[key] = b
	}
	b.lastSeen = now

	return b.limiter.AllowN(now, 1), nil
}

// Sweep drops buckets not touched within idle and returns how many were removed.
func (t *TokenBuckets) Sweep(idle time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-idle)
	removed := 0
	for key, b := range t.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(t.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (t *TokenBuckets) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buckets)
}
