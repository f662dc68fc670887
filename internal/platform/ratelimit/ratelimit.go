// Package ratelimit enforces the per-tenant webhook delivery budget with a
// fixed one-minute window.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter answers whether one more delivery fits in the current window.
type Limiter interface {
	// Allow consumes one slot for the key. When the budget is exhausted it
	// returns false and the seconds until the window resets.
	Allow(ctx context.Context, key string) (bool, int, error)
}

// Redis is a fixed-window limiter shared across server instances.
type Redis struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRedis creates a Redis-backed limiter allowing limit calls per window.
func NewRedis(client *redis.Client, limit int, window time.Duration) *Redis {
	return &Redis{client: client, limit: limit, window: window}
}

func (l *Redis) Allow(ctx context.Context, key string) (bool, int, error) {
	bucket := fmt.Sprintf("ratelimit:%s:%d", key, time.Now().Unix()/int64(l.window.Seconds()))

	pipe := l.client.TxPipeline()
	count := pipe.Incr(ctx, bucket)
	pipe.Expire(ctx, bucket, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("incrementing rate limit window: %w", err)
	}

	if count.Val() > int64(l.limit) {
		ttl, err := l.client.TTL(ctx, bucket).Result()
		if err != nil || ttl < 0 {
			ttl = l.window
		}
		return false, int(ttl.Seconds()) + 1, nil
	}
	return true, 0, nil
}

// InMemory is a single-process fixed-window limiter, used when Redis is not
// configured.
type InMemory struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	counts map[string]int
	starts map[string]time.Time
	now    func() time.Time
}

// NewInMemory creates a process-local limiter allowing limit calls per window.
func NewInMemory(limit int, window time.Duration) *InMemory {
	return &InMemory{
		limit:  limit,
		window: window,
		counts: make(map[string]int),
		starts: make(map[string]time.Time),
		now:    time.Now,
	}
}

func (l *InMemory) Allow(_ context.Context, key string) (bool, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	start, ok := l.starts[key]
	if !ok || now.Sub(start) >= l.window {
		l.starts[key] = now
		l.counts[key] = 0
		start = now
	}
	if l.counts[key] >= l.limit {
		retry := int((l.window - now.Sub(start)).Seconds()) + 1
		return false, retry, nil
	}
	l.counts[key]++
	return true, 0, nil
}
