package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Inflight is a short-lived dedup guard for expensive provider requests.
// Unlike the durable workflow markers, an in-flight entry expires on its
// own: it only needs to outlive the provider round trip, so a crashed
// worker cannot wedge a resource forever.
type Inflight struct {
	client *redis.Client
	ttl    time.Duration
}

// NewInflight creates an Inflight guard with the given entry lifetime.
func NewInflight(client *redis.Client, ttl time.Duration) *Inflight {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Inflight{client: client, ttl: ttl}
}

// TryAcquire marks key as in flight. Returns true when this call acquired
// the slot, false when another worker already holds it.
func (f *Inflight) TryAcquire(ctx context.Context, key string) (bool, error) {
	return f.client.SetNX(ctx, "inflight:"+key, 1, f.ttl).Result()
}

// Release frees the slot early, once the guarded work finished or failed.
func (f *Inflight) Release(ctx context.Context, key string) error {
	return f.client.Del(ctx, "inflight:"+key).Err()
}
