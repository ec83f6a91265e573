// internal/pkg/session/rate_limiter.go
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	client *redis.Client
}

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// Allow checks a fixed-window per-user counter for an endpoint. The first
// hit in the window sets the expiry.
func (r *RateLimiter) Allow(ctx context.Context, identityID int64, endpoint string, maxRequests int64, window time.Duration) (bool, error) {
	key := fmt.Sprintf("ratelimit:api:%d:%s", identityID, endpoint)

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, key, window)
	}

	return count <= maxRequests, nil
}

// IsAccountTemporarilyLocked reports whether purchases are locked for the
// account and for how much longer.
func (r *RateLimiter) IsAccountTemporarilyLocked(ctx context.Context, identityID int64) (bool, time.Duration, error) {
	key := fmt.Sprintf("account:locked:%d", identityID)

	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if ttl < 0 {
		return false, 0, nil
	}
	return true, ttl, nil
}

func (r *RateLimiter) LockAccount(ctx context.Context, identityID int64, duration time.Duration) error {
	key := fmt.Sprintf("account:locked:%d", identityID)
	return r.client.Set(ctx, key, "1", duration).Err()
}

func (r *RateLimiter) UnlockAccount(ctx context.Context, identityID int64) error {
	key := fmt.Sprintf("account:locked:%d", identityID)
	return r.client.Del(ctx, key).Err()
}
