package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares the quota between instances. Each key is an INCR counter
// that expires when its window ends.
type Redis struct {
	client redis.Cmdable
	prefix string
	limit  int
	period time.Duration
	now    func() time.Time
}

func NewRedis(client redis.Cmdable, limit int, period time.Duration) *Redis {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if period <= 0 {
		period = DefaultWindow
	}
	return &Redis{
		client: client,
		prefix: "ratelimit:analyze:",
		limit:  limit,
		period: period,
		now:    time.Now,
	}
}

func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	k := r.prefix + key

	count, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	if count == 1 {
		if err := r.client.PExpire(ctx, k, r.period).Err(); err != nil {
			return Decision{}, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	ttl, err := r.client.PTTL(ctx, k).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("failed to read rate limit window: %w", err)
	}
	if ttl < 0 {
		// counter lost its expiry, start a fresh window
		if err := r.client.PExpire(ctx, k, r.period).Err(); err != nil {
			return Decision{}, fmt.Errorf("failed to set rate limit window: %w", err)
		}
		ttl = r.period
	}

	d := Decision{
		Limit:   r.limit,
		ResetAt: r.now().Add(ttl),
	}
	if int(count) > r.limit {
		return d, nil
	}
	d.Allowed = true
	d.Remaining = r.limit - int(count)
	return d, nil
}
