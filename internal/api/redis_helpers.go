package api

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKV is the subset of *redis.Client used by handlers for rate limits,
// login locks, the refresh blacklist and the public read cache.
type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
}

func incrWithTTL(ctx context.Context, client redisKV, key string, ttl time.Duration) (int64, error) {
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		_ = client.Expire(ctx, key, ttl).Err()
	}
	return count, nil
}

// hourlyLimitExceeded bumps a per-hour counter and reports whether it passed limit.
// Redis failures never block the request.
func hourlyLimitExceeded(ctx context.Context, client redisKV, prefix, subject string, limit int) bool {
	if limit <= 0 {
		return false
	}
	key := prefix + subject + ":" + time.Now().UTC().Format("2006010215")
	count, err := incrWithTTL(ctx, client, key, time.Hour)
	if err != nil {
		return false
	}
	return count > int64(limit)
}
