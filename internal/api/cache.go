package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const publicCachePrefix = "cms:"

// publicCache is a read-through JSON cache for public CMS reads. Every error
// is logged and treated as a miss so the database stays authoritative.
type publicCache struct {
	kv     redisKV
	ttl    time.Duration
	logger *slog.Logger
}

func newPublicCache(kv redisKV, ttl time.Duration, logger *slog.Logger) *publicCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &publicCache{kv: kv, ttl: ttl, logger: logger}
}

func publicCacheKey(resource, variant string) string {
	if variant == "" {
		return publicCachePrefix + resource + ":public"
	}
	return publicCachePrefix + resource + ":public:" + variant
}

// load fills dst from the cache, or from fetch on a miss and stores the result.
func (p *publicCache) load(ctx context.Context, key string, dst any, fetch func() error) error {
	if p != nil && p.kv != nil {
		raw, err := p.kv.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			if err := json.Unmarshal(raw, dst); err == nil {
				return nil
			}
			p.logger.Warn("discarding undecodable cache entry", slog.String("key", key))
		case !errors.Is(err, redis.Nil):
			p.logger.Warn("cache read failed", slog.String("key", key), slog.Any("error", err))
		}
	}

	if err := fetch(); err != nil {
		return err
	}

	if p != nil && p.kv != nil && p.ttl > 0 {
		data, err := json.Marshal(dst)
		if err != nil {
			p.logger.Warn("cache encode failed", slog.String("key", key), slog.Any("error", err))
			return nil
		}
		if err := p.kv.Set(ctx, key, data, p.ttl).Err(); err != nil {
			p.logger.Warn("cache write failed", slog.String("key", key), slog.Any("error", err))
		}
	}
	return nil
}

func (p *publicCache) invalidate(ctx context.Context, keys ...string) {
	if p == nil || p.kv == nil || len(keys) == 0 {
		return
	}
	if err := p.kv.Del(ctx, keys...).Err(); err != nil {
		p.logger.Warn("cache invalidate failed", slog.Any("keys", keys), slog.Any("error", err))
	}
}
