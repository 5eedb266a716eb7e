package meds

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements Cache on go-redis. Errors degrade to cache misses;
// a flaky Redis must never break medication lookups.
type RedisCache struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func NewRedisCache(rdb *redis.Client, logger *slog.Logger) *RedisCache {
	return &RedisCache{rdb: rdb, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil && c.logger != nil {
			c.logger.Warn("cache get failed", "key", key, "err", err)
		}
		return "", false
	}
	return val, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil && c.logger != nil {
		c.logger.Warn("cache set failed", "key", key, "err", err)
	}
}
