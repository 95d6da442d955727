package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache is the read-through store used for single product lookups.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
	Delete(ctx context.Context, keys ...string)
	Incr(ctx context.Context, key string)
}

type noCache struct{}

func (noCache) Get(context.Context, string) ([]byte, bool)         { return nil, false }
func (noCache) Set(context.Context, string, []byte, time.Duration) {}
func (noCache) Delete(context.Context, ...string)                  {}
func (noCache) Incr(context.Context, string)                       {}

// RedisCache never fails a request: cache errors are logged and treated as misses.
type RedisCache struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisCache(client *redis.Client, log *zap.Logger) *RedisCache {
	return &RedisCache{client: client, log: log.Named("catalog-cache")}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return val, true
}

func (c *RedisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	if err := c.client.Set(ctx, key, val, ttl).Err(); err != nil {
		c.log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (c *RedisCache) Incr(ctx context.Context, key string) {
	if err := c.client.Incr(ctx, key).Err(); err != nil {
		c.log.Warn("cache incr failed", zap.String("key", key), zap.Error(err))
	}
}
