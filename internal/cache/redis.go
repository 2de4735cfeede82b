package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ConnectRedis initializes and returns a Redis client instance.
func ConnectRedis(addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	zap.L().Info("connected to redis", zap.String("addr", addr))
	return rdb, nil
}

// DisconnectRedis closes the Redis client connection.
func DisconnectRedis(client *redis.Client) error {
	if client == nil {
		return nil
	}
	if err := client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis connection: %w", err)
	}
	zap.L().Info("redis connection closed")
	return nil
}

// JSONCache stores JSON-encoded values under a key prefix. A JSONCache with
// no client always misses, so callers need no special case when Redis is off.
type JSONCache struct {
	rdb    redis.Cmdable
	prefix string
}

// NewJSONCache returns a cache using rdb, which may be nil.
func NewJSONCache(rdb redis.Cmdable, prefix string) *JSONCache {
	return &JSONCache{rdb: rdb, prefix: prefix}
}

// Enabled reports whether a Redis client backs the cache.
func (c *JSONCache) Enabled() bool {
	return c != nil && c.rdb != nil
}

// Get decodes the cached value into dst. It reports false on a miss.
func (c *JSONCache) Get(ctx context.Context, key string, dst interface{}) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}
	raw, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores v for ttl.
func (c *JSONCache) Set(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, c.prefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}
