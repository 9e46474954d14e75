package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/rueidis"
)

// RedisCache stores responses in Redis with a fixed TTL per key.
type RedisCache struct {
	client rueidis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache connects to Redis via rueidis.
func NewRedisCache(addrs []string, ttl time.Duration, logger *slog.Logger) (*RedisCache, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  addrs,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	return &RedisCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// Get returns the cached payload. Backend errors are logged and reported as
// misses.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	cmd := c.client.B().Get().Key(key).Build()
	data, err := c.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if !rueidis.IsRedisNil(err) {
			c.logger.Warn("Cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	return data, true
}

// Set stores the payload with the configured TTL. Errors are logged and
// swallowed.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte) {
	cmd := c.client.B().Set().Key(key).Value(string(value)).Ex(c.ttl).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		c.logger.Warn("Cache set failed", "key", key, "error", err)
	}
}

// Close shuts down the client.
func (c *RedisCache) Close() {
	c.client.Close()
}
