// Package cache provides the best-effort response cache. Its absence never
// changes output, only latency: every failure is a miss.
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/infohub-ai/taxrag/internal/config"
)

// ResponseCache stores serialized query results under fingerprint keys.
// Implementations are safe for concurrent use via atomic per-key operations.
type ResponseCache interface {
	// Get returns the cached payload and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores the payload with the cache's TTL. Best-effort.
	Set(ctx context.Context, key string, value []byte)
}

// New builds the cache selected by configuration. When caching is disabled
// or Redis cannot be reached, callers get a Noop cache: a cache backend
// outage must fall through to full computation, never fail the request.
func New(cfg config.CacheConfig, logger *slog.Logger) ResponseCache {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled {
		return Noop{}
	}

	c, err := NewRedisCache(cfg.Addrs, time.Duration(cfg.TTLSec)*time.Second, logger)
	if err != nil {
		logger.Warn("Response cache unavailable, falling back to no-op", "error", err)
		return Noop{}
	}
	return c
}

// Noop is the disabled cache: every lookup misses, every store is dropped.
type Noop struct{}

func (Noop) Get(ctx context.Context, key string) ([]byte, bool) { return nil, false }
func (Noop) Set(ctx context.Context, key string, value []byte)  {}
