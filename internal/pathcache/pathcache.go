// Package pathcache is an optional cache-aside layer in front of the
// dispatcher's path-finding commands. It is grounded on, and wired
// directly to, the teacher's generic pkg/cache.Cache (memory or Redis
// backend selected by pkg/config.CacheConfig.Driver) rather than talking
// to Redis itself — the same way a consuming service in the teacher's
// pack picks a cache backend through pkg/cache.New. It satisfies
// internal/dispatcher.PathCache; a Dispatcher with no cache attached
// behaves identically.
package pathcache

import (
	"context"
	"encoding/json"
	"time"

	"terminalsim/internal/dispatcher"
	pkgcache "terminalsim/pkg/cache"
	"terminalsim/pkg/config"
	"terminalsim/pkg/logger"
)

const keyPrefix = "terminalsim:paths:"

// Cache adapts pkgcache.Cache to internal/dispatcher.PathCache's
// best-effort, error-swallowing contract: a cache miss, a backend error,
// or a disabled cache must never turn a working path query into a
// dispatch failure.
type Cache struct {
	backend pkgcache.Cache
	ttl     time.Duration
}

// New builds a Cache from the service's CacheConfig, using whichever
// backend (memory or redis) the configuration names.
func New(cfg *config.CacheConfig) (*Cache, error) {
	backend, err := pkgcache.New(pkgcache.FromConfig(cfg))
	if err != nil {
		return nil, err
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{backend: backend, ttl: ttl}, nil
}

// NewWithBackend wraps an already-constructed pkgcache.Cache, used by
// tests against pkgcache.NewMemoryCache.
func NewWithBackend(backend pkgcache.Cache, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{backend: backend, ttl: ttl}
}

var _ dispatcher.PathCache = (*Cache)(nil)

// Get returns the cached JSON payload for key, or (nil, false) on a miss
// or a backend error.
func (c *Cache) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	val, err := c.backend.Get(ctx, keyPrefix+key)
	if err != nil {
		if err != pkgcache.ErrKeyNotFound {
			logger.Warn("pathcache get failed", "error", err)
		}
		return nil, false
	}
	return json.RawMessage(val), true
}

// Set stores value (JSON-marshaled) under key with the configured TTL.
func (c *Cache) Set(ctx context.Context, key string, value any) {
	b, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.backend.Set(ctx, keyPrefix+key, b, c.ttl); err != nil {
		logger.Warn("pathcache set failed", "error", err)
	}
}

// InvalidateAll drops every cached path-finding result.
func (c *Cache) InvalidateAll(ctx context.Context) {
	if _, err := c.backend.DeleteByPattern(ctx, keyPrefix+"*"); err != nil {
		logger.Warn("pathcache invalidate failed", "error", err)
	}
}

// Close releases the underlying cache backend.
func (c *Cache) Close() error {
	return c.backend.Close()
}
