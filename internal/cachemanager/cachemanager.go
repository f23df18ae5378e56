// Package cachemanager provides a typed in-memory cache on top of go-cache.
package cachemanager

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/kernelci/logspec/internal/logging"
)

const (
	// DefaultExpiration is the TTL used when none is configured.
	DefaultExpiration = 5 * time.Minute
	// DefaultCleanupInterval is how often expired items are purged.
	DefaultCleanupInterval = 10 * time.Minute
	// NoExpiration keeps an item until it is deleted.
	NoExpiration = cache.NoExpiration
)

// CacheManager is a typed key/value cache.
type CacheManager[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	// Claim stores value only if key is absent and reports whether it did.
	// Exactly one of several concurrent callers claiming the same key wins.
	Claim(ctx context.Context, key K, value V, ttl time.Duration) bool
	Delete(ctx context.Context, keys ...K) error
}

// InMemoryCacheManager is a CacheManager backed by go-cache.
type InMemoryCacheManager[K comparable, V any] struct {
	name  string
	cache *cache.Cache
}

var _ CacheManager[string, string] = (*InMemoryCacheManager[string, string])(nil)

// NewInMemoryCacheManager creates a cache named name. The name only shows
// up in logs.
func NewInMemoryCacheManager[K comparable, V any](name string, defaultExpiration, cleanupInterval time.Duration) *InMemoryCacheManager[K, V] {
	return &InMemoryCacheManager[K, V]{
		name:  name,
		cache: cache.New(defaultExpiration, cleanupInterval),
	}
}

func cacheKey[K comparable](key K) string {
	if s, ok := any(key).(string); ok {
		return s
	}
	return fmt.Sprint(key)
}

func (c *InMemoryCacheManager[K, V]) lookup(key K) (V, bool) {
	var zero V
	raw, ok := c.cache.Get(cacheKey(key))
	if !ok {
		return zero, false
	}
	v, ok := raw.(V)
	if !ok {
		logging.Warn("unexpected value type in cache", "cache", c.name, "key", cacheKey(key), "type", fmt.Sprintf("%T", raw))
		return zero, false
	}
	return v, true
}

// Get returns the value stored under key.
func (c *InMemoryCacheManager[K, V]) Get(_ context.Context, key K) (V, bool) {
	return c.lookup(key)
}

// Set stores value under key.
func (c *InMemoryCacheManager[K, V]) Set(_ context.Context, key K, value V, ttl time.Duration) {
	c.cache.Set(cacheKey(key), value, ttl)
}

// Claim stores value under key unless the key is already present.
func (c *InMemoryCacheManager[K, V]) Claim(_ context.Context, key K, value V, ttl time.Duration) bool {
	return c.cache.Add(cacheKey(key), value, ttl) == nil
}

// Delete removes keys.
func (c *InMemoryCacheManager[K, V]) Delete(_ context.Context, keys ...K) error {
	for _, key := range keys {
		c.cache.Delete(cacheKey(key))
	}
	return nil
}
