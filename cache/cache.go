// Package cache provides the read-through caches that can sit in front of a
// preferences store: an in-process MemoryCache and a shared RedisCache.
package cache

import (
	"fmt"

	"github.com/CreativeUnicorns/prefs"
	"github.com/CreativeUnicorns/prefs/config"
)

// Cache defines the methods required for a caching backend.
type Cache = prefs.Cache

// New builds the cache selected by cfg.Backend. The "none" backend yields a
// nil Cache, which the facade treats as caching disabled.
func New(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryCache(), nil
	case "redis":
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	}
	return nil, fmt.Errorf("%w: unknown cache backend %q", prefs.ErrConfiguration, cfg.Backend)
}
