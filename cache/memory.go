package cache

import (
	"context"
	"sync"
	"time"

	"github.com/CreativeUnicorns/prefs"
)

const defaultGCInterval = time.Minute

// item represents a single cache item with a value and an expiration time.
type item struct {
	value      interface{}
	expiration time.Time
}

func (it item) expired(now time.Time) bool {
	return !it.expiration.IsZero() && now.After(it.expiration)
}

// MemoryCache implements the Cache interface using an in-memory store.
type MemoryCache struct {
	mu       sync.RWMutex
	items    map[string]item
	closed   bool
	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryCache initializes a new MemoryCache instance.
// It starts a garbage collection goroutine to clean expired items.
func NewMemoryCache() *MemoryCache {
	return newMemoryCache(defaultGCInterval)
}

func newMemoryCache(gcInterval time.Duration) *MemoryCache {
	cache := &MemoryCache{
		items: make(map[string]item),
		stop:  make(chan struct{}),
	}
	go cache.gc(gcInterval)
	return cache
}

// Get retrieves a value by key. Missing and expired keys report
// prefs.ErrNotFound; a closed cache reports prefs.ErrCacheUnavailable.
func (c *MemoryCache) Get(_ context.Context, key string) (interface{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, prefs.ErrCacheUnavailable
	}
	it, exists := c.items[key]
	if !exists || it.expired(time.Now()) {
		return nil, prefs.ErrNotFound
	}
	return it.value, nil
}

// Set stores a value with an optional TTL. A zero TTL never expires.
func (c *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return prefs.ErrCacheUnavailable
	}
	var expiration time.Time
	if ttl > 0 {
		expiration = time.Now().Add(ttl)
	}
	c.items[key] = item{value: value, expiration: expiration}
	return nil
}

// Delete removes a key from the memory cache.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return prefs.ErrCacheUnavailable
	}
	delete(c.items, key)
	return nil
}

// Len returns the number of stored items, expired ones included until the
// next collection.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops garbage collection and drops every item. It is safe to call twice.
func (c *MemoryCache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.items = make(map[string]item)
	return nil
}

// gc periodically removes expired items.
func (c *MemoryCache) gc(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, it := range c.items {
				if it.expired(now) {
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}
