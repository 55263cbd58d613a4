package cache

import (
	"context"
	"sync"
	"time"
)

// item represents a cached item with expiration
type item struct {
	value      []byte
	expiration time.Time
}

func (i item) expired(now time.Time) bool {
	return !i.expiration.IsZero() && now.After(i.expiration)
}

// MemoryOptions configures a MemoryCache
type MemoryOptions struct {
	// MaxItems bounds the number of entries; 0 means unbounded
	MaxItems int
	// Clock defaults to SystemClock
	Clock Clock
}

// MemoryCache is a thread-safe in-memory cache with expiration
type MemoryCache struct {
	mu       sync.RWMutex
	items    map[string]item
	maxItems int
	clock    Clock
}

// NewMemory creates a new in-memory cache
func NewMemory(opts MemoryOptions) *MemoryCache {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}

	c := &MemoryCache{
		items:    make(map[string]item),
		maxItems: opts.MaxItems,
		clock:    opts.Clock,
	}
	return c
}

// Get retrieves an item from the cache
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, found := c.items[key]
	if !found || it.expired(c.clock.Now()) {
		return nil, false, nil
	}
	return it.value, true, nil
}

// Set adds an item to the cache. A ttl <= 0 never expires.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = c.clock.Now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && c.maxItems > 0 && len(c.items) >= c.maxItems {
		c.evictOldest()
	}

	c.items[key] = item{value: value, expiration: exp}
	return nil
}

// Delete removes an item from the cache
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
	return nil
}

// Count returns the number of items in the cache (including expired items)
func (c *MemoryCache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

// Sweep deletes expired entries every interval until ctx is cancelled
func (c *MemoryCache) Sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.DeleteExpired()
		case <-ctx.Done():
			return
		}
	}
}

// DeleteExpired deletes all expired items from the cache
func (c *MemoryCache) DeleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for k, v := range c.items {
		if v.expired(now) {
			delete(c.items, k)
		}
	}
}

// evictOldest removes the entry expiring first; entries without expiry go last
func (c *MemoryCache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	found := false

	for k, v := range c.items {
		if !found {
			oldestKey, oldest, found = k, v.expiration, true
			continue
		}
		if oldest.IsZero() || (!v.expiration.IsZero() && v.expiration.Before(oldest)) {
			oldestKey, oldest = k, v.expiration
		}
	}

	if found {
		delete(c.items, oldestKey)
	}
}
