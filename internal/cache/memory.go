package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheEntry represents a cached response with expiration
type cacheEntry struct {
	resp      *Response
	expiresAt time.Time
}

// MemoryCache is an in-memory LRU cache with TTL support
type MemoryCache struct {
	cache *lru.Cache[string, *cacheEntry]
	ttl   time.Duration
	done  chan struct{}
	once  sync.Once
	mu    sync.RWMutex
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(size int, ttl time.Duration) (*MemoryCache, error) {
	cache, err := lru.New[string, *cacheEntry](size)
	if err != nil {
		return nil, err
	}

	mc := &MemoryCache{
		cache: cache,
		ttl:   ttl,
		done:  make(chan struct{}),
	}

	go mc.cleanupLoop()

	return mc, nil
}

// Get retrieves a cached response by request ID
func (mc *MemoryCache) Get(requestID string) (*Response, bool) {
	mc.mu.RLock()
	entry, ok := mc.cache.Get(requestID)
	mc.mu.RUnlock()

	if !ok {
		return nil, false
	}

	// Check if entry has expired
	if time.Now().After(entry.expiresAt) {
		mc.mu.Lock()
		mc.cache.Remove(requestID)
		mc.mu.Unlock()
		return nil, false
	}

	return entry.resp, true
}

// Set stores a response under a request ID
func (mc *MemoryCache) Set(requestID string, resp *Response) {
	entry := &cacheEntry{
		resp:      resp,
		expiresAt: time.Now().Add(mc.ttl),
	}

	mc.mu.Lock()
	mc.cache.Add(requestID, entry)
	mc.mu.Unlock()
}

// Close stops the cache cleanup goroutine
func (mc *MemoryCache) Close() {
	mc.once.Do(func() { close(mc.done) })
}

// cleanupLoop periodically removes expired entries
func (mc *MemoryCache) cleanupLoop() {
	ticker := time.NewTicker(mc.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-mc.done:
			return
		case <-ticker.C:
			mc.removeExpired()
		}
	}
}

// removeExpired removes all expired entries from the cache
func (mc *MemoryCache) removeExpired() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	keys := mc.cache.Keys()

	for _, key := range keys {
		entry, ok := mc.cache.Peek(key)
		if ok && now.After(entry.expiresAt) {
			mc.cache.Remove(key)
		}
	}
}

// NoopCache is a cache that does nothing (used when caching is disabled)
type NoopCache struct{}

// NewNoopCache creates a new no-op cache
func NewNoopCache() *NoopCache {
	return &NoopCache{}
}

// Get always returns not found
func (nc *NoopCache) Get(requestID string) (*Response, bool) {
	return nil, false
}

// Set does nothing
func (nc *NoopCache) Set(requestID string, resp *Response) {}

// Close does nothing
func (nc *NoopCache) Close() {}
