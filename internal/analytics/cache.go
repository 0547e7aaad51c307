package analytics

import (
	"sync"
	"time"
)

const (
	// DefaultCacheTTL matches the documented 5-minute freshness window for
	// derived metrics.
	DefaultCacheTTL = 5 * time.Minute

	// DefaultCacheCapacity bounds the cache at the number of distinct
	// (rule, window) pairs a deployment realistically serves.
	DefaultCacheCapacity = 1024
)

type (
	// MetricsCache abstracts the short-lived read cache for derived metrics,
	// so cache behavior is testable independent of the aggregation logic.
	MetricsCache interface {
		// Get returns the cached metrics for a key, or false on miss/expiry.
		Get(key string) (RuleMetrics, bool)
		// Set stores metrics under a key.
		Set(key string, metrics RuleMetrics)
		// Invalidate removes a single key.
		Invalidate(key string)
	}

	// InMemoryMetricsCache is a TTL + capacity bounded cache. When full, the
	// oldest entry is evicted. Thread-safe for concurrent readers/writers.
	InMemoryMetricsCache struct {
		entries  map[string]cacheEntry
		ttl      time.Duration
		capacity int
		now      func() time.Time
		mutex    sync.Mutex
	}

	cacheEntry struct {
		metrics  RuleMetrics
		cachedAt time.Time
	}
)

// NewInMemoryMetricsCache creates a bounded metrics cache. Non-positive ttl
// or capacity fall back to the defaults.
func NewInMemoryMetricsCache(ttl time.Duration, capacity int) *InMemoryMetricsCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}

	return &InMemoryMetricsCache{
		entries:  make(map[string]cacheEntry),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
	}
}

// Get returns the cached metrics for a key, or false on miss or expiry.
// Expired entries are removed on access.
func (c *InMemoryMetricsCache) Get(key string) (RuleMetrics, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		return RuleMetrics{}, false
	}

	if c.now().Sub(entry.cachedAt) > c.ttl {
		delete(c.entries, key)

		return RuleMetrics{}, false
	}

	return entry.metrics, true
}

// Set stores metrics under a key, evicting the oldest entry when at capacity.
func (c *InMemoryMetricsCache) Set(key string, metrics RuleMetrics) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		c.evictOldestLocked()
	}

	c.entries[key] = cacheEntry{
		metrics:  metrics,
		cachedAt: c.now(),
	}
}

// Invalidate removes a single key.
func (c *InMemoryMetricsCache) Invalidate(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.entries, key)
}

// Len returns the current number of cached entries. Used by tests.
func (c *InMemoryMetricsCache) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return len(c.entries)
}

// evictOldestLocked removes the entry with the oldest cachedAt.
// Caller must hold the mutex.
func (c *InMemoryMetricsCache) evictOldestLocked() {
	var (
		oldestKey  string
		oldestTime time.Time
		first      = true
	)

	for key, entry := range c.entries {
		if first || entry.cachedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.cachedAt
			first = false
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
