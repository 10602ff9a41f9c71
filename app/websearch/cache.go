package websearch

import (
	"context"
	"strings"
	"sync"
	"time"
)

const (
	DefaultCacheTTL  = time.Hour
	DefaultCacheSize = 500
)

type Cache interface {
	Get(ctx context.Context, key string) ([]Result, bool)
	Set(ctx context.Context, key string, results []Result)
}

// NormalizeQuery is the cache key of a query: trimmed, lower-cased, with
// whitespace runs collapsed.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

type memoryEntry struct {
	results  []Result
	storedAt time.Time
}

// MemoryCache is a process-local cache with a TTL and a size bound. When
// full, the oldest entry is evicted.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	entries map[string]memoryEntry
	order   []string
}

func NewMemoryCache(ttl time.Duration, maxSize int) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	return &MemoryCache{
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

// WithClock replaces the time source.
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.now = now
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		c.remove(key)
		return nil, false
	}
	return e.results, true
}

func (c *MemoryCache) Set(_ context.Context, key string, results []Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.remove(key)
	}
	for len(c.order) >= c.maxSize {
		c.remove(c.order[0])
	}

	c.entries[key] = memoryEntry{results: results, storedAt: c.now()}
	c.order = append(c.order, key)
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
