package embeddings

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jankowtf/wordstack/internal/metrics"
	"github.com/jankowtf/wordstack/pkg/text"
)

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits   uint64
	Misses uint64
	Size   int
}

// Cache memoizes vectors by normalized word form for a single static
// provider. Entries are never evicted or replaced.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]text.Vector
	hits    atomic.Uint64
	misses  atomic.Uint64

	hitCounter  prometheus.Counter
	missCounter prometheus.Counter
}

// NewCache creates an empty cache reporting metrics under owner.
func NewCache(owner string) *Cache {
	return &Cache{
		entries:     make(map[string]text.Vector),
		hitCounter:  metrics.CacheHits.WithLabelValues(owner),
		missCounter: metrics.CacheMisses.WithLabelValues(owner),
	}
}

// GetOrCompute returns the cached vector for key, calling compute on a miss.
// When two callers miss concurrently, the first insert wins and both receive
// the stored vector.
func (c *Cache) GetOrCompute(key string, compute func() text.Vector) text.Vector {
	c.mu.RLock()
	v, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		c.hitCounter.Inc()
		return v
	}

	computed := compute()

	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.entries[key]; ok {
		c.hits.Add(1)
		c.hitCounter.Inc()
		return v
	}
	c.entries[key] = computed
	c.misses.Add(1)
	c.missCounter.Inc()
	return computed
}

// Get returns the cached vector for key without computing.
func (c *Cache) Get(key string) (text.Vector, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// Len returns the number of cached words.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns hit and miss counts.
func (c *Cache) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Size: c.Len()}
}
