package cache

import (
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LRUConfig holds configuration for the LRU+TTL cache.
type LRUConfig struct {
	// MaxSize is the maximum number of entries.
	// Default: 1000
	MaxSize int

	// TTL is the time-to-live for each entry.
	// Default: 5 minutes
	TTL time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *LRUConfig) ApplyDefaults() {
	if c.MaxSize == 0 {
		c.MaxSize = 1000
	}
	if c.TTL == 0 {
		c.TTL = 5 * time.Minute
	}
}

// LRU is an embedding cache with least-recently-used eviction and TTL expiry.
//
// Get on a live entry moves it to the most-recently-used position; a miss
// (absent or expired) evicts the stale entry. Set evicts the oldest entry
// when the cache is at capacity.
type LRU struct {
	entries *expirable.LRU[string, []float32]
	maxSize int
	hits    atomic.Uint64
	misses  atomic.Uint64
}

// NewLRU creates an LRU+TTL embedding cache.
func NewLRU(cfg LRUConfig) *LRU {
	cfg.ApplyDefaults()
	return &LRU{
		entries: expirable.NewLRU[string, []float32](cfg.MaxSize, nil, cfg.TTL),
		maxSize: cfg.MaxSize,
	}
}

// Get returns the cached embedding for text, updating recency on a hit.
func (c *LRU) Get(text string) ([]float32, bool) {
	emb, ok := c.entries.Get(text)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return emb, true
}

// Set stores an embedding, evicting the least recently used entry at capacity.
func (c *LRU) Set(text string, embedding []float32) {
	c.entries.Add(text, embedding)
}

// Has reports whether text is cached without updating recency.
func (c *LRU) Has(text string) bool {
	_, ok := c.entries.Peek(text)
	return ok
}

// Clear removes all entries. Counters are preserved.
func (c *LRU) Clear() {
	c.entries.Purge()
}

// Stats returns current size and hit/miss counters.
func (c *LRU) Stats() Stats {
	return Stats{
		Size:    c.entries.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		MaxSize: c.maxSize,
	}
}

var _ EmbeddingCache = (*LRU)(nil)
