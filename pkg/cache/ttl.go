package cache

import (
	"sync"
	"time"
)

// ttlEntry is a cached embedding with its expiry deadline.
type ttlEntry struct {
	embedding []float32
	expiresAt time.Time
}

// TTL is an unbounded embedding cache whose entries expire after a fixed
// duration. Expired entries are removed lazily on Get and opportunistically
// swept on Set.
type TTL struct {
	mu      sync.RWMutex
	entries map[string]ttlEntry
	ttl     time.Duration
	hits    uint64
	misses  uint64

	// setsSinceSweep throttles the opportunistic sweep.
	setsSinceSweep int

	// now is a hook for tests.
	now func() time.Time
}

// sweepInterval is the number of Set calls between opportunistic sweeps.
const sweepInterval = 64

// NewTTL creates a TTL-only embedding cache. A non-positive ttl defaults
// to 5 minutes.
func NewTTL(ttl time.Duration) *TTL {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TTL{
		entries: make(map[string]ttlEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached embedding for text if it has not expired.
func (c *TTL) Get(text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[text]
	if !ok {
		c.misses++
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, text)
		c.misses++
		return nil, false
	}

	c.hits++
	return entry.embedding, true
}

// Set stores an embedding with a fresh TTL and occasionally sweeps
// expired entries.
func (c *TTL) Set(text string, embedding []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[text] = ttlEntry{
		embedding: embedding,
		expiresAt: c.now().Add(c.ttl),
	}

	c.setsSinceSweep++
	if c.setsSinceSweep >= sweepInterval {
		c.sweepLocked()
		c.setsSinceSweep = 0
	}
}

// Has reports whether text is cached and live.
func (c *TTL) Has(text string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[text]
	return ok && !c.now().After(entry.expiresAt)
}

// Clear removes all entries. Counters are preserved.
func (c *TTL) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]ttlEntry)
}

// Stats returns current size and hit/miss counters.
func (c *TTL) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Size:   len(c.entries),
		Hits:   c.hits,
		Misses: c.misses,
	}
}

// sweepLocked removes expired entries. Caller must hold the write lock.
func (c *TTL) sweepLocked() {
	now := c.now()
	for text, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, text)
		}
	}
}

var _ EmbeddingCache = (*TTL)(nil)
