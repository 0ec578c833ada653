// Package cache provides embedding caches keyed by raw document text.
//
// A cache is an optional collaborator of the document store: on upsert the
// store consults the cache before asking the embedding provider, and writes
// freshly computed vectors back. Three eviction policies are provided:
// LRU with TTL, TTL-only, and a persistent SQLite-backed cache.
package cache

// EmbeddingCache maps raw text to a previously computed embedding.
//
// Implementations must be safe for concurrent use.
type EmbeddingCache interface {
	// Get returns the cached embedding for text, or false on a miss.
	Get(text string) ([]float32, bool)

	// Set stores an embedding for text, evicting per policy if needed.
	Set(text string, embedding []float32)

	// Has reports whether text is cached without affecting recency.
	Has(text string) bool

	// Clear removes all entries.
	Clear()

	// Stats returns cache counters.
	Stats() Stats
}

// Stats describes cache state and hit/miss counters.
type Stats struct {
	// Size is the current number of live entries.
	Size int `json:"size"`

	// Hits counts Get calls answered from cache.
	Hits uint64 `json:"hits"`

	// Misses counts Get calls that found nothing (or an expired entry).
	Misses uint64 `json:"misses"`

	// MaxSize is the capacity bound, 0 for unbounded policies.
	MaxSize int `json:"max_size,omitempty"`
}
