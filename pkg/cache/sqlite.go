package cache

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteConfig holds configuration for the persistent embedding cache.
type SQLiteConfig struct {
	// Path is the SQLite database file path.
	Path string

	// TTL is the time-to-live for entries. Entries older than TTL are
	// treated as misses and dropped.
	// Default: 24 hours
	TTL time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *SQLiteConfig) ApplyDefaults() {
	if c.TTL == 0 {
		c.TTL = 24 * time.Hour
	}
}

// Validate validates the configuration.
func (c SQLiteConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("sqlite cache: path required")
	}
	return nil
}

// SQLite is an embedding cache backed by a SQLite database for durability
// across process restarts. An in-memory mirror serves synchronous reads;
// writes to the backing store are fire-and-forget.
type SQLite struct {
	mu     sync.RWMutex
	mirror map[string]ttlEntry
	db     *sql.DB
	ttl    time.Duration
	logger *zap.Logger
	hits   uint64
	misses uint64

	// wg tracks in-flight background writes so Close can drain them.
	wg sync.WaitGroup
}

// NewSQLite opens (or creates) the backing database and loads live entries
// into the in-memory mirror.
func NewSQLite(cfg SQLiteConfig, logger *zap.Logger) (*SQLite, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	c := &SQLite{
		mirror: make(map[string]ttlEntry),
		db:     db,
		ttl:    cfg.TTL,
		logger: logger,
	}

	if err := c.init(); err != nil {
		db.Close()
		return nil, err
	}
	if err := c.warm(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("sqlite embedding cache opened",
		zap.String("path", cfg.Path),
		zap.Int("entries", len(c.mirror)),
	)

	return c, nil
}

func (c *SQLite) init() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := c.db.Exec(p); err != nil {
			return fmt.Errorf("pragma failed: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS embeddings (
			text TEXT PRIMARY KEY,
			vector BLOB NOT NULL,
			created_at INTEGER NOT NULL
		);
	`
	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("schema creation failed: %w", err)
	}
	return nil
}

// warm loads non-expired rows into the mirror and drops expired rows.
func (c *SQLite) warm() error {
	cutoff := time.Now().Add(-c.ttl).UnixNano()
	if _, err := c.db.Exec("DELETE FROM embeddings WHERE created_at < ?", cutoff); err != nil {
		return fmt.Errorf("pruning expired entries: %w", err)
	}

	rows, err := c.db.Query("SELECT text, vector, created_at FROM embeddings")
	if err != nil {
		return fmt.Errorf("loading cache entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var text string
		var blob []byte
		var createdAt int64
		if err := rows.Scan(&text, &blob, &createdAt); err != nil {
			return fmt.Errorf("scanning cache row: %w", err)
		}
		c.mirror[text] = ttlEntry{
			embedding: decodeVector(blob),
			expiresAt: time.Unix(0, createdAt).Add(c.ttl),
		}
	}
	return rows.Err()
}

// Get returns the cached embedding for text if it has not expired.
func (c *SQLite) Get(text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.mirror[text]
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.mirror, text)
		c.deleteAsync(text)
		c.misses++
		return nil, false
	}

	c.hits++
	return entry.embedding, true
}

// Set stores an embedding in the mirror and asynchronously persists it.
func (c *SQLite) Set(text string, embedding []float32) {
	now := time.Now()

	c.mu.Lock()
	c.mirror[text] = ttlEntry{embedding: embedding, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()

	blob := encodeVector(embedding)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_, err := c.db.Exec(
			"INSERT OR REPLACE INTO embeddings (text, vector, created_at) VALUES (?, ?, ?)",
			text, blob, now.UnixNano(),
		)
		if err != nil {
			c.logger.Warn("cache write failed", zap.Error(err))
		}
	}()
}

// Has reports whether text is cached and live.
func (c *SQLite) Has(text string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.mirror[text]
	return ok && !time.Now().After(entry.expiresAt)
}

// Clear removes all entries from the mirror and the backing store.
func (c *SQLite) Clear() {
	c.mu.Lock()
	c.mirror = make(map[string]ttlEntry)
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if _, err := c.db.Exec("DELETE FROM embeddings"); err != nil {
			c.logger.Warn("cache clear failed", zap.Error(err))
		}
	}()
}

// Stats returns current mirror size and hit/miss counters.
func (c *SQLite) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Size:   len(c.mirror),
		Hits:   c.hits,
		Misses: c.misses,
	}
}

// Close drains pending writes and closes the database.
func (c *SQLite) Close() error {
	c.wg.Wait()
	return c.db.Close()
}

func (c *SQLite) deleteAsync(text string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if _, err := c.db.Exec("DELETE FROM embeddings WHERE text = ?", text); err != nil {
			c.logger.Warn("cache delete failed", zap.Error(err))
		}
	}()
}

// encodeVector serializes a float32 slice as little-endian bytes.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector deserializes little-endian bytes into a float32 slice.
func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

var _ EmbeddingCache = (*SQLite)(nil)
