// Package persistence provides durable storage adapters for the
// document store.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vecstore/pkg/docstore"
)

var (
	// ErrInvalidConfig indicates an invalid adapter configuration.
	ErrInvalidConfig = errors.New("persistence: invalid configuration")

	// ErrCorruptChunk indicates an unreadable chunk file.
	ErrCorruptChunk = errors.New("persistence: corrupt chunk file")
)

const (
	chunkPrefix  = "chunk-"
	chunkSuffix  = ".json"
	metadataFile = "metadata.json"
)

// ChunkFileConfig configures the chunked file adapter.
type ChunkFileConfig struct {
	// Dir is the directory holding chunk files and metadata.
	Dir string

	// ChunkSize is the number of documents per chunk file.
	// Default: 100.
	ChunkSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChunkFileConfig) ApplyDefaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 100
	}
}

// Validate validates the configuration.
func (c ChunkFileConfig) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("%w: dir required", ErrInvalidConfig)
	}
	return nil
}

// ChunkFile persists documents as numbered JSON chunk files in a
// directory, plus a metadata.json sidecar. Save merges by id with the
// documents already on disk and then rewrites every chunk, so the layout
// stays dense after removals.
type ChunkFile struct {
	mu     sync.Mutex
	dir    string
	size   int
	logger *zap.Logger
}

// NewChunkFile creates the adapter, creating the directory if needed.
func NewChunkFile(cfg ChunkFileConfig, logger *zap.Logger) (*ChunkFile, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage dir: %w", err)
	}

	return &ChunkFile{
		dir:    cfg.Dir,
		size:   cfg.ChunkSize,
		logger: logger,
	}, nil
}

// Load reads every chunk file in order and returns all documents.
func (a *ChunkFile) Load(_ context.Context) ([]docstore.StoredDocument, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loadLocked()
}

// LoadMetadata reads the metadata sidecar. A missing file returns
// (nil, nil); persistence that has never been written is not an error.
func (a *ChunkFile) LoadMetadata(_ context.Context) (*docstore.StoreMetadata, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(a.dir, metadataFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}

	var meta docstore.StoreMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	return &meta, nil
}

// Save merges the documents into the on-disk set by id and rewrites all
// chunk files.
func (a *ChunkFile) Save(_ context.Context, docs []docstore.StoredDocument) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	existing, err := a.loadLocked()
	if err != nil {
		return err
	}

	merged := make(map[string]docstore.StoredDocument, len(existing)+len(docs))
	for _, doc := range existing {
		merged[doc.ID] = doc
	}
	for _, doc := range docs {
		merged[doc.ID] = doc
	}

	return a.rewriteLocked(merged)
}

// SaveMetadata writes the metadata sidecar atomically.
func (a *ChunkFile) SaveMetadata(_ context.Context, meta docstore.StoreMetadata) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	return writeFileAtomic(filepath.Join(a.dir, metadataFile), data)
}

// Remove deletes the given ids from disk and rewrites the chunks.
// Unknown ids are ignored.
func (a *ChunkFile) Remove(_ context.Context, ids []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	existing, err := a.loadLocked()
	if err != nil {
		return err
	}

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	remaining := make(map[string]docstore.StoredDocument, len(existing))
	for _, doc := range existing {
		if _, gone := drop[doc.ID]; !gone {
			remaining[doc.ID] = doc
		}
	}

	return a.rewriteLocked(remaining)
}

// Clear deletes all chunk files and the metadata sidecar.
func (a *ChunkFile) Clear(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	names, err := a.chunkNamesLocked()
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := os.Remove(filepath.Join(a.dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing chunk %s: %w", name, err)
		}
	}
	if err := os.Remove(filepath.Join(a.dir, metadataFile)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing metadata: %w", err)
	}
	return nil
}

// IsAvailable reports whether the storage directory is accessible.
func (a *ChunkFile) IsAvailable(_ context.Context) bool {
	info, err := os.Stat(a.dir)
	return err == nil && info.IsDir()
}

func (a *ChunkFile) loadLocked() ([]docstore.StoredDocument, error) {
	names, err := a.chunkNamesLocked()
	if err != nil {
		return nil, err
	}

	var docs []docstore.StoredDocument
	for _, name := range names {
		path := filepath.Join(a.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading chunk %s: %w", name, err)
		}

		var chunk []docstore.StoredDocument
		if err := json.Unmarshal(data, &chunk); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptChunk, name, err)
		}
		docs = append(docs, chunk...)
	}
	return docs, nil
}

// rewriteLocked writes the full set as dense chunks and removes any
// leftover chunk files from a previous, larger layout.
func (a *ChunkFile) rewriteLocked(docs map[string]docstore.StoredDocument) error {
	ordered := make([]docstore.StoredDocument, 0, len(docs))
	for _, doc := range docs {
		ordered = append(ordered, doc)
	}
	// Stable chunk contents across rewrites.
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	var written int
	for start := 0; start < len(ordered); start += a.size {
		end := start + a.size
		if end > len(ordered) {
			end = len(ordered)
		}

		data, err := json.Marshal(ordered[start:end])
		if err != nil {
			return fmt.Errorf("encoding chunk: %w", err)
		}
		if err := writeFileAtomic(filepath.Join(a.dir, chunkName(written)), data); err != nil {
			return err
		}
		written++
	}

	// Drop stale chunks beyond the new count.
	names, err := a.chunkNamesLocked()
	if err != nil {
		return err
	}
	for _, name := range names {
		if chunkIndex(name) >= written {
			if err := os.Remove(filepath.Join(a.dir, name)); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("removing stale chunk %s: %w", name, err)
			}
		}
	}

	a.logger.Debug("rewrote chunk files",
		zap.Int("documents", len(ordered)),
		zap.Int("chunks", written),
	)
	return nil
}

func (a *ChunkFile) chunkNamesLocked() ([]string, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, fmt.Errorf("listing storage dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, chunkPrefix) && strings.HasSuffix(name, chunkSuffix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func chunkName(index int) string {
	return fmt.Sprintf("%s%06d%s", chunkPrefix, index, chunkSuffix)
}

func chunkIndex(name string) int {
	var index int
	_, err := fmt.Sscanf(name, chunkPrefix+"%06d"+chunkSuffix, &index)
	if err != nil {
		return -1
	}
	return index
}

// writeFileAtomic writes via a temp file and rename so a crash mid-write
// never leaves a truncated chunk behind.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return nil
}
