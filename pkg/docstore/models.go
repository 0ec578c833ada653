// Package docstore implements a document store specialized for retrieval
// over vector embeddings.
//
// The store owns an authoritative in-memory document map keyed by id. It
// embeds incoming text through a required Provider, optionally consults an
// embedding cache, paces provider calls through a batch controller, and
// answers similarity and hybrid (vector + keyword) searches with an
// exhaustive scan over the document set. Persistence, reranking, and
// caching are optional collaborators; the store behaves correctly with
// every one of them absent.
package docstore

import (
	"context"
	"time"
)

// Document is caller-supplied input to Upsert. ID is the stable identity key.
type Document struct {
	// ID is the unique identifier for the document. If empty, an id is
	// generated and the caller should record it from events.
	ID string `json:"id"`

	// Content is the text content of the document.
	Content string `json:"content"`

	// Metadata contains additional key-value pairs for filtering.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// StoredDocument is the authoritative internal representation.
type StoredDocument struct {
	ID        string                 `json:"id"`
	Content   string                 `json:"content"`
	Embedding []float32              `json:"embedding"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is set at first insertion and never changes on update.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is refreshed on every mutation and is monotonically
	// non-decreasing for a given id.
	UpdatedAt time.Time `json:"updated_at"`
}

// clone returns a copy whose embedding and metadata do not alias the
// store-owned document.
func (d StoredDocument) clone() StoredDocument {
	out := d
	if d.Embedding != nil {
		out.Embedding = make([]float32, len(d.Embedding))
		copy(out.Embedding, d.Embedding)
	}
	if d.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(d.Metadata))
		for k, v := range d.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// StoreMetadata is persisted alongside documents and used to detect stale
// data written by a different embedding model.
type StoreMetadata struct {
	// ModelID is "<provider>:<model>" of the embedding provider.
	ModelID string `json:"model_id"`

	// Dimension is the embedding dimensionality.
	Dimension int `json:"dimension"`

	// DocumentCount is the number of persisted documents.
	DocumentCount int `json:"document_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScoredResult is produced by search, never stored.
type ScoredResult struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Score   float32 `json:"score"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Embedding is attached only when the search requested it.
	Embedding []float32 `json:"embedding,omitempty"`
}

// ExportVersion is the current snapshot schema version.
const ExportVersion = 1

// Export is a serialized, versioned snapshot of the full document set.
// Embeddings serialize as plain numeric arrays for portability.
type Export struct {
	Version    int              `json:"version"`
	ExportedAt time.Time        `json:"exported_at"`
	ModelID    string           `json:"model_id"`
	Dimension  int              `json:"dimension"`
	Documents  []StoredDocument `json:"documents"`
}

// ModelMetadata identifies an embedding provider's model.
type ModelMetadata struct {
	// Provider is the provider name, e.g. "fastembed".
	Provider string `json:"provider"`

	// Model is the model name, e.g. "BAAI/bge-small-en-v1.5".
	Model string `json:"model"`

	// Dimensions is the embedding dimensionality.
	Dimensions int `json:"dimensions"`
}

// ID returns the "<provider>:<model>" compatibility key.
func (m ModelMetadata) ID() string {
	return m.Provider + ":" + m.Model
}

// Provider converts text to embedding vectors and reports model identity.
//
// Embed is order-preserving: one vector per input text, empty input yields
// empty output. Implementations can use local ONNX models or remote APIs.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	ModelMetadata() ModelMetadata
}

// PersistenceAdapter durably stores documents and store metadata.
//
// The adapter owns durable bytes; the store only reads and writes through
// this contract. An adapter reporting IsAvailable false is not an error:
// the store proceeds as unloaded/empty.
type PersistenceAdapter interface {
	// Load returns all persisted documents.
	Load(ctx context.Context) ([]StoredDocument, error)

	// LoadMetadata returns the persisted store metadata, or nil if none
	// has been written yet.
	LoadMetadata(ctx context.Context) (*StoreMetadata, error)

	// Save merges the given documents into the persisted set by id.
	Save(ctx context.Context, docs []StoredDocument) error

	// SaveMetadata writes the store metadata record.
	SaveMetadata(ctx context.Context, meta StoreMetadata) error

	// Remove deletes the given ids from the persisted set. Missing ids
	// are ignored.
	Remove(ctx context.Context, ids []string) error

	// Clear deletes all persisted documents and metadata.
	Clear(ctx context.Context) error

	// IsAvailable reports whether the backing store is reachable.
	IsAvailable(ctx context.Context) bool
}
