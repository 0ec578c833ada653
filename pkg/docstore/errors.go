package docstore

import "errors"

// Sentinel errors for document store operations.
var (
	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrModelMismatch is returned when persisted or imported data was
	// written by a different embedding model than the live provider.
	ErrModelMismatch = errors.New("embedding model mismatch")

	// ErrSnapshotVersion is returned when an imported snapshot has a
	// schema version newer than this build understands.
	ErrSnapshotVersion = errors.New("unsupported snapshot version")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")
)
