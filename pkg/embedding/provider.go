// Package embedding provides embedding providers for the document store.
package embedding

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/vecstore/pkg/docstore"
)

var (
	// ErrInvalidConfig indicates an invalid provider configuration.
	ErrInvalidConfig = errors.New("embedding: invalid configuration")

	// ErrEmbeddingFailed indicates the underlying model failed.
	ErrEmbeddingFailed = errors.New("embedding: generation failed")
)

// Provider extends the store's embedding contract with resource cleanup.
type Provider interface {
	docstore.Provider
	Close() error
}

// Config selects and configures an embedding provider.
type Config struct {
	// Provider is the provider type: "fastembed" (default) or "hash".
	Provider string

	// Model is the embedding model name.
	Model string

	// CacheDir is the model cache directory, fastembed only.
	CacheDir string

	// MaxLength is the maximum input sequence length, fastembed only.
	MaxLength int

	// Dimensions sets the vector width for the hash provider.
	Dimensions int
}

// New creates an embedding provider from the configuration.
//
// The "hash" provider embeds deterministically with no model downloads;
// it exists for tests, demos, and offline development.
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "fastembed", "":
		return NewFastEmbed(FastEmbedConfig{
			Model:     cfg.Model,
			CacheDir:  cfg.CacheDir,
			MaxLength: cfg.MaxLength,
		})
	case "hash":
		return NewHash(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
