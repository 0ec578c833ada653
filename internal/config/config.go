// Package config provides configuration loading for vecstore.
//
// Configuration is loaded from a YAML file and overridden by environment
// variables, with sensible defaults for everything.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete vecstore configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Observability ObservabilityConfig `koanf:"observability"`
	Embedding     EmbeddingConfig     `koanf:"embedding"`
	Cache         CacheConfig         `koanf:"cache"`
	Batch         BatchConfig         `koanf:"batch"`
	Store         StoreConfig         `koanf:"store"`
	Persistence   PersistenceConfig   `koanf:"persistence"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	// OTLPEndpoint is the OTLP gRPC collector endpoint for trace export.
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	// OTLPInsecure disables TLS on the collector connection.
	OTLPInsecure bool `koanf:"otlp_insecure"`
	// SamplingRate is the trace sampling ratio, 0.0 to 1.0.
	SamplingRate float64 `koanf:"sampling_rate"`
}

// EmbeddingConfig holds embedding provider configuration.
type EmbeddingConfig struct {
	// Provider is "fastembed" (default) or "hash".
	Provider string `koanf:"provider"`
	// Model is the embedding model name.
	Model string `koanf:"model"`
	// CacheDir caches downloaded model files, fastembed only.
	CacheDir string `koanf:"cache_dir"`
	// MaxLength is the maximum input sequence length, fastembed only.
	MaxLength int `koanf:"max_length"`
	// Dimensions sets the vector width for the hash provider.
	Dimensions int `koanf:"dimensions"`
}

// CacheConfig holds embedding cache configuration.
type CacheConfig struct {
	// Backend is "lru" (default), "ttl", "sqlite", or "none".
	Backend string `koanf:"backend"`
	// MaxSize bounds the LRU backend.
	MaxSize int `koanf:"max_size"`
	// TTL expires cached embeddings.
	TTL time.Duration `koanf:"ttl"`
	// Path is the database file for the sqlite backend.
	Path string `koanf:"path"`
}

// BatchConfig holds embedding batch controller configuration.
type BatchConfig struct {
	Size        int           `koanf:"size"`
	Delay       time.Duration `koanf:"delay"`
	Deduplicate bool          `koanf:"deduplicate"`
}

// StoreConfig holds document store behavior configuration.
type StoreConfig struct {
	// AutoSave persists the store after each mutation.
	AutoSave bool `koanf:"auto_save"`
	// Similarity is "cosine" (default), "dot", or "euclidean".
	Similarity string `koanf:"similarity"`
}

// PersistenceConfig holds persistence adapter configuration.
type PersistenceConfig struct {
	// Backend is "none" (default), "chunkfile", or "qdrant".
	Backend string `koanf:"backend"`
	// Dir holds chunk files for the chunkfile backend.
	Dir string `koanf:"dir"`
	// ChunkSize is documents per chunk file.
	ChunkSize int `koanf:"chunk_size"`

	Qdrant QdrantConfig `koanf:"qdrant"`
}

// QdrantConfig holds Qdrant connection configuration.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	Collection string `koanf:"collection"`
	UseTLS     bool   `koanf:"use_tls"`
}

var (
	validCacheBackends       = map[string]bool{"lru": true, "ttl": true, "sqlite": true, "none": true}
	validPersistenceBackends = map[string]bool{"chunkfile": true, "qdrant": true, "none": true}
	validSimilarities        = map[string]bool{"cosine": true, "dot": true, "euclidean": true}
)

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	if c.Observability.SamplingRate < 0 || c.Observability.SamplingRate > 1 {
		return fmt.Errorf("sampling rate must be between 0 and 1: %f", c.Observability.SamplingRate)
	}
	if !validCacheBackends[c.Cache.Backend] {
		return fmt.Errorf("invalid cache backend: %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "sqlite" && c.Cache.Path == "" {
		return errors.New("cache path required for sqlite backend")
	}
	if !validPersistenceBackends[c.Persistence.Backend] {
		return fmt.Errorf("invalid persistence backend: %q", c.Persistence.Backend)
	}
	if c.Persistence.Backend == "chunkfile" && c.Persistence.Dir == "" {
		return errors.New("persistence dir required for chunkfile backend")
	}
	if !validSimilarities[c.Store.Similarity] {
		return fmt.Errorf("invalid similarity: %q", c.Store.Similarity)
	}
	if c.Batch.Size < 0 {
		return fmt.Errorf("batch size cannot be negative: %d", c.Batch.Size)
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8480
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "vecstore"
	}
	if cfg.Observability.OTLPEndpoint == "" {
		cfg.Observability.OTLPEndpoint = "localhost:4317"
	}
	if cfg.Observability.SamplingRate == 0 {
		cfg.Observability.SamplingRate = 1.0
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "fastembed"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "BAAI/bge-small-en-v1.5"
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "lru"
	}
	if cfg.Cache.MaxSize == 0 {
		cfg.Cache.MaxSize = 1000
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 5 * time.Minute
	}

	if cfg.Batch.Size == 0 {
		cfg.Batch.Size = 32
	}

	if cfg.Store.Similarity == "" {
		cfg.Store.Similarity = "cosine"
	}

	if cfg.Persistence.Backend == "" {
		cfg.Persistence.Backend = "none"
	}
	if cfg.Persistence.ChunkSize == 0 {
		cfg.Persistence.ChunkSize = 100
	}
	if cfg.Persistence.Qdrant.Host == "" {
		cfg.Persistence.Qdrant.Host = "localhost"
	}
	if cfg.Persistence.Qdrant.Port == 0 {
		cfg.Persistence.Qdrant.Port = 6334
	}
	if cfg.Persistence.Qdrant.Collection == "" {
		cfg.Persistence.Qdrant.Collection = "vecstore_documents"
	}
}
