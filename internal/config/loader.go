package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	envPrefix = "VECSTORE_"
)

// Load loads configuration with the following precedence (highest wins):
//
//  1. Environment variables (VECSTORE_SERVER_HTTP_PORT, ...)
//  2. YAML config file (configPath, skipped when empty or absent)
//  3. Hardcoded defaults
//
// Environment variables are prefixed with VECSTORE_ and map onto the
// YAML structure by splitting the section off the first underscore:
//
//	VECSTORE_SERVER_HTTP_PORT     -> server.http_port
//	VECSTORE_EMBEDDING_MODEL      -> embedding.model
//	VECSTORE_CACHE_MAX_SIZE       -> cache.max_size
//	VECSTORE_PERSISTENCE_QDRANT_HOST -> persistence.qdrant.host
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			f, err := os.Open(configPath)
			if err != nil {
				return nil, fmt.Errorf("opening config file: %w", err)
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil {
				return nil, fmt.Errorf("stat config file: %w", err)
			}
			if info.Size() > maxConfigFileSize {
				return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
			}

			content, err := io.ReadAll(f)
			if err != nil {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", transformEnvKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	// Boolean defaults are set before unmarshaling; koanf only overwrites
	// fields whose keys are present in the loaded map.
	cfg := Config{Batch: BatchConfig{Deduplicate: true}}
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// transformEnvKey maps a prefixed environment variable onto a config key.
// The section is split off the first underscore; field names keep their
// underscores. The persistence.qdrant subsection is special-cased since
// it nests one level deeper than everything else.
func transformEnvKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))

	if rest, ok := strings.CutPrefix(lower, "persistence_qdrant_"); ok {
		return "persistence.qdrant." + rest
	}

	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}
