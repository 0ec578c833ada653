package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vecstore/internal/config"
	internalhttp "github.com/fyrsmithlabs/vecstore/internal/http"
	"github.com/fyrsmithlabs/vecstore/internal/telemetry"
	"github.com/fyrsmithlabs/vecstore/pkg/batch"
	"github.com/fyrsmithlabs/vecstore/pkg/cache"
	"github.com/fyrsmithlabs/vecstore/pkg/docstore"
	"github.com/fyrsmithlabs/vecstore/pkg/embedding"
	"github.com/fyrsmithlabs/vecstore/pkg/persistence"
	"github.com/fyrsmithlabs/vecstore/pkg/similarity"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the vecstore HTTP server",
	Long: `Serve starts the document store daemon: it initializes the embedding
provider, cache, and persistence backend from configuration, loads any
persisted documents, and serves the HTTP API until SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		return runServe(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
}

// runServe initializes all dependencies and blocks until ctx is cancelled.
func runServe(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Observability.EnableTelemetry,
		Endpoint:       cfg.Observability.OTLPEndpoint,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: version,
		Insecure:       cfg.Observability.OTLPInsecure,
		SamplingRate:   cfg.Observability.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()
	if tel.IsDegraded() {
		logger.Warn("telemetry degraded, tracing disabled")
	}

	logger.Info("starting vecstore",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("persistence_backend", cfg.Persistence.Backend))

	provider, err := embedding.New(embedding.Config{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		CacheDir:   cfg.Embedding.CacheDir,
		MaxLength:  cfg.Embedding.MaxLength,
		Dimensions: cfg.Embedding.Dimensions,
	})
	if err != nil {
		return fmt.Errorf("initializing embedding provider: %w", err)
	}
	defer func() {
		_ = provider.Close()
	}()

	embCache, closeCache, err := buildCache(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing embedding cache: %w", err)
	}
	defer closeCache()

	persist, closePersist, err := buildPersistence(cfg, provider, logger)
	if err != nil {
		return fmt.Errorf("initializing persistence: %w", err)
	}
	defer closePersist()

	batcher := batch.NewFixed(cfg.Batch.Size, cfg.Batch.Delay)
	batcher.Dedup = cfg.Batch.Deduplicate

	store, err := docstore.New(provider, docstore.Options{
		Cache:       embCache,
		Batch:       batcher,
		Persistence: persist,
		Similarity:  similarityFunc(cfg.Store.Similarity),
		AutoSave:    cfg.Store.AutoSave,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("initializing document store: %w", err)
	}
	defer store.Destroy()

	if err := store.Load(ctx, docstore.LoadOptions{}); err != nil {
		return fmt.Errorf("loading persisted documents: %w", err)
	}
	if persist != nil {
		logger.Info("loaded persisted documents", zap.Int("count", store.Count()))
	}

	srv, err := internalhttp.NewServer(store, logger, &internalhttp.Config{
		Host: "0.0.0.0",
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// initLogger initializes the structured logger.
func initLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Observability.EnableTelemetry {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// buildCache constructs the configured embedding cache backend. The
// returned func releases backend resources; it is never nil.
func buildCache(cfg *config.Config, logger *zap.Logger) (cache.EmbeddingCache, func(), error) {
	noop := func() {}

	switch cfg.Cache.Backend {
	case "lru":
		return cache.NewLRU(cache.LRUConfig{
			MaxSize: cfg.Cache.MaxSize,
			TTL:     cfg.Cache.TTL,
		}), noop, nil
	case "ttl":
		return cache.NewTTL(cfg.Cache.TTL), noop, nil
	case "sqlite":
		c, err := cache.NewSQLite(cache.SQLiteConfig{
			Path: cfg.Cache.Path,
			TTL:  cfg.Cache.TTL,
		}, logger)
		if err != nil {
			return nil, noop, err
		}
		return c, func() { _ = c.Close() }, nil
	case "none":
		return nil, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown cache backend: %q", cfg.Cache.Backend)
	}
}

// buildPersistence constructs the configured persistence adapter. The
// returned func releases adapter resources; it is never nil.
func buildPersistence(cfg *config.Config, provider embedding.Provider, logger *zap.Logger) (docstore.PersistenceAdapter, func(), error) {
	noop := func() {}

	switch cfg.Persistence.Backend {
	case "chunkfile":
		a, err := persistence.NewChunkFile(persistence.ChunkFileConfig{
			Dir:       cfg.Persistence.Dir,
			ChunkSize: cfg.Persistence.ChunkSize,
		}, logger)
		if err != nil {
			return nil, noop, err
		}
		return a, noop, nil
	case "qdrant":
		a, err := persistence.NewQdrant(persistence.QdrantConfig{
			Host:           cfg.Persistence.Qdrant.Host,
			Port:           cfg.Persistence.Qdrant.Port,
			CollectionName: cfg.Persistence.Qdrant.Collection,
			VectorSize:     uint64(provider.ModelMetadata().Dimensions),
			UseTLS:         cfg.Persistence.Qdrant.UseTLS,
		}, logger)
		if err != nil {
			return nil, noop, err
		}
		return a, func() { _ = a.Close() }, nil
	case "none":
		return nil, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown persistence backend: %q", cfg.Persistence.Backend)
	}
}

func similarityFunc(name string) similarity.Func {
	switch name {
	case "dot":
		return similarity.Dot
	case "euclidean":
		return similarity.Euclidean
	default:
		return similarity.Cosine
	}
}
