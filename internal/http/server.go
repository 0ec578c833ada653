// Package http provides the HTTP API for vecstore.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vecstore/pkg/cache"
	"github.com/fyrsmithlabs/vecstore/pkg/docstore"
	"github.com/fyrsmithlabs/vecstore/pkg/keyword"
)

// Server provides HTTP endpoints for the document store.
type Server struct {
	echo   *echo.Echo
	store  *docstore.Store
	logger *zap.Logger
	config *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server around the store.
func NewServer(store *docstore.Store, logger *zap.Logger, cfg *Config) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8480,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:   e,
		store:  store,
		logger: logger,
		config: cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/documents", s.handleUpsert)
	v1.GET("/documents/:id", s.handleGet)
	v1.DELETE("/documents/:id", s.handleDelete)
	v1.POST("/search", s.handleSearch)
	v1.POST("/hybrid-search", s.handleHybridSearch)
	v1.GET("/export", s.handleExport)
	v1.POST("/import", s.handleImport)
	v1.POST("/save", s.handleSave)
	v1.POST("/reindex", s.handleReindex)
	v1.GET("/stats", s.handleStats)
}

// DocumentRequest is one document in an upsert request.
type DocumentRequest struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// UpsertRequest is the request body for POST /api/v1/documents.
type UpsertRequest struct {
	Documents []DocumentRequest `json:"documents"`
}

// UpsertResponse is the response body for POST /api/v1/documents.
type UpsertResponse struct {
	Count int `json:"count"`
}

// SearchRequest is the request body for the search endpoints.
type SearchRequest struct {
	Query             string                 `json:"query"`
	K                 int                    `json:"k"`
	Threshold         *float32               `json:"threshold,omitempty"`
	Filter            map[string]interface{} `json:"filter,omitempty"`
	IncludeEmbeddings bool                   `json:"include_embeddings,omitempty"`
	Rerank            bool                   `json:"rerank,omitempty"`

	// Hybrid search only.
	VectorWeight  float32 `json:"vector_weight,omitempty"`
	KeywordWeight float32 `json:"keyword_weight,omitempty"`
	KeywordMode   string  `json:"keyword_mode,omitempty"`
}

// SearchResponse is the response body for the search endpoints.
type SearchResponse struct {
	Results []docstore.ScoredResult `json:"results"`
}

// ImportRequest is the request body for POST /api/v1/import.
type ImportRequest struct {
	Snapshot            docstore.Export `json:"snapshot"`
	IgnoreModelMismatch bool            `json:"ignore_model_mismatch,omitempty"`
}

// StatsResponse is the response body for GET /api/v1/stats.
type StatsResponse struct {
	DocumentCount int         `json:"document_count"`
	ModelID       string      `json:"model_id"`
	Loaded        bool        `json:"loaded"`
	Cache         cache.Stats `json:"cache"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleUpsert(c echo.Context) error {
	var req UpsertRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid upsert request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Documents) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "documents field is required")
	}

	docs := make([]docstore.Document, len(req.Documents))
	for i, d := range req.Documents {
		if d.Content == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "document content is required")
		}
		docs[i] = docstore.Document{ID: d.ID, Content: d.Content, Metadata: d.Metadata}
	}

	if err := s.store.UpsertBatch(c.Request().Context(), docs); err != nil {
		return s.storeError(err)
	}
	return c.JSON(http.StatusOK, UpsertResponse{Count: len(docs)})
}

func (s *Server) handleGet(c echo.Context) error {
	doc, ok := s.store.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	return c.JSON(http.StatusOK, doc)
}

func (s *Server) handleDelete(c echo.Context) error {
	id := c.Param("id")
	if !s.store.Has(id) {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	if err := s.store.Remove(c.Request().Context(), id); err != nil {
		return s.storeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleSearch(c echo.Context) error {
	req, httpErr := s.bindSearch(c)
	if httpErr != nil {
		return httpErr
	}

	results, err := s.store.Search(c.Request().Context(), req.Query, req.K, docstore.SearchOptions{
		Threshold:         req.Threshold,
		Filter:            req.Filter,
		IncludeEmbeddings: req.IncludeEmbeddings,
		Rerank:            req.Rerank,
	})
	if err != nil {
		return s.storeError(err)
	}
	return c.JSON(http.StatusOK, SearchResponse{Results: results})
}

func (s *Server) handleHybridSearch(c echo.Context) error {
	req, httpErr := s.bindSearch(c)
	if httpErr != nil {
		return httpErr
	}

	mode, err := parseKeywordMode(req.KeywordMode)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	results, err := s.store.HybridSearch(c.Request().Context(), req.Query, req.K, docstore.HybridOptions{
		SearchOptions: docstore.SearchOptions{
			Threshold:         req.Threshold,
			Filter:            req.Filter,
			IncludeEmbeddings: req.IncludeEmbeddings,
			Rerank:            req.Rerank,
		},
		VectorWeight:  req.VectorWeight,
		KeywordWeight: req.KeywordWeight,
		KeywordMode:   mode,
	})
	if err != nil {
		return s.storeError(err)
	}
	return c.JSON(http.StatusOK, SearchResponse{Results: results})
}

func (s *Server) bindSearch(c echo.Context) (*SearchRequest, *echo.HTTPError) {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid search request", zap.Error(err))
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}
	if req.K == 0 {
		req.K = -1 // store applies its default limit
	}
	return &req, nil
}

func (s *Server) handleExport(c echo.Context) error {
	return c.JSON(http.StatusOK, s.store.ExportSnapshot())
}

func (s *Server) handleImport(c echo.Context) error {
	var req ImportRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid import request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err := s.store.ImportSnapshot(c.Request().Context(), req.Snapshot, docstore.ImportOptions{
		IgnoreModelMismatch: req.IgnoreModelMismatch,
	})
	if err != nil {
		return s.storeError(err)
	}
	return c.JSON(http.StatusOK, UpsertResponse{Count: len(req.Snapshot.Documents)})
}

func (s *Server) handleSave(c echo.Context) error {
	if err := s.store.Save(c.Request().Context()); err != nil {
		return s.storeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleReindex(c echo.Context) error {
	if err := s.store.Reindex(c.Request().Context()); err != nil {
		return s.storeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, StatsResponse{
		DocumentCount: s.store.Count(),
		ModelID:       s.store.ModelID(),
		Loaded:        s.store.IsLoaded(),
		Cache:         s.store.CacheStats(),
	})
}

// storeError maps store errors onto HTTP status codes.
func (s *Server) storeError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, docstore.ErrModelMismatch):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, docstore.ErrSnapshotVersion), errors.Is(err, docstore.ErrInvalidConfig):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("store operation failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func parseKeywordMode(mode string) (keyword.Mode, error) {
	switch mode {
	case "", "exact":
		return keyword.ModeExact, nil
	case "prefix":
		return keyword.ModePrefix, nil
	case "fuzzy":
		return keyword.ModeFuzzy, nil
	default:
		return keyword.ModeExact, fmt.Errorf("unknown keyword mode %q", mode)
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
