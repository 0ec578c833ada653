package docstore

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// LoadOptions tunes Load behavior.
type LoadOptions struct {
	// IgnoreModelMismatch loads persisted documents even when they were
	// embedded by a different model. Searches against such documents
	// produce meaningless scores until a Reindex.
	IgnoreModelMismatch bool
}

// ImportOptions tunes Import behavior.
type ImportOptions struct {
	// IgnoreModelMismatch accepts snapshots produced by a different
	// embedding model.
	IgnoreModelMismatch bool
}

// Load replaces the in-memory document set with the persisted one.
// No events are emitted; listeners observe live mutations, not restores.
//
// Without a persistence adapter, or with one that reports unavailable,
// Load marks the store loaded and leaves the in-memory set untouched.
// When persisted metadata names a different embedding model than the
// store's provider, Load fails with ErrModelMismatch unless
// opts.IgnoreModelMismatch is set.
func (s *Store) Load(ctx context.Context, opts LoadOptions) (err error) {
	ctx, span := tracer.Start(ctx, "Store.Load")
	defer span.End()
	defer func() { recordOp("load", err) }()

	if s.persist == nil {
		s.mu.Lock()
		s.loaded = true
		s.mu.Unlock()
		span.SetStatus(codes.Ok, "no persistence configured")
		return nil
	}
	if !s.persist.IsAvailable(ctx) {
		s.mu.Lock()
		s.loaded = true
		s.mu.Unlock()
		span.SetStatus(codes.Ok, "persistence unavailable")
		s.logger.Warn("persistence unavailable, store starts empty")
		return nil
	}

	meta, err := s.persist.LoadMetadata(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("loading metadata: %w", err)
	}

	if meta != nil && !opts.IgnoreModelMismatch {
		if err = s.checkModel(meta.ModelID, meta.Dimension); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	docs, err := s.persist.Load(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("loading documents: %w", err)
	}

	s.mu.Lock()
	s.docs = make(map[string]StoredDocument, len(docs))
	for _, doc := range docs {
		s.docs[doc.ID] = doc
	}
	if meta != nil {
		s.createdAt = meta.CreatedAt
	}
	s.loaded = true
	count := len(s.docs)
	s.mu.Unlock()

	DocumentsTotal.Set(float64(count))

	span.SetAttributes(attribute.Int("document_count", count))
	span.SetStatus(codes.Ok, "success")
	s.logger.Info("loaded documents from persistence", zap.Int("count", count))
	return nil
}

// Reload loads the persisted set again with model checking disabled.
func (s *Store) Reload(ctx context.Context) error {
	return s.Load(ctx, LoadOptions{IgnoreModelMismatch: true})
}

// Save persists the full document set and a fresh metadata record.
func (s *Store) Save(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "Store.Save")
	defer span.End()
	defer func() { recordOp("save", err) }()

	if s.persist == nil {
		err = fmt.Errorf("%w: no persistence adapter configured", ErrInvalidConfig)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	docs := s.All()

	if err = s.persist.Save(ctx, docs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("saving documents: %w", err)
	}
	if err = s.persist.SaveMetadata(ctx, s.currentMetadata()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("saving metadata: %w", err)
	}

	span.SetAttributes(attribute.Int("document_count", len(docs)))
	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("saved documents", zap.Int("count", len(docs)))
	return nil
}

// Reindex re-embeds every document's content with the current provider,
// bypassing the embedding cache. The cache is cleared first so stale
// vectors from a previous model cannot survive. No events are emitted;
// ids, contents, metadata, and timestamps other than UpdatedAt are kept.
func (s *Store) Reindex(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "Store.Reindex")
	defer span.End()
	defer func() { recordOp("reindex", err) }()

	if s.cache != nil {
		s.cache.Clear()
	}

	docs := s.All()
	if len(docs) == 0 {
		span.SetStatus(codes.Ok, "noop")
		return s.saveIfConfigured(ctx)
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}

	vectors, err := s.embedBatched(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	now := timeNow()
	s.mu.Lock()
	for i, doc := range docs {
		current, ok := s.docs[doc.ID]
		if !ok {
			// Removed concurrently, skip.
			continue
		}
		current.Embedding = vectors[i]
		current.UpdatedAt = now
		s.docs[doc.ID] = current
	}
	s.mu.Unlock()

	if s.cache != nil {
		for i, text := range texts {
			s.cache.Set(text, vectors[i])
		}
	}

	if err = s.saveIfConfigured(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetAttributes(attribute.Int("document_count", len(docs)))
	span.SetStatus(codes.Ok, "success")
	s.logger.Info("reindexed documents", zap.Int("count", len(docs)))
	return nil
}

// ExportSnapshot captures the full document set as a portable snapshot.
// Documents in the snapshot round-trip byte-equal through ImportSnapshot.
func (s *Store) ExportSnapshot() Export {
	meta := s.provider.ModelMetadata()
	return Export{
		Version:    ExportVersion,
		ExportedAt: timeNow(),
		ModelID:    meta.ID(),
		Dimension:  meta.Dimensions,
		Documents:  s.All(),
	}
}

// ImportSnapshot merges a snapshot's documents into the store without
// re-embedding. Embeddings and timestamps carry over unchanged; each
// document emits a DocumentAdded or DocumentUpdated event. Snapshots
// from unknown format versions fail with ErrSnapshotVersion; snapshots
// from a different model fail with ErrModelMismatch unless
// opts.IgnoreModelMismatch is set.
func (s *Store) ImportSnapshot(ctx context.Context, snapshot Export, opts ImportOptions) (err error) {
	ctx, span := tracer.Start(ctx, "Store.ImportSnapshot")
	defer span.End()
	defer func() { recordOp("import", err) }()

	span.SetAttributes(
		attribute.Int("snapshot_version", snapshot.Version),
		attribute.Int("document_count", len(snapshot.Documents)),
	)

	if snapshot.Version != ExportVersion {
		err = fmt.Errorf("%w: got version %d, want %d",
			ErrSnapshotVersion, snapshot.Version, ExportVersion)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if !opts.IgnoreModelMismatch {
		if err = s.checkModel(snapshot.ModelID, snapshot.Dimension); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	for _, doc := range snapshot.Documents {
		s.mu.Lock()
		_, existed := s.docs[doc.ID]
		s.docs[doc.ID] = doc.clone()
		count := len(s.docs)
		s.mu.Unlock()

		DocumentsTotal.Set(float64(count))

		if existed {
			s.events.emitUpdated(doc.clone())
		} else {
			s.events.emitAdded(doc.clone())
		}
	}

	if err = s.saveIfConfigured(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Info("imported snapshot", zap.Int("count", len(snapshot.Documents)))
	return nil
}

// checkModel compares a recorded model identity against the provider's.
func (s *Store) checkModel(modelID string, dimension int) error {
	meta := s.provider.ModelMetadata()
	if modelID != "" && modelID != meta.ID() {
		return fmt.Errorf("%w: persisted model %q, provider model %q",
			ErrModelMismatch, modelID, meta.ID())
	}
	if dimension != 0 && meta.Dimensions != 0 && dimension != meta.Dimensions {
		return fmt.Errorf("%w: persisted dimension %d, provider dimension %d",
			ErrModelMismatch, dimension, meta.Dimensions)
	}
	return nil
}
