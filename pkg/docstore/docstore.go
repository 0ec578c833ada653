package docstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vecstore/pkg/batch"
	"github.com/fyrsmithlabs/vecstore/pkg/cache"
	"github.com/fyrsmithlabs/vecstore/pkg/reranker"
	"github.com/fyrsmithlabs/vecstore/pkg/similarity"
)

// tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("vecstore.docstore")

// timeNow is a variable for testing purposes.
var timeNow = time.Now

// defaultBatchSize chunks provider calls when no batch controller is set.
const defaultBatchSize = 32

// Options holds the store's optional collaborators and settings.
//
// Every collaborator may be nil; the store functions correctly, just less
// optimized, with each of them absent.
type Options struct {
	// Cache maps raw text to previously computed embeddings.
	Cache cache.EmbeddingCache

	// Batch decides embedding request batch size and pacing.
	Batch batch.Controller

	// Persistence durably stores documents and metadata.
	Persistence PersistenceAdapter

	// Reranker re-scores top search candidates on request.
	Reranker reranker.Reranker

	// Similarity is the default scoring function.
	// Default: cosine.
	Similarity similarity.Func

	// AutoSave persists the full document set after each mutation when a
	// persistence adapter is configured.
	AutoSave bool

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Store is the document store engine.
//
// It exclusively owns the in-memory document map. All operations are safe
// for concurrent use; a race between two upserts of the same id resolves
// last-write-wins with no per-id locking.
type Store struct {
	mu   sync.RWMutex
	docs map[string]StoredDocument

	provider Provider
	cache    cache.EmbeddingCache
	batcher  batch.Controller
	persist  PersistenceAdapter
	rerank   reranker.Reranker
	simFn    similarity.Func
	autoSave bool
	logger   *zap.Logger
	events   *eventHub

	// loaded reflects whether a Load call has completed.
	loaded bool

	// createdAt seeds the metadata record for stores never loaded from
	// persisted state.
	createdAt time.Time
}

// New creates a Store around the required embedding provider.
func New(provider Provider, opts Options) (*Store, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: embedding provider is required", ErrInvalidConfig)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	simFn := opts.Similarity
	if simFn == nil {
		simFn = similarity.Cosine
	}

	s := &Store{
		docs:      make(map[string]StoredDocument),
		provider:  provider,
		cache:     opts.Cache,
		batcher:   opts.Batch,
		persist:   opts.Persistence,
		rerank:    opts.Reranker,
		simFn:     simFn,
		autoSave:  opts.AutoSave,
		logger:    logger,
		events:    newEventHub(),
		createdAt: timeNow(),
	}

	meta := provider.ModelMetadata()
	logger.Debug("document store created",
		zap.String("model_id", meta.ID()),
		zap.Int("dimension", meta.Dimensions),
		zap.Bool("auto_save", opts.AutoSave),
	)

	return s, nil
}

// OnDocumentAdded subscribes to insertions of new ids. The returned
// function unsubscribes and is safe to call multiple times.
func (s *Store) OnDocumentAdded(fn DocumentListener) func() {
	return s.events.subscribeAdded(fn)
}

// OnDocumentUpdated subscribes to mutations of existing ids.
func (s *Store) OnDocumentUpdated(fn DocumentListener) func() {
	return s.events.subscribeUpdated(fn)
}

// OnDocumentRemoved subscribes to removals.
func (s *Store) OnDocumentRemoved(fn RemovalListener) func() {
	return s.events.subscribeRemoved(fn)
}

// Upsert inserts or replaces a single document.
func (s *Store) Upsert(ctx context.Context, doc Document) error {
	return s.UpsertBatch(ctx, []Document{doc})
}

// UpsertBatch inserts or replaces documents in order.
//
// Uncached contents are embedded through the provider in sequential
// batches paced by the batch controller. Each document emits a
// DocumentAdded or DocumentUpdated event synchronously; with auto-save
// enabled the full document set is persisted after the batch.
// Empty input is a no-op that touches neither provider nor persistence.
func (s *Store) UpsertBatch(ctx context.Context, docs []Document) (err error) {
	ctx, span := tracer.Start(ctx, "Store.UpsertBatch")
	defer span.End()
	defer func() { recordOp("upsert", err) }()

	span.SetAttributes(attribute.Int("document_count", len(docs)))

	if len(docs) == 0 {
		span.SetStatus(codes.Ok, "noop")
		return nil
	}

	// Assign ids up front so events and persistence agree on them.
	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
		if ids[i] == "" {
			ids[i] = uuid.New().String()
			s.logger.Warn("auto-generated document id, caller should provide explicit ids",
				zap.String("generated_id", ids[i]),
			)
		}
	}

	embeddings, err := s.embedContents(ctx, docs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	now := timeNow()
	for i, doc := range docs {
		stored := StoredDocument{
			ID:        ids[i],
			Content:   doc.Content,
			Embedding: embeddings[i],
			Metadata:  doc.Metadata,
			CreatedAt: now,
			UpdatedAt: now,
		}

		s.mu.Lock()
		prev, existed := s.docs[stored.ID]
		if existed {
			stored.CreatedAt = prev.CreatedAt
		}
		s.docs[stored.ID] = stored
		count := len(s.docs)
		s.mu.Unlock()

		DocumentsTotal.Set(float64(count))

		// Listener panics intentionally propagate and abort the
		// remaining side effects of this call, auto-save included.
		if existed {
			s.events.emitUpdated(stored.clone())
		} else {
			s.events.emitAdded(stored.clone())
		}
	}

	if err = s.saveIfConfigured(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("upserted documents", zap.Int("count", len(docs)))
	return nil
}

// embedContents resolves one embedding per document, consulting the cache
// and batching provider calls for the rest.
func (s *Store) embedContents(ctx context.Context, docs []Document) ([][]float32, error) {
	embeddings := make([][]float32, len(docs))
	var pendingTexts []string
	pendingIdx := make([][]int, 0)   // positions sharing each pending text
	pendingPos := map[string]int{}   // text -> index into pendingTexts

	dedup := false
	if s.batcher != nil {
		dedup = s.batcher.Deduplicate()
	}

	for i, doc := range docs {
		if s.cache != nil {
			if emb, ok := s.cache.Get(doc.Content); ok {
				CacheLookups.WithLabelValues("hit").Inc()
				embeddings[i] = emb
				continue
			}
			CacheLookups.WithLabelValues("miss").Inc()
		}

		if dedup {
			if pos, ok := pendingPos[doc.Content]; ok {
				pendingIdx[pos] = append(pendingIdx[pos], i)
				continue
			}
			pendingPos[doc.Content] = len(pendingTexts)
		}
		pendingTexts = append(pendingTexts, doc.Content)
		pendingIdx = append(pendingIdx, []int{i})
	}

	if len(pendingTexts) == 0 {
		return embeddings, nil
	}

	vectors, err := s.embedBatched(ctx, pendingTexts)
	if err != nil {
		return nil, err
	}

	for p, vec := range vectors {
		if s.cache != nil {
			s.cache.Set(pendingTexts[p], vec)
		}
		for _, i := range pendingIdx[p] {
			embeddings[i] = vec
		}
	}

	return embeddings, nil
}

// embedBatched calls the provider in sequential chunks, sleeping between
// chunks but not before the first. Provider errors propagate unmodified.
func (s *Store) embedBatched(ctx context.Context, texts []string) ([][]float32, error) {
	size := defaultBatchSize
	var delay time.Duration
	if s.batcher != nil {
		if bs := s.batcher.Size(); bs >= 1 {
			size = bs
		}
		delay = s.batcher.Delay()
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		if start > 0 {
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, err
			}
		}

		end := start + size
		if end > len(texts) {
			end = len(texts)
		}

		chunk, err := s.provider.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(chunk) != end-start {
			return nil, fmt.Errorf("%w: provider returned %d embeddings for %d texts",
				ErrEmbeddingFailed, len(chunk), end-start)
		}

		EmbeddingsGenerated.Add(float64(len(chunk)))
		vectors = append(vectors, chunk...)
	}

	return vectors, nil
}

// Get returns a copy of the document with the given id.
func (s *Store) Get(id string) (StoredDocument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return StoredDocument{}, false
	}
	return doc.clone(), true
}

// GetMany resolves each id independently, returning a same-length,
// same-order slice with nil entries for missing ids.
func (s *Store) GetMany(ids []string) []*StoredDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*StoredDocument, len(ids))
	for i, id := range ids {
		if doc, ok := s.docs[id]; ok {
			c := doc.clone()
			out[i] = &c
		}
	}
	return out
}

// Has reports whether a document with the given id exists.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.docs[id]
	return ok
}

// All returns copies of every stored document. Iteration order is not
// specified.
func (s *Store) All() []StoredDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]StoredDocument, 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, doc.clone())
	}
	return out
}

// Count returns the number of stored documents.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Remove deletes matching ids from memory, emitting one DocumentRemoved
// per id actually removed. Missing ids are silently ignored. With
// persistence and auto-save configured, the adapter receives the full id
// set even when some ids were no-ops.
func (s *Store) Remove(ctx context.Context, ids ...string) (err error) {
	ctx, span := tracer.Start(ctx, "Store.Remove")
	defer span.End()
	defer func() { recordOp("remove", err) }()

	span.SetAttributes(attribute.Int("id_count", len(ids)))

	if len(ids) == 0 {
		span.SetStatus(codes.Ok, "noop")
		return nil
	}

	var removed []string
	s.mu.Lock()
	for _, id := range ids {
		if _, ok := s.docs[id]; ok {
			delete(s.docs, id)
			removed = append(removed, id)
		}
	}
	count := len(s.docs)
	s.mu.Unlock()

	DocumentsTotal.Set(float64(count))

	for _, id := range removed {
		s.events.emitRemoved(id)
	}

	if s.persist != nil && s.autoSave {
		if err = s.persist.Remove(ctx, ids); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("removing persisted documents: %w", err)
		}
		if err = s.persist.SaveMetadata(ctx, s.currentMetadata()); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("saving metadata: %w", err)
		}
	}

	span.SetAttributes(attribute.Int("removed", len(removed)))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Clear removes every document, emits one DocumentRemoved per id, and
// clears persisted state when a persistence adapter is configured.
func (s *Store) Clear(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "Store.Clear")
	defer span.End()
	defer func() { recordOp("clear", err) }()

	s.mu.Lock()
	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	s.docs = make(map[string]StoredDocument)
	s.mu.Unlock()

	DocumentsTotal.Set(0)

	for _, id := range ids {
		s.events.emitRemoved(id)
	}

	if s.persist != nil {
		if err = s.persist.Clear(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("clearing persisted documents: %w", err)
		}
	}

	span.SetAttributes(attribute.Int("removed", len(ids)))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// UpdateMetadata replaces only a document's metadata and refreshes
// UpdatedAt; content, embedding, and CreatedAt stay untouched. A missing
// id is a silent no-op with no event.
func (s *Store) UpdateMetadata(ctx context.Context, id string, metadata map[string]interface{}) (err error) {
	ctx, span := tracer.Start(ctx, "Store.UpdateMetadata")
	defer span.End()
	defer func() { recordOp("update_metadata", err) }()

	span.SetAttributes(attribute.String("id", id))

	s.mu.Lock()
	doc, ok := s.docs[id]
	if !ok {
		s.mu.Unlock()
		span.SetStatus(codes.Ok, "noop")
		return nil
	}
	doc.Metadata = metadata
	doc.UpdatedAt = timeNow()
	s.docs[id] = doc
	s.mu.Unlock()

	s.events.emitUpdated(doc.clone())

	if err = s.saveIfConfigured(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Destroy clears all documents and listener registrations. The store
// instance stays usable afterward; only its state is reset.
func (s *Store) Destroy() {
	s.mu.Lock()
	s.docs = make(map[string]StoredDocument)
	s.loaded = false
	s.mu.Unlock()

	DocumentsTotal.Set(0)
	s.events.clear()
	s.logger.Debug("document store destroyed")
}

// IsLoaded reports whether a Load call has completed.
func (s *Store) IsLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// ModelID returns the provider's model identity string.
func (s *Store) ModelID() string {
	return s.provider.ModelMetadata().ID()
}

// CacheStats returns embedding cache counters, or zero stats when no
// cache is configured.
func (s *Store) CacheStats() cache.Stats {
	if s.cache == nil {
		return cache.Stats{}
	}
	return s.cache.Stats()
}

// currentMetadata computes a fresh metadata record for the current set.
func (s *Store) currentMetadata() StoreMetadata {
	meta := s.provider.ModelMetadata()

	s.mu.RLock()
	count := len(s.docs)
	s.mu.RUnlock()

	return StoreMetadata{
		ModelID:       meta.ID(),
		Dimension:     meta.Dimensions,
		DocumentCount: count,
		CreatedAt:     s.createdAt,
		UpdatedAt:     timeNow(),
	}
}

// saveIfConfigured persists the full document set when persistence and
// auto-save are both configured. The write is awaited, not fire-and-forget.
func (s *Store) saveIfConfigured(ctx context.Context) error {
	if s.persist == nil || !s.autoSave {
		return nil
	}
	return s.Save(ctx)
}

// sleepCtx pauses for d, honoring context cancellation.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
