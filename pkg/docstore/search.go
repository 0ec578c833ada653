package docstore

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vecstore/pkg/keyword"
	"github.com/fyrsmithlabs/vecstore/pkg/reranker"
	"github.com/fyrsmithlabs/vecstore/pkg/similarity"
)

// DefaultLimit is the result count used when the caller passes a negative k.
const DefaultLimit = 10

// SearchOptions tunes a single search call.
type SearchOptions struct {
	// Threshold drops results scoring below it. Nil applies the default
	// cutoff of 0; point at a negative value to admit negative cosine
	// scores.
	Threshold *float32

	// Filter keeps only documents whose metadata deep-equals every
	// supplied key. An empty or nil map matches everything.
	Filter map[string]interface{}

	// Predicate is an arbitrary additional document filter, combined
	// with Filter by AND.
	Predicate func(doc StoredDocument) bool

	// Similarity overrides the store's scoring function for this call.
	Similarity similarity.Func

	// IncludeEmbeddings copies each result's embedding into the output.
	IncludeEmbeddings bool

	// Rerank re-scores the top candidates with the store's reranker.
	Rerank bool

	// RerankTopK bounds how many candidates reach the reranker.
	// Zero means all k results.
	RerankTopK int
}

// HybridOptions tunes a hybrid vector-plus-keyword search.
type HybridOptions struct {
	SearchOptions

	// VectorWeight and KeywordWeight blend the two scores. When both
	// are zero the defaults 0.7 and 0.3 apply; otherwise the values are
	// used exactly as given.
	VectorWeight  float32
	KeywordWeight float32

	// KeywordMode selects the term matching strategy.
	KeywordMode keyword.Mode
}

// Search embeds the query and returns up to k documents ordered by
// descending similarity. Ties order arbitrarily. k == 0 returns an empty
// slice without calling the provider; negative k applies DefaultLimit.
func (s *Store) Search(ctx context.Context, query string, k int, opts SearchOptions) (results []ScoredResult, err error) {
	ctx, span := tracer.Start(ctx, "Store.Search")
	defer span.End()
	defer func() { recordOp("search", err) }()

	timer := prometheus.NewTimer(SearchDuration)
	defer timer.ObserveDuration()

	span.SetAttributes(
		attribute.Int("k", k),
		attribute.Int("query_length", len(query)),
	)

	if k == 0 {
		span.SetStatus(codes.Ok, "noop")
		return []ScoredResult{}, nil
	}
	if k < 0 {
		k = DefaultLimit
	}

	queryVec, err := s.embedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(queryVec) == 0 {
		span.SetStatus(codes.Ok, "empty query embedding")
		return []ScoredResult{}, nil
	}

	simFn := opts.Similarity
	if simFn == nil {
		simFn = s.simFn
	}

	threshold := resolveThreshold(opts.Threshold)
	candidates := s.snapshotFiltered(opts)

	scored := make([]ScoredResult, 0, len(candidates))
	for _, doc := range candidates {
		score, serr := simFn(queryVec, doc.Embedding)
		if serr != nil {
			err = fmt.Errorf("scoring document %q: %w", doc.ID, serr)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if score < threshold {
			continue
		}
		scored = append(scored, s.toResult(doc, score, opts.IncludeEmbeddings))
	}

	results, err = s.finalize(ctx, query, scored, k, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("result_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("search completed",
		zap.Int("k", k),
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(results)),
	)
	return results, nil
}

// HybridSearch blends vector similarity with keyword term matching.
// A document only needs to score on one of the two signals to appear;
// the blended score is vectorWeight*sim + keywordWeight*keyword.
func (s *Store) HybridSearch(ctx context.Context, query string, k int, opts HybridOptions) (results []ScoredResult, err error) {
	ctx, span := tracer.Start(ctx, "Store.HybridSearch")
	defer span.End()
	defer func() { recordOp("hybrid_search", err) }()

	timer := prometheus.NewTimer(SearchDuration)
	defer timer.ObserveDuration()

	span.SetAttributes(
		attribute.Int("k", k),
		attribute.Int("query_length", len(query)),
	)

	if k == 0 {
		span.SetStatus(codes.Ok, "noop")
		return []ScoredResult{}, nil
	}
	if k < 0 {
		k = DefaultLimit
	}

	vw, kw := opts.VectorWeight, opts.KeywordWeight
	if vw == 0 && kw == 0 {
		vw, kw = 0.7, 0.3
	}

	queryVec, err := s.embedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	simFn := opts.Similarity
	if simFn == nil {
		simFn = s.simFn
	}

	threshold := resolveThreshold(opts.Threshold)
	candidates := s.snapshotFiltered(opts.SearchOptions)

	scored := make([]ScoredResult, 0, len(candidates))
	for _, doc := range candidates {
		var vecScore float32
		if len(queryVec) > 0 {
			vecScore, err = simFn(queryVec, doc.Embedding)
			if err != nil {
				err = fmt.Errorf("scoring document %q: %w", doc.ID, err)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, err
			}
		}

		kwScore := keyword.Score(query, doc.Content, opts.KeywordMode)
		blended := vw*vecScore + kw*kwScore

		if blended < threshold {
			continue
		}
		scored = append(scored, s.toResult(doc, blended, opts.IncludeEmbeddings))
	}

	results, err = s.finalize(ctx, query, scored, k, opts.SearchOptions)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("result_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// embedQuery runs the query text through the provider. Query embeddings
// are deliberately not cached; queries rarely repeat byte-for-byte.
func (s *Store) embedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := s.provider.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: provider returned %d embeddings for 1 query",
			ErrEmbeddingFailed, len(vectors))
	}
	EmbeddingsGenerated.Inc()
	return vectors[0], nil
}

// snapshotFiltered copies every document passing the metadata filter and
// predicate out of the map while holding the read lock.
func (s *Store) snapshotFiltered(opts SearchOptions) []StoredDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]StoredDocument, 0, len(s.docs))
	for _, doc := range s.docs {
		if !matchesFilter(doc.Metadata, opts.Filter) {
			continue
		}
		if opts.Predicate != nil && !opts.Predicate(doc) {
			continue
		}
		out = append(out, doc.clone())
	}
	return out
}

func resolveThreshold(t *float32) float32 {
	if t == nil {
		return 0
	}
	return *t
}

// matchesFilter reports whether metadata deep-equals every filter entry.
func matchesFilter(metadata, filter map[string]interface{}) bool {
	for key, want := range filter {
		got, ok := metadata[key]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

func (s *Store) toResult(doc StoredDocument, score float32, includeEmbedding bool) ScoredResult {
	r := ScoredResult{
		ID:       doc.ID,
		Content:  doc.Content,
		Score:    score,
		Metadata: doc.Metadata,
	}
	if includeEmbedding {
		r.Embedding = doc.Embedding
	}
	return r
}

// topK sorts by descending score and truncates to k.
func topK(results []ScoredResult, k int) []ScoredResult {
	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// finalize ranks the scored candidates and, when requested, reranks the
// top RerankTopK of them before truncating to k. The reranker may see
// more candidates than k so it can promote documents from beyond the
// final cut.
func (s *Store) finalize(ctx context.Context, query string, scored []ScoredResult, k int, opts SearchOptions) ([]ScoredResult, error) {
	if !opts.Rerank || s.rerank == nil {
		return topK(scored, k), nil
	}

	pool := k
	if opts.RerankTopK > pool {
		pool = opts.RerankTopK
	}

	results, err := s.applyReranker(ctx, query, topK(scored, pool), opts.RerankTopK)
	if err != nil {
		return nil, err
	}
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// applyReranker feeds the top candidates through the configured reranker
// and returns them in reranked order with reranker scores substituted.
func (s *Store) applyReranker(ctx context.Context, query string, results []ScoredResult, topK int) ([]ScoredResult, error) {
	if len(results) == 0 {
		return results, nil
	}
	if topK <= 0 || topK > len(results) {
		topK = len(results)
	}

	candidates := make([]reranker.Candidate, len(results))
	for i, r := range results {
		candidates[i] = reranker.Candidate{
			ID:      r.ID,
			Content: r.Content,
			Score:   r.Score,
		}
	}

	ranked, err := s.rerank.Rerank(ctx, query, candidates, topK)
	if err != nil {
		return nil, fmt.Errorf("reranking results: %w", err)
	}

	out := make([]ScoredResult, 0, len(ranked))
	for _, r := range ranked {
		orig := results[r.OriginalRank]
		orig.Score = r.RerankScore
		out = append(out, orig)
	}
	return out, nil
}
