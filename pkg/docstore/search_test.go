package docstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vecstore/pkg/keyword"
	"github.com/fyrsmithlabs/vecstore/pkg/reranker"
	"github.com/fyrsmithlabs/vecstore/pkg/similarity"
)

func ptrFloat32(v float32) *float32 { return &v }

// seedDirectionalStore builds a store whose vectors make similarity
// ordering obvious: the query points along the first axis.
func seedDirectionalStore(t *testing.T, opts Options) (*Store, *fakeProvider) {
	t.Helper()
	store, provider := newTestStore(t, opts)
	provider.vectors["query"] = []float32{1, 0, 0, 0}
	provider.vectors["exact match"] = []float32{1, 0, 0, 0}
	provider.vectors["close match"] = []float32{0.9, 0.1, 0, 0}
	provider.vectors["orthogonal"] = []float32{0, 1, 0, 0}
	provider.vectors["opposite"] = []float32{-1, 0, 0, 0}

	ctx := context.Background()
	require.NoError(t, store.UpsertBatch(ctx, []Document{
		{ID: "exact", Content: "exact match", Metadata: map[string]interface{}{"lang": "go"}},
		{ID: "close", Content: "close match", Metadata: map[string]interface{}{"lang": "go"}},
		{ID: "ortho", Content: "orthogonal", Metadata: map[string]interface{}{"lang": "rust"}},
		{ID: "anti", Content: "opposite"},
	}))
	return store, provider
}

func TestSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("orders by descending similarity", func(t *testing.T) {
		store, _ := seedDirectionalStore(t, Options{})

		// The anti-parallel document scores -1 and falls below the
		// default threshold of 0.
		results, err := store.Search(ctx, "query", 4, SearchOptions{})
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, "exact", results[0].ID)
		assert.Equal(t, "close", results[1].ID)
		assert.Equal(t, "ortho", results[2].ID)
		assert.InDelta(t, 1.0, results[0].Score, 1e-5)
	})

	t.Run("negative threshold admits negative scores", func(t *testing.T) {
		store, _ := seedDirectionalStore(t, Options{})

		results, err := store.Search(ctx, "query", 4, SearchOptions{
			Threshold: ptrFloat32(-2),
		})
		require.NoError(t, err)
		require.Len(t, results, 4)
		assert.Equal(t, "anti", results[3].ID)
	})

	t.Run("truncates to k", func(t *testing.T) {
		store, _ := seedDirectionalStore(t, Options{})

		results, err := store.Search(ctx, "query", 2, SearchOptions{})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "exact", results[0].ID)
	})

	t.Run("k zero skips the provider", func(t *testing.T) {
		store, provider := seedDirectionalStore(t, Options{})
		before := provider.callCount()

		results, err := store.Search(ctx, "query", 0, SearchOptions{})
		require.NoError(t, err)
		assert.Empty(t, results)
		assert.Equal(t, before, provider.callCount())
	})

	t.Run("negative k applies the default limit", func(t *testing.T) {
		store, provider := newTestStore(t, Options{})
		provider.vectors["anything"] = []float32{1, 0, 0, 0}
		docs := make([]Document, DefaultLimit+5)
		for i := range docs {
			content := fmt.Sprintf("text %d", i)
			provider.vectors[content] = []float32{1, 0, 0, 0}
			docs[i] = Document{ID: fmt.Sprintf("d%d", i), Content: content}
		}
		require.NoError(t, store.UpsertBatch(ctx, docs))

		results, err := store.Search(ctx, "anything", -1, SearchOptions{})
		require.NoError(t, err)
		assert.Len(t, results, DefaultLimit)
	})

	t.Run("threshold drops low scores", func(t *testing.T) {
		store, _ := seedDirectionalStore(t, Options{})

		results, err := store.Search(ctx, "query", 10, SearchOptions{
			Threshold: ptrFloat32(0.5),
		})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "exact", results[0].ID)
		assert.Equal(t, "close", results[1].ID)
	})

	t.Run("metadata filter", func(t *testing.T) {
		store, _ := seedDirectionalStore(t, Options{})

		results, err := store.Search(ctx, "query", 10, SearchOptions{
			Filter: map[string]interface{}{"lang": "rust"},
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "ortho", results[0].ID)
	})

	t.Run("filter and predicate combine with AND", func(t *testing.T) {
		store, _ := seedDirectionalStore(t, Options{})

		results, err := store.Search(ctx, "query", 10, SearchOptions{
			Filter: map[string]interface{}{"lang": "go"},
			Predicate: func(doc StoredDocument) bool {
				return doc.ID != "exact"
			},
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "close", results[0].ID)
	})

	t.Run("embeddings excluded unless requested", func(t *testing.T) {
		store, _ := seedDirectionalStore(t, Options{})

		plain, err := store.Search(ctx, "query", 1, SearchOptions{})
		require.NoError(t, err)
		require.Len(t, plain, 1)
		assert.Nil(t, plain[0].Embedding)

		with, err := store.Search(ctx, "query", 1, SearchOptions{IncludeEmbeddings: true})
		require.NoError(t, err)
		require.Len(t, with, 1)
		assert.Equal(t, []float32{1, 0, 0, 0}, with[0].Embedding)
	})

	t.Run("per-call similarity override", func(t *testing.T) {
		store, _ := seedDirectionalStore(t, Options{})

		results, err := store.Search(ctx, "query", 1, SearchOptions{
			Similarity: similarity.Euclidean,
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "exact", results[0].ID)
		assert.InDelta(t, 1.0, results[0].Score, 1e-5)
	})

	t.Run("dimension mismatch surfaces", func(t *testing.T) {
		store, provider := newTestStore(t, Options{})
		provider.vectors["short"] = []float32{1, 0}
		provider.vectors["query"] = []float32{1, 0, 0, 0}

		require.NoError(t, store.Upsert(ctx, Document{ID: "bad", Content: "short"}))

		_, err := store.Search(ctx, "query", 5, SearchOptions{})
		require.Error(t, err)
		assert.ErrorIs(t, err, similarity.ErrDimensionMismatch)
	})

	t.Run("empty query embedding yields no results", func(t *testing.T) {
		store, provider := seedDirectionalStore(t, Options{})
		provider.vectors["query"] = []float32{}

		results, err := store.Search(ctx, "query", 5, SearchOptions{})
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestHybridSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("keyword signal lifts lexical matches", func(t *testing.T) {
		store, provider := newTestStore(t, Options{})
		provider.vectors["database indexing"] = []float32{1, 0, 0, 0}
		provider.vectors["semantic twin"] = []float32{1, 0, 0, 0}
		provider.vectors["database tuning guide"] = []float32{0.8, 0.6, 0, 0}

		require.NoError(t, store.UpsertBatch(ctx, []Document{
			{ID: "semantic", Content: "semantic twin"},
			{ID: "lexical", Content: "database tuning guide"},
		}))

		// Pure vector search prefers the semantic twin.
		vecOnly, err := store.Search(ctx, "database indexing", 2, SearchOptions{})
		require.NoError(t, err)
		assert.Equal(t, "semantic", vecOnly[0].ID)

		// A strong keyword weight flips the order.
		hybrid, err := store.HybridSearch(ctx, "database indexing", 2, HybridOptions{
			VectorWeight:  0.1,
			KeywordWeight: 0.9,
		})
		require.NoError(t, err)
		assert.Equal(t, "lexical", hybrid[0].ID)
	})

	t.Run("default weights apply when both zero", func(t *testing.T) {
		store, _ := seedDirectionalStore(t, Options{})

		results, err := store.HybridSearch(ctx, "query", 1, HybridOptions{})
		require.NoError(t, err)
		require.Len(t, results, 1)
		// 0.7 * cosine(1.0) + 0.3 * keyword(0) for the exact vector match.
		assert.InDelta(t, 0.7, results[0].Score, 1e-5)
	})

	t.Run("keyword-only when vector weight is zero", func(t *testing.T) {
		store, _ := seedDirectionalStore(t, Options{})

		results, err := store.HybridSearch(ctx, "orthogonal", 1, HybridOptions{
			VectorWeight:  0,
			KeywordWeight: 1,
			KeywordMode:   keyword.ModeExact,
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "ortho", results[0].ID)
		assert.InDelta(t, 1.0, results[0].Score, 1e-5)
	})

	t.Run("k zero returns empty", func(t *testing.T) {
		store, _ := seedDirectionalStore(t, Options{})

		results, err := store.HybridSearch(ctx, "query", 0, HybridOptions{})
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

// reverseReranker inverts candidate order, scoring by reversed position.
type reverseReranker struct{}

func (reverseReranker) Rerank(_ context.Context, _ string, candidates []reranker.Candidate, topK int) ([]reranker.Ranked, error) {
	if topK > len(candidates) {
		topK = len(candidates)
	}
	out := make([]reranker.Ranked, 0, topK)
	for i := len(candidates) - 1; i >= len(candidates)-topK; i-- {
		out = append(out, reranker.Ranked{
			Candidate:    candidates[i],
			RerankScore:  float32(len(candidates) - i),
			OriginalRank: i,
		})
	}
	return out, nil
}

func TestSearchRerank(t *testing.T) {
	ctx := context.Background()

	t.Run("reranker reorders and rescores", func(t *testing.T) {
		store, _ := seedDirectionalStore(t, Options{Reranker: reverseReranker{}})

		results, err := store.Search(ctx, "query", 4, SearchOptions{Rerank: true})
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, "ortho", results[0].ID)
		assert.Equal(t, "exact", results[2].ID)
		assert.Equal(t, float32(1), results[0].Score)
	})

	t.Run("rerank top-k bounds candidates", func(t *testing.T) {
		store, _ := seedDirectionalStore(t, Options{Reranker: reverseReranker{}})

		results, err := store.Search(ctx, "query", 4, SearchOptions{
			Rerank:     true,
			RerankTopK: 2,
		})
		require.NoError(t, err)
		require.Len(t, results, 2)
	})

	t.Run("rerank top-k widens the candidate pool beyond k", func(t *testing.T) {
		store, _ := seedDirectionalStore(t, Options{Reranker: reverseReranker{}})

		// The reranker sees the top RerankTopK candidates even when k is
		// smaller, so it can promote a document past the final cut.
		results, err := store.Search(ctx, "query", 1, SearchOptions{
			Rerank:     true,
			RerankTopK: 3,
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "ortho", results[0].ID)
	})

	t.Run("rerank without configured reranker is ignored", func(t *testing.T) {
		store, _ := seedDirectionalStore(t, Options{})

		results, err := store.Search(ctx, "query", 4, SearchOptions{Rerank: true})
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, "exact", results[0].ID)
	})
}
