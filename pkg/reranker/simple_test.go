package reranker_test

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/vecstore/pkg/reranker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleRerankBoostsTermOverlap(t *testing.T) {
	r := reranker.NewSimple()

	candidates := []reranker.Candidate{
		{ID: "a", Content: "databases and storage engines", Score: 0.9},
		{ID: "b", Content: "vector similarity search engines", Score: 0.85},
	}

	ranked, err := r.Rerank(context.Background(), "vector similarity search", candidates, 0)
	require.NoError(t, err)
	require.Len(t, ranked, 2)

	// "b" overlaps every query term and should win despite the lower
	// first-stage score.
	assert.Equal(t, "b", ranked[0].ID)
	assert.Equal(t, 1, ranked[0].OriginalRank)
	assert.InDelta(t, 1.0, ranked[0].RerankScore, 1e-6)
	assert.Equal(t, "a", ranked[1].ID)
}

func TestSimpleRerankTopK(t *testing.T) {
	r := reranker.NewSimple()

	candidates := []reranker.Candidate{
		{ID: "a", Content: "alpha", Score: 0.3},
		{ID: "b", Content: "beta", Score: 0.2},
		{ID: "c", Content: "gamma", Score: 0.1},
	}

	ranked, err := r.Rerank(context.Background(), "beta", candidates, 1)
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, "b", ranked[0].ID)
}

func TestSimpleRerankEmptyInputs(t *testing.T) {
	r := reranker.NewSimple()

	ranked, err := r.Rerank(context.Background(), "query", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, ranked)

	// Untokenizable query keeps the original score order.
	candidates := []reranker.Candidate{
		{ID: "low", Content: "x", Score: 0.1},
		{ID: "high", Content: "y", Score: 0.9},
	}
	ranked, err = r.Rerank(context.Background(), "!!!", candidates, 0)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "high", ranked[0].ID)
}
