// Package reranker provides optional re-scoring of search candidates.
//
// A Reranker is an expensive second-stage scorer: the document store hands
// it the top candidates from a similarity search and replaces their order
// with the reranked one before truncating to the caller's limit.
package reranker

import "context"

// Candidate is a search result submitted for reranking.
type Candidate struct {
	// ID is the document identifier.
	ID string

	// Content is the document text.
	Content string

	// Score is the first-stage similarity score.
	Score float32
}

// Ranked is a candidate with its reranker score.
type Ranked struct {
	Candidate

	// RerankScore is the second-stage score in [0, 1].
	RerankScore float32

	// OriginalRank is the candidate's position before reranking (0-indexed).
	OriginalRank int
}

// Reranker re-scores candidates against a query.
type Reranker interface {
	// Rerank returns candidates sorted by descending combined relevance,
	// truncated to topK. A topK below 1 means all candidates.
	Rerank(ctx context.Context, query string, candidates []Candidate, topK int) ([]Ranked, error)
}
