package reranker

import (
	"context"
	"sort"

	"github.com/fyrsmithlabs/vecstore/pkg/keyword"
)

// Simple reranks by blending the first-stage score with lexical term
// overlap between the query and each candidate, half and half. It is a
// cheap stand-in for a cross-encoder model.
type Simple struct{}

// NewSimple creates a Simple reranker.
func NewSimple() *Simple {
	return &Simple{}
}

// Rerank blends original scores with query term overlap and sorts by the
// combined score. With an untokenizable query the original order by score
// is kept.
func (r *Simple) Rerank(ctx context.Context, query string, candidates []Candidate, topK int) ([]Ranked, error) {
	if topK <= 0 || topK > len(candidates) {
		topK = len(candidates)
	}
	if len(candidates) == 0 {
		return []Ranked{}, nil
	}

	queryTerms := keyword.Tokenize(query)

	ranked := make([]Ranked, len(candidates))
	combined := make([]float32, len(candidates))
	for i, c := range candidates {
		overlap := termOverlap(queryTerms, keyword.Tokenize(c.Content))
		ranked[i] = Ranked{
			Candidate:    c,
			RerankScore:  overlap,
			OriginalRank: i,
		}
		if len(queryTerms) == 0 {
			combined[i] = c.Score
		} else {
			combined[i] = 0.5*c.Score + 0.5*overlap
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return combined[ranked[i].OriginalRank] > combined[ranked[j].OriginalRank]
	})

	return ranked[:topK], nil
}

// termOverlap returns the fraction of unique query terms present in the
// document's token set.
func termOverlap(queryTerms, docTerms []string) float32 {
	if len(queryTerms) == 0 {
		return 0
	}

	docSet := make(map[string]struct{}, len(docTerms))
	for _, t := range docTerms {
		docSet[t] = struct{}{}
	}

	seen := make(map[string]struct{}, len(queryTerms))
	unique := 0
	matched := 0
	for _, t := range queryTerms {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		unique++
		if _, ok := docSet[t]; ok {
			matched++
		}
	}

	return float32(matched) / float32(unique)
}

var _ Reranker = (*Simple)(nil)
