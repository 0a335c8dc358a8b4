// Package rerank reorders retrieval candidates by a pairwise relevance score
// against the user's original question.
package rerank

import (
	"context"
	"sort"

	"github.com/starford/dossier/internal/models"
)

// Reranker sets RerankScore on every candidate. The returned slice has the
// same length and order as the input.
type Reranker interface {
	Rerank(ctx context.Context, query string, cands []models.Candidate) ([]models.Candidate, error)
}

// Func adapts a scoring function to Reranker.
type Func func(ctx context.Context, query string, cands []models.Candidate) ([]models.Candidate, error)

// Rerank implements Reranker.
func (f Func) Rerank(ctx context.Context, query string, cands []models.Candidate) ([]models.Candidate, error) {
	return f(ctx, query, cands)
}

// Top sorts cands by RerankScore, highest first, and keeps the first n.
// The sort is stable so ties keep their similarity order. n <= 0 keeps all.
func Top(cands []models.Candidate, n int) []models.Candidate {
	out := make([]models.Candidate, len(cands))
	copy(out, cands)
	sort.SliceStable(out, func(i, j int) bool { return out[i].RerankScore > out[j].RerankScore })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Apply reranks cands against query and returns the top n.
func Apply(ctx context.Context, r Reranker, query string, cands []models.Candidate, n int) ([]models.Candidate, error) {
	if len(cands) == 0 {
		return nil, nil
	}
	scored, err := r.Rerank(ctx, query, cands)
	if err != nil {
		return nil, err
	}
	return Top(scored, n), nil
}
