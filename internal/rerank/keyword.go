package rerank

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/starford/dossier/internal/models"
	"github.com/starford/dossier/internal/textnorm"
)

// Keyword is a local fallback scorer: the fraction of distinct query terms
// found in the passage, plus a small bonus for terms appearing more than
// once. It needs no model and keeps the pipeline usable offline.
type Keyword struct{}

// Rerank implements Reranker.
func (Keyword) Rerank(_ context.Context, query string, cands []models.Candidate) ([]models.Candidate, error) {
	terms := distinctTerms(query)
	out := make([]models.Candidate, len(cands))
	for i, c := range cands {
		c.RerankScore = keywordScore(terms, c.Chunk.Content)
		out[i] = c
	}
	return out, nil
}

func keywordScore(terms []string, passage string) float64 {
	if len(terms) == 0 {
		return 0
	}
	counts := map[string]int{}
	for _, w := range tokens(passage) {
		counts[w]++
	}
	var score float64
	for _, t := range terms {
		if n := counts[t]; n > 0 {
			score += 1 + 0.1*math.Log(float64(n))
		}
	}
	return score / float64(len(terms))
}

func distinctTerms(s string) []string {
	seen := map[string]bool{}
	var out []string
	for _, w := range tokens(s) {
		if len([]rune(w)) < 3 || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func tokens(s string) []string {
	return strings.FieldsFunc(textnorm.Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
