package rerank

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/starford/dossier/internal/llm"
	"github.com/starford/dossier/internal/models"
)

const llmPrompt = `Évalue la pertinence du passage pour répondre à la question.
Réponds uniquement par un nombre entre 0 et 10.

Question : %s

Passage :
%s

Note :`

var firstNumber = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

// LLM asks the generation model to grade each (query, passage) pair. Pairs
// are graded concurrently, at most Workers at a time.
type LLM struct {
	gen     llm.Generator
	workers int
}

// NewLLM returns an LLM reranker.
func NewLLM(gen llm.Generator, workers int) *LLM {
	if workers <= 0 {
		workers = 4
	}
	return &LLM{gen: gen, workers: workers}
}

// Rerank implements Reranker. An unparsable grade scores 0.
func (r *LLM) Rerank(ctx context.Context, query string, cands []models.Candidate) ([]models.Candidate, error) {
	out := make([]models.Candidate, len(cands))
	copy(out, cands)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i := range out {
		g.Go(func() error {
			answer, err := r.gen.Complete(gctx, fmt.Sprintf(llmPrompt, query, out[i].Chunk.Content))
			if err != nil {
				return fmt.Errorf("rerank: grade candidate %d: %w", i, err)
			}
			out[i].RerankScore = parseGrade(answer)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func parseGrade(answer string) float64 {
	m := firstNumber.FindString(answer)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.Replace(m, ",", ".", 1), 64)
	if err != nil {
		return 0
	}
	return v
}
