package testutil

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"github.com/starford/dossier/internal/models"
)

// HashEmbedder hashes lower-cased words into a fixed-size bag-of-words
// vector. Texts sharing words end up close under cosine similarity.
type HashEmbedder struct {
	Dim int
	Err error

	mu    sync.Mutex
	calls int
	texts int
}

// Embed implements the embedder interfaces.
func (e *HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.texts += len(texts)
	err := e.Err
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	dim := e.Dim
	if dim == 0 {
		dim = 64
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, dim)
		words := strings.FieldsFunc(strings.ToLower(t), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, w := range words {
			h := fnv.New32a()
			_, _ = h.Write([]byte(w))
			v[h.Sum32()%uint32(dim)]++
		}
		out[i] = v
	}
	return out, nil
}

// Calls returns the number of Embed calls and the total texts embedded.
func (e *HashEmbedder) Calls() (calls, texts int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls, e.texts
}

// Generator is a scripted language model. Complete returns Reply (or the
// result of ReplyFunc) and Stream emits Tokens one by one.
type Generator struct {
	Reply     string
	ReplyFunc func(prompt string) string
	Tokens    []string
	Err       error
	StreamErr error

	mu      sync.Mutex
	prompts []string
}

// Complete implements the generator interface.
func (g *Generator) Complete(_ context.Context, prompt string) (string, error) {
	g.record(prompt)
	if g.Err != nil {
		return "", g.Err
	}
	if g.ReplyFunc != nil {
		return g.ReplyFunc(prompt), nil
	}
	return g.Reply, nil
}

// Stream implements the generator interface. It stops early when ctx is
// cancelled or fn fails.
func (g *Generator) Stream(ctx context.Context, prompt string, fn func(string) error) error {
	g.record(prompt)
	if g.Err != nil {
		return g.Err
	}
	for _, tok := range g.Tokens {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(tok); err != nil {
			return err
		}
	}
	return g.StreamErr
}

// Prompts returns every prompt received so far.
func (g *Generator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.prompts))
	copy(out, g.prompts)
	return out
}

func (g *Generator) record(prompt string) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
}

// Reranker scores candidates by the number of query words found in the
// chunk content. Query receives the last query seen.
type Reranker struct {
	Err   error
	Query string
}

// Rerank implements the reranker interface.
func (r *Reranker) Rerank(_ context.Context, query string, cands []models.Candidate) ([]models.Candidate, error) {
	r.Query = query
	if r.Err != nil {
		return nil, r.Err
	}
	words := strings.Fields(strings.ToLower(query))
	out := make([]models.Candidate, len(cands))
	for i, c := range cands {
		content := strings.ToLower(c.Chunk.Content)
		var hits float64
		for _, w := range words {
			if strings.Contains(content, w) {
				hits++
			}
		}
		c.RerankScore = hits
		out[i] = c
	}
	return out, nil
}
