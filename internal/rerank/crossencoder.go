package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/starford/dossier/internal/models"
)

// CrossEncoder scores (query, passage) pairs with a remote cross-encoder
// speaking the text-embeddings-inference /rerank protocol, for example
// BAAI/bge-reranker-base or cross-encoder/ms-marco-MiniLM-L-6-v2.
type CrossEncoder struct {
	client  *http.Client
	baseURL string
	model   string
}

type crossRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
	Model string   `json:"model,omitempty"`
}

type crossScore struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// NewCrossEncoder returns a client for the server at baseURL.
func NewCrossEncoder(baseURL, model string, timeout time.Duration) *CrossEncoder {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &CrossEncoder{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
	}
}

// Rerank implements Reranker.
func (c *CrossEncoder) Rerank(ctx context.Context, query string, cands []models.Candidate) ([]models.Candidate, error) {
	if len(cands) == 0 {
		return nil, nil
	}
	texts := make([]string, len(cands))
	for i, cand := range cands {
		texts[i] = cand.Chunk.Content
	}
	body, err := json.Marshal(crossRequest{Query: query, Texts: texts, Model: c.model})
	if err != nil {
		return nil, fmt.Errorf("rerank: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("rerank: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank: send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("rerank: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var scores []crossScore
	if err := json.NewDecoder(resp.Body).Decode(&scores); err != nil {
		return nil, fmt.Errorf("rerank: decode response: %w", err)
	}
	out := make([]models.Candidate, len(cands))
	copy(out, cands)
	seen := make([]bool, len(cands))
	for _, s := range scores {
		if s.Index < 0 || s.Index >= len(out) {
			return nil, fmt.Errorf("rerank: score index %d out of range", s.Index)
		}
		out[s.Index].RerankScore = s.Score
		seen[s.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("rerank: no score for candidate %d", i)
		}
	}
	return out, nil
}
