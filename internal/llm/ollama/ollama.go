// Package ollama provides embedding and generation adapters for a local
// Ollama server.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/starford/dossier/internal/llm"
)

var (
	_ llm.Embedder  = (*Client)(nil)
	_ llm.Generator = (*Client)(nil)
)

// Default configuration values.
const (
	DefaultBaseURL         = "http://localhost:11434"
	DefaultEmbeddingModel  = "nomic-embed-text"
	DefaultGenerationModel = "llama3.2:3b-instruct-q4_K_M"
	DefaultTimeout         = 120 * time.Second
)

// Config holds configuration for the Ollama client.
type Config struct {
	BaseURL         string
	EmbeddingModel  string
	GenerationModel string
	Timeout         time.Duration
	Options         llm.Options
}

// Client talks to the Ollama HTTP API.
//
// Timeout bounds unary calls end to end. A stream is only bounded until the
// response headers arrive, so a long generation is never cut off.
type Client struct {
	client     *http.Client
	timeout    time.Duration
	baseURL    string
	embedModel string
	genModel   string
	opts       llm.Options
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type generateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	Stream  bool     `json:"stream"`
	Options *options `json:"options,omitempty"`
}

type options struct {
	NumCtx      int     `json:"num_ctx,omitempty"`
	Temperature float64 `json:"temperature"`
	TopK        int     `json:"top_k,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// New creates an Ollama client, filling unset fields with defaults.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.GenerationModel == "" {
		cfg.GenerationModel = DefaultGenerationModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.Timeout
	return &Client{
		client:     &http.Client{Transport: transport},
		timeout:    cfg.Timeout,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		embedModel: cfg.EmbeddingModel,
		genModel:   cfg.GenerationModel,
		opts:       cfg.Options,
	}
}

// Embed returns one vector per text in a single /api/embed call.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var resp embedResponse
	if err := c.post(ctx, "/api/embed", embedRequest{Model: c.embedModel, Input: texts}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama: got %d embeddings for %d texts: %w", len(resp.Embeddings), len(texts), llm.ErrEmptyResponse)
	}
	for _, vec := range resp.Embeddings {
		if len(vec) == 0 {
			return nil, llm.ErrEmptyResponse
		}
	}
	return resp.Embeddings, nil
}

// Complete returns the full generated answer.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	var resp generateResponse
	if err := c.post(ctx, "/api/generate", c.generateRequest(prompt, false), &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("ollama: %s", resp.Error)
	}
	return resp.Response, nil
}

// Stream reads the NDJSON token stream of /api/generate.
func (c *Client) Stream(ctx context.Context, prompt string, fn func(string) error) error {
	resp, err := c.do(ctx, "/api/generate", c.generateRequest(prompt, true))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var part generateResponse
		if err := json.Unmarshal(line, &part); err != nil {
			return fmt.Errorf("ollama: decode stream: %w", err)
		}
		if part.Error != "" {
			return fmt.Errorf("ollama: %s", part.Error)
		}
		if part.Response != "" {
			if err := fn(part.Response); err != nil {
				return err
			}
		}
		if part.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("ollama: read stream: %w", err)
	}
	return nil
}

func (c *Client) generateRequest(prompt string, stream bool) generateRequest {
	return generateRequest{
		Model:  c.genModel,
		Prompt: prompt,
		Stream: stream,
		Options: &options{
			NumCtx:      c.opts.NumCtx,
			Temperature: c.opts.Temperature,
			TopK:        c.opts.TopK,
			NumPredict:  c.opts.MaxTokens,
		},
	}
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.do(ctx, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ollama: decode response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string, body any) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}
