// Package gemini adapts the Google GenAI SDK to the llm ports.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/starford/dossier/internal/llm"
)

var (
	_ llm.Embedder  = (*Client)(nil)
	_ llm.Generator = (*Client)(nil)
)

// Default configuration values.
const (
	DefaultEmbeddingModel  = "gemini-embedding-001"
	DefaultGenerationModel = "gemini-2.0-flash"
)

// Config holds configuration for the Gemini client.
type Config struct {
	APIKey          string
	EmbeddingModel  string
	GenerationModel string
	Options         llm.Options
}

// Client wraps a genai client.
type Client struct {
	client     *genai.Client
	embedModel string
	genModel   string
	opts       llm.Options
}

// New creates a Gemini client. The API key is required.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.GenerationModel == "" {
		cfg.GenerationModel = DefaultGenerationModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Client{
		client:     client,
		embedModel: cfg.EmbeddingModel,
		genModel:   cfg.GenerationModel,
		opts:       cfg.Options,
	}, nil
}

// Embed embeds texts as retrieval documents in one call.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}
	result, err := c.client.Models.EmbedContent(ctx, c.embedModel, contents, &genai.EmbedContentConfig{
		TaskType: "RETRIEVAL_DOCUMENT",
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: embed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini: expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}
	out := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}

// Complete returns the generated text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.genModel, genai.Text(prompt), c.config())
	if err != nil {
		return "", fmt.Errorf("gemini: generate: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", llm.ErrEmptyResponse
	}
	return text, nil
}

// Stream forwards each streamed response's text to fn.
func (c *Client) Stream(ctx context.Context, prompt string, fn func(string) error) error {
	for resp, err := range c.client.Models.GenerateContentStream(ctx, c.genModel, genai.Text(prompt), c.config()) {
		if err != nil {
			return fmt.Errorf("gemini: stream: %w", err)
		}
		if text := resp.Text(); text != "" {
			if err := fn(text); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Client) config() *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(c.opts.Temperature)),
	}
	if c.opts.TopK > 0 {
		config.TopK = genai.Ptr(float32(c.opts.TopK))
	}
	if c.opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(c.opts.MaxTokens)
	}
	return config
}
