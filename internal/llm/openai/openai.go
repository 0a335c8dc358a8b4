// Package openai adapts OpenAI-compatible endpoints (OpenAI, vLLM, LM
// Studio, Docker Model Runner) to the llm ports.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/starford/dossier/internal/llm"
)

var (
	_ llm.Embedder  = (*Client)(nil)
	_ llm.Generator = (*Client)(nil)
)

// Default configuration values.
const (
	DefaultEmbeddingModel  = "text-embedding-3-small"
	DefaultGenerationModel = "gpt-4o-mini"
)

// Config holds configuration for the OpenAI-compatible client.
type Config struct {
	BaseURL         string
	APIKey          string
	EmbeddingModel  string
	GenerationModel string
	Timeout         time.Duration
	Options         llm.Options
}

// Client wraps the openai-go client.
type Client struct {
	client     openai.Client
	embedModel string
	genModel   string
	opts       llm.Options
}

// New creates a client. An empty BaseURL targets api.openai.com.
func New(cfg Config) *Client {
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.GenerationModel == "" {
		cfg.GenerationModel = DefaultGenerationModel
	}
	var clientOptions []option.RequestOption
	if cfg.BaseURL != "" {
		clientOptions = append(clientOptions, option.WithBaseURL(cfg.BaseURL))
	}
	clientOptions = append(clientOptions, option.WithAPIKey(cfg.APIKey))
	if cfg.Timeout > 0 {
		clientOptions = append(clientOptions, option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	return &Client{
		client:     openai.NewClient(clientOptions...),
		embedModel: cfg.EmbeddingModel,
		genModel:   cfg.GenerationModel,
		opts:       cfg.Options,
	}
}

// Embed sends all texts in one request.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: c.embedModel,
	}
	response, err := c.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: create embeddings: %w", err)
	}
	if len(response.Data) != len(texts) {
		return nil, fmt.Errorf("openai: expected %d embeddings, got %d", len(texts), len(response.Data))
	}
	out := make([][]float32, len(response.Data))
	for i, data := range response.Data {
		vec := make([]float32, len(data.Embedding))
		for j, v := range data.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}

// Complete returns the first choice of a non-streaming completion.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.params(prompt))
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", llm.ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream forwards content deltas to fn.
func (c *Client) Stream(ctx context.Context, prompt string, fn func(string) error) error {
	stream := c.client.Chat.Completions.NewStreaming(ctx, c.params(prompt))
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			if err := fn(delta); err != nil {
				return err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("openai: stream: %w", err)
	}
	return nil
}

func (c *Client) params(prompt string) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model: c.genModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(c.opts.Temperature),
	}
	if c.opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.opts.MaxTokens))
	}
	return params
}
