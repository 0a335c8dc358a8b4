// Package provider builds the configured model clients.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/dossier/internal/llm"
	"github.com/starford/dossier/internal/llm/gemini"
	"github.com/starford/dossier/internal/llm/ollama"
	"github.com/starford/dossier/internal/llm/openai"
)

// Supported provider names.
const (
	Ollama = "ollama"
	OpenAI = "openai"
	Gemini = "gemini"
)

// Config selects and configures a provider.
type Config struct {
	Provider        string
	BaseURL         string
	APIKey          string
	EmbeddingModel  string
	GenerationModel string
	Timeout         time.Duration
	EmbedRPS        float64
	EmbedBatch      int
	Options         llm.Options
}

// Models bundles the clients used by the rest of the application.
type Models struct {
	Embedder  llm.Embedder
	Generator llm.Generator
}

// New returns the embedder and generator for cfg.Provider. The embedder is
// wrapped in a batching, rate-limited llm.Batched.
func New(ctx context.Context, cfg Config) (Models, error) {
	var (
		emb llm.Embedder
		gen llm.Generator
	)
	switch cfg.Provider {
	case Ollama, "":
		c := ollama.New(ollama.Config{
			BaseURL:         cfg.BaseURL,
			EmbeddingModel:  cfg.EmbeddingModel,
			GenerationModel: cfg.GenerationModel,
			Timeout:         cfg.Timeout,
			Options:         cfg.Options,
		})
		emb, gen = c, c
	case OpenAI:
		c := openai.New(openai.Config{
			BaseURL:         cfg.BaseURL,
			APIKey:          cfg.APIKey,
			EmbeddingModel:  cfg.EmbeddingModel,
			GenerationModel: cfg.GenerationModel,
			Timeout:         cfg.Timeout,
			Options:         cfg.Options,
		})
		emb, gen = c, c
	case Gemini:
		c, err := gemini.New(ctx, gemini.Config{
			APIKey:          cfg.APIKey,
			EmbeddingModel:  cfg.EmbeddingModel,
			GenerationModel: cfg.GenerationModel,
			Options:         cfg.Options,
		})
		if err != nil {
			return Models{}, err
		}
		emb, gen = c, c
	default:
		return Models{}, fmt.Errorf("provider: unknown provider %q", cfg.Provider)
	}
	return Models{
		Embedder:  llm.NewBatched(emb, llm.WithBatchSize(cfg.EmbedBatch), llm.WithRate(cfg.EmbedRPS)),
		Generator: gen,
	}, nil
}
