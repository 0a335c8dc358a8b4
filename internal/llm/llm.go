// Package llm defines the model ports used by indexing and retrieval:
// text embedding and text generation.
package llm

import (
	"context"
	"errors"
)

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces text from a prompt.
type Generator interface {
	// Complete returns the whole answer.
	Complete(ctx context.Context, prompt string) (string, error)
	// Stream calls fn with each text fragment as it arrives. Returning an
	// error from fn aborts generation with that error.
	Stream(ctx context.Context, prompt string, fn func(string) error) error
}

// Options are the sampling parameters shared by every provider. Providers
// ignore the fields they have no equivalent for.
type Options struct {
	NumCtx      int
	Temperature float64
	TopK        int
	MaxTokens   int
}

// DefaultOptions are tuned for short, factual answers from a small local
// model.
func DefaultOptions() Options {
	return Options{
		NumCtx:      2048,
		Temperature: 0.3,
		TopK:        20,
		MaxTokens:   300,
	}
}

// ErrEmptyResponse is returned when a provider answers without content.
var ErrEmptyResponse = errors.New("llm: empty response")
