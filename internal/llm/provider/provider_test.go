package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/dossier/internal/llm"
	"github.com/starford/dossier/internal/llm/ollama"
	"github.com/starford/dossier/internal/llm/openai"
)

func TestNewSelectsProvider(t *testing.T) {
	m, err := New(context.Background(), Config{})
	require.NoError(t, err)
	assert.IsType(t, &llm.Batched{}, m.Embedder)
	assert.IsType(t, &ollama.Client{}, m.Generator)

	m, err = New(context.Background(), Config{Provider: OpenAI, APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &openai.Client{}, m.Generator)
}

func TestNewRejectsUnknown(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: "bard"})
	assert.Error(t, err)

	_, err = New(context.Background(), Config{Provider: Gemini})
	assert.Error(t, err)
}
