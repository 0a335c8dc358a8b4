package rag

import (
	"strings"

	"github.com/starford/dossier/internal/chunk"
	"github.com/starford/dossier/internal/models"
)

// ContextSeparator joins the chunks of the generation context.
const ContextSeparator = "\n\n---\n\n"

// Assemble walks cands in rank order and keeps each one whose full token
// count still fits in budget. A candidate that does not fit is skipped and
// later, smaller ones are still considered; chunks are never truncated.
func Assemble(cands []models.Candidate, tok chunk.Tokenizer, budget int) (string, []models.Candidate) {
	var (
		used  []models.Candidate
		texts []string
		total int
	)
	for _, c := range cands {
		n := tok.Count(c.Chunk.Content)
		if total+n > budget {
			continue
		}
		total += n
		used = append(used, c)
		texts = append(texts, c.Chunk.Content)
	}
	return strings.Join(texts, ContextSeparator), used
}
