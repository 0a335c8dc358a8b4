package chunk

import (
	"strings"

	"github.com/clipperhouse/uax29/v2/words"
)

// Tokenizer counts tokens. The splitter and the context assembler share one
// instance so chunk sizes and context budgets are measured the same way.
type Tokenizer interface {
	Count(text string) int
}

// WordTokenizer counts Unicode word-boundary segments (UAX #29), ignoring
// whitespace. Punctuation marks count as tokens of their own.
type WordTokenizer struct{}

// Count implements Tokenizer.
func (WordTokenizer) Count(text string) int {
	n := 0
	seg := words.FromString(text)
	for seg.Next() {
		if strings.TrimSpace(seg.Value()) != "" {
			n++
		}
	}
	return n
}
