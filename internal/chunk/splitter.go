// Package chunk splits loaded pages into token-bounded windows and assigns
// each window its deterministic identifier.
package chunk

import (
	"log/slog"
	"strings"

	"github.com/starford/dossier/internal/models"
)

// DefaultSeparators lists split points from coarsest to finest.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", " ", ""}

// Splitter recursively splits text on the first separator present, merging
// the pieces back into windows of at most Size tokens that overlap by up to
// Overlap tokens. Separators are kept at the start of the piece they precede.
type Splitter struct {
	Size       int
	Overlap    int
	Separators []string
	Tokenizer  Tokenizer
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithSize sets the window size in tokens.
func WithSize(n int) Option {
	return func(s *Splitter) { s.Size = n }
}

// WithOverlap sets the overlap in tokens.
func WithOverlap(n int) Option {
	return func(s *Splitter) { s.Overlap = n }
}

// WithTokenizer sets the token counter.
func WithTokenizer(t Tokenizer) Option {
	return func(s *Splitter) { s.Tokenizer = t }
}

// NewSplitter returns a splitter with 500-token windows, 50-token overlap and
// the default separators.
func NewSplitter(opts ...Option) *Splitter {
	s := &Splitter{
		Size:       500,
		Overlap:    50,
		Separators: DefaultSeparators,
		Tokenizer:  WordTokenizer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Size <= 0 {
		s.Size = 500
	}
	if s.Overlap < 0 || s.Overlap >= s.Size {
		s.Overlap = s.Size / 10
	}
	return s
}

// SplitPages splits every page and returns chunks in document order, with
// each page's chunks contiguous. IDs are not assigned.
func (s *Splitter) SplitPages(pages []models.Page) []models.Chunk {
	var out []models.Chunk
	for _, p := range pages {
		for _, text := range s.SplitText(p.Text) {
			out = append(out, models.Chunk{
				Content: text,
				Source:  p.Source,
				Page:    p.Number,
			})
		}
	}
	return out
}

// SplitText splits a single text.
func (s *Splitter) SplitText(text string) []string {
	return s.split(text, s.Separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var final, good []string
	for _, piece := range splitKeep(text, separator) {
		if s.Tokenizer.Count(piece) < s.Size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.merge(good)...)
	}
	return final
}

// merge packs consecutive pieces into windows. Pieces already carry their
// separator, so they are joined with nothing in between.
func (s *Splitter) merge(pieces []string) []string {
	var (
		docs    []string
		current []string
		total   int
	)
	for _, p := range pieces {
		n := s.Tokenizer.Count(p)
		if total+n > s.Size {
			if total > s.Size {
				slog.Debug("chunk: window exceeds size", slog.Int("tokens", total), slog.Int("size", s.Size))
			}
			if len(current) > 0 {
				if doc := joinTrim(current); doc != "" {
					docs = append(docs, doc)
				}
				for total > s.Overlap || (total+n > s.Size && total > 0) {
					total -= s.Tokenizer.Count(current[0])
					current = current[1:]
				}
			}
		}
		current = append(current, p)
		total += n
	}
	if doc := joinTrim(current); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

func joinTrim(parts []string) string {
	return strings.TrimSpace(strings.Join(parts, ""))
}

// splitKeep splits text on sep, prefixing every piece after the first with
// the separator. An empty sep splits into runes. Empty pieces are dropped.
func splitKeep(text, sep string) []string {
	var raw []string
	if sep == "" {
		for _, r := range text {
			raw = append(raw, string(r))
		}
	} else {
		parts := strings.Split(text, sep)
		raw = make([]string, 0, len(parts))
		raw = append(raw, parts[0])
		for _, p := range parts[1:] {
			raw = append(raw, sep+p)
		}
	}
	out := raw[:0]
	for _, p := range raw {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
