// Package query turns a raw question into a metadata filter and a cleaned
// search string.
package query

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/starford/dossier/internal/models"
)

// Extractor returns the metadata mentioned in a question.
type Extractor interface {
	Extract(ctx context.Context, question string) (models.QueryMetadata, error)
}

// Matcher selects the filenames whose metadata record contains any of the
// values.
type Matcher interface {
	MatchAny(ctx context.Context, values []string) ([]string, error)
}

// Plan is the outcome of planning one question.
type Plan struct {
	Metadata models.QueryMetadata
	// Filenames restricts the search. Empty means the whole index, which is
	// also the outcome when the named metadata matches no file.
	Filenames []string
	Search    string
}

// Planner builds Plans.
type Planner struct {
	extractor Extractor
	matcher   Matcher
	logger    *slog.Logger
}

// NewPlanner returns a Planner.
func NewPlanner(extractor Extractor, matcher Matcher, logger *slog.Logger) *Planner {
	return &Planner{extractor: extractor, matcher: matcher, logger: logger}
}

// Plan extracts the question's metadata, resolves it to filenames and strips
// the metadata values from the search text. Extraction and lookup failures
// are logged and degrade to an unfiltered search.
func (p *Planner) Plan(ctx context.Context, question string) Plan {
	md, err := p.extractor.Extract(ctx, question)
	if err != nil {
		p.logger.Warn("query: metadata extraction failed", slog.String("error", err.Error()))
		md = models.QueryMetadata{}
	}
	plan := Plan{Metadata: md, Search: question}
	values := md.Values()
	if len(values) == 0 {
		return plan
	}

	files, err := p.matcher.MatchAny(ctx, values)
	if err != nil {
		p.logger.Warn("query: metadata lookup failed", slog.String("error", err.Error()))
	} else {
		plan.Filenames = files
	}
	plan.Search = Strip(question, values)
	p.logger.Debug("query: planned",
		slog.Any("values", values),
		slog.Int("files", len(plan.Filenames)),
		slog.String("search", plan.Search),
	)
	return plan
}

// Strip removes every occurrence of each value from text, ignoring case,
// and trims the result.
func Strip(text string, values []string) string {
	for _, v := range values {
		if v == "" {
			continue
		}
		text = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(v)).ReplaceAllLiteralString(text, "")
	}
	return strings.TrimSpace(text)
}
