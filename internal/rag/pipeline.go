// Package rag runs the question-answering path: plan, search, rerank,
// assemble a token-budgeted context and stream the generated answer with
// its sources.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/dossier/internal/apperr"
	"github.com/starford/dossier/internal/chunk"
	"github.com/starford/dossier/internal/llm"
	"github.com/starford/dossier/internal/models"
	"github.com/starford/dossier/internal/query"
	"github.com/starford/dossier/internal/rerank"
)

// Searcher is the similarity-search side of the vector index.
type Searcher interface {
	SimilaritySearch(ctx context.Context, query string, k int, filenames []string) ([]models.Candidate, error)
}

// Planner turns a question into a search plan.
type Planner interface {
	Plan(ctx context.Context, question string) query.Plan
}

// Conversations is the part of the conversation store the pipeline needs.
type Conversations interface {
	// LastAttachedFile returns the base name of the most recent file
	// attached to the conversation, or apperr.ErrNotFound.
	LastAttachedFile(ctx context.Context, conversationID string) (string, error)
	// PendingBotMessage returns the id of the latest loading bot message,
	// or apperr.ErrNotFound.
	PendingBotMessage(ctx context.Context, conversationID string) (int64, error)
	SetSources(ctx context.Context, conversationID string, messageID int64, sources []models.Source) error
}

// ErrNoFileSelected is returned by RetrieveFile when the conversation has
// no attached file.
var ErrNoFileSelected = fmt.Errorf("no file selected: %w", apperr.ErrInvalidInput)

// Config holds the retrieval limits.
type Config struct {
	K      int // candidates fetched in question mode
	FileK  int // candidates fetched in single-file mode
	TopN   int // candidates kept after reranking
	Budget int // context token budget
}

// DefaultConfig returns the standard limits.
func DefaultConfig() Config {
	return Config{K: 20, FileK: 10, TopN: 5, Budget: 1500}
}

// Request is one question.
type Request struct {
	Query          string `json:"query_text"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Retrieval is the outcome of the search half of the pipeline.
type Retrieval struct {
	Plan       query.Plan
	Candidates []models.Candidate // reranked top candidates
	Used       []models.Candidate // candidates that made it into Context
	Context    string
}

// Sources returns the attribution records of the used candidates.
func (r Retrieval) Sources() []models.Source {
	out := make([]models.Source, len(r.Used))
	for i, c := range r.Used {
		out[i] = models.SourceFromCandidate(c)
	}
	return out
}

// Pipeline wires the retrieval collaborators together.
type Pipeline struct {
	search   Searcher
	planner  Planner
	reranker rerank.Reranker
	gen      llm.Generator
	tok      chunk.Tokenizer
	convs    Conversations
	cfg      Config
	logger   *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithConfig overrides the retrieval limits. Zero fields keep defaults.
func WithConfig(cfg Config) Option {
	return func(p *Pipeline) {
		def := DefaultConfig()
		if cfg.K <= 0 {
			cfg.K = def.K
		}
		if cfg.FileK <= 0 {
			cfg.FileK = def.FileK
		}
		if cfg.TopN <= 0 {
			cfg.TopN = def.TopN
		}
		if cfg.Budget <= 0 {
			cfg.Budget = def.Budget
		}
		p.cfg = cfg
	}
}

// WithTokenizer sets the tokenizer used for the context budget.
func WithTokenizer(t chunk.Tokenizer) Option {
	return func(p *Pipeline) { p.tok = t }
}

// WithConversations enables single-file mode and source persistence.
func WithConversations(c Conversations) Option {
	return func(p *Pipeline) { p.convs = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New returns a Pipeline.
func New(search Searcher, planner Planner, reranker rerank.Reranker, gen llm.Generator, opts ...Option) *Pipeline {
	p := &Pipeline{
		search:   search,
		planner:  planner,
		reranker: reranker,
		gen:      gen,
		tok:      chunk.WordTokenizer{},
		cfg:      DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Retrieve answers the search half of a question: plan, search the whole
// index or the files the question's metadata selects, rerank against the
// original question and assemble the context.
func (p *Pipeline) Retrieve(ctx context.Context, question string) (Retrieval, error) {
	if strings.TrimSpace(question) == "" {
		return Retrieval{}, fmt.Errorf("rag: empty question: %w", apperr.ErrInvalidInput)
	}
	plan := p.planner.Plan(ctx, question)
	search := plan.Search
	if strings.TrimSpace(search) == "" {
		search = question
	}
	return p.retrieve(ctx, plan, question, search, p.cfg.K, plan.Filenames)
}

// RetrieveFile restricts the search to the last file attached to the
// conversation. Metadata planning is skipped.
func (p *Pipeline) RetrieveFile(ctx context.Context, req Request) (Retrieval, error) {
	if strings.TrimSpace(req.Query) == "" || req.ConversationID == "" {
		return Retrieval{}, fmt.Errorf("rag: incomplete request: %w", apperr.ErrInvalidInput)
	}
	if p.convs == nil {
		return Retrieval{}, fmt.Errorf("rag: no conversation store: %w", apperr.ErrInvalidInput)
	}
	name, err := p.convs.LastAttachedFile(ctx, req.ConversationID)
	if errors.Is(err, apperr.ErrNotFound) {
		return Retrieval{}, ErrNoFileSelected
	}
	if err != nil {
		return Retrieval{}, fmt.Errorf("rag: attached file: %w", err)
	}
	plan := query.Plan{Filenames: []string{name}, Search: req.Query}
	return p.retrieve(ctx, plan, req.Query, req.Query, p.cfg.FileK, plan.Filenames)
}

func (p *Pipeline) retrieve(ctx context.Context, plan query.Plan, question, search string, k int, filenames []string) (Retrieval, error) {
	cands, err := p.search.SimilaritySearch(ctx, search, k, filenames)
	if err != nil {
		return Retrieval{}, fmt.Errorf("rag: search: %w", err)
	}
	top, err := rerank.Apply(ctx, p.reranker, question, cands, p.cfg.TopN)
	if err != nil {
		if ctx.Err() != nil {
			return Retrieval{}, fmt.Errorf("rag: rerank: %w", err)
		}
		// Keep the similarity order when the cross-encoder is unavailable.
		p.logger.Warn("rag: rerank failed, using similarity order", slog.String("error", err.Error()))
		top = rerank.Top(cands, p.cfg.TopN)
	}
	text, used := Assemble(top, p.tok, p.cfg.Budget)
	p.logger.Debug("rag: retrieved",
		slog.Int("candidates", len(cands)),
		slog.Int("kept", len(top)),
		slog.Int("used", len(used)),
		slog.Int("files", len(filenames)),
	)
	return Retrieval{Plan: plan, Candidates: top, Used: used, Context: text}, nil
}

// Stream generates the answer for ret and writes it to w as NDJSON
// fragments, then the sources line when context was used. A generation
// failure becomes one {"error"} line. When the request names a conversation
// with a pending bot message the sources are saved onto it.
//
// If ctx is cancelled (client gone) generation stops and nothing more is
// written.
func (p *Pipeline) Stream(ctx context.Context, req Request, ret Retrieval, w *Writer) error {
	prompt := BuildPrompt(ret.Context, req.Query)
	err := p.gen.Stream(ctx, prompt, w.Response)
	if err != nil {
		if ctx.Err() != nil {
			p.logger.Debug("rag: stream cancelled", slog.String("error", ctx.Err().Error()))
			return ctx.Err()
		}
		p.logger.Error("rag: generation failed", slog.String("error", err.Error()))
		_ = w.Error(err.Error())
		return fmt.Errorf("rag: generate: %w: %w", apperr.ErrGeneration, err)
	}
	if len(ret.Used) == 0 {
		return nil
	}
	sources := ret.Sources()
	if err := w.Sources(sources); err != nil {
		return fmt.Errorf("rag: write sources: %w", err)
	}
	p.saveSources(context.WithoutCancel(ctx), req.ConversationID, sources)
	return nil
}

// Fail reports a retrieval error on an already-open stream.
func (p *Pipeline) Fail(w *Writer, err error) {
	p.logger.Error("rag: retrieval failed", slog.String("error", err.Error()))
	_ = w.Error(err.Error())
}

// Answer runs the whole pipeline and returns the answer text, for callers
// that do not stream.
func (p *Pipeline) Answer(ctx context.Context, question string) (string, []models.Source, error) {
	ret, err := p.Retrieve(ctx, question)
	if err != nil {
		return "", nil, err
	}
	var b strings.Builder
	err = p.gen.Stream(ctx, BuildPrompt(ret.Context, question), func(s string) error {
		b.WriteString(s)
		return nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("rag: generate: %w: %w", apperr.ErrGeneration, err)
	}
	return b.String(), ret.Sources(), nil
}

func (p *Pipeline) saveSources(ctx context.Context, conversationID string, sources []models.Source) {
	if conversationID == "" || p.convs == nil {
		return
	}
	msgID, err := p.convs.PendingBotMessage(ctx, conversationID)
	if errors.Is(err, apperr.ErrNotFound) {
		return
	}
	if err == nil {
		err = p.convs.SetSources(ctx, conversationID, msgID, sources)
	}
	if err != nil {
		p.logger.Warn("rag: save sources failed",
			slog.String("conversation", conversationID),
			slog.String("error", err.Error()),
		)
	}
}
