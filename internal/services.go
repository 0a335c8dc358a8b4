package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/starford/dossier/internal/chunk"
	"github.com/starford/dossier/internal/conversation"
	"github.com/starford/dossier/internal/docservice"
	"github.com/starford/dossier/internal/extract"
	"github.com/starford/dossier/internal/index"
	"github.com/starford/dossier/internal/indexer"
	"github.com/starford/dossier/internal/llm"
	"github.com/starford/dossier/internal/llm/provider"
	"github.com/starford/dossier/internal/metastore"
	"github.com/starford/dossier/internal/query"
	"github.com/starford/dossier/internal/rag"
	"github.com/starford/dossier/internal/rerank"
	"github.com/starford/dossier/internal/storage"
)

// services holds every long-lived component. They are built once per
// command and passed explicitly; nothing is a package-level singleton.
type services struct {
	cfg    *Config
	logger *slog.Logger

	store    storage.Provider
	db       *index.DB
	mirror   *metastore.Mirror
	meta     *metastore.Store
	convs    *conversation.Store
	pipeline *rag.Pipeline
	indexer  *indexer.Indexer
	docs     *docservice.Service
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, errors.New("config is required")
	}
	return app, nil
}

func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// build opens storage, the index and the model clients and wires the
// retrieval and indexing components on top of them. extra is appended to
// the indexer options.
func build(ctx context.Context, cfg *Config, logger *slog.Logger, extra ...indexer.Option) (*services, error) {
	s := &services{cfg: cfg, logger: logger}

	if err := os.MkdirAll(cfg.Documents.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create documents dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Documents.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	s.store = store

	m, err := provider.New(ctx, provider.Config{
		Provider:        cfg.Models.Provider,
		BaseURL:         cfg.Models.BaseURL,
		APIKey:          cfg.Models.APIKey,
		EmbeddingModel:  cfg.Models.EmbeddingModel,
		GenerationModel: cfg.Models.GenerationModel,
		Timeout:         cfg.Models.Timeout,
		EmbedRPS:        cfg.Models.EmbedRPS,
		EmbedBatch:      cfg.Models.EmbedBatch,
		Options:         cfg.Generation.options(),
	})
	if err != nil {
		return nil, fmt.Errorf("init models: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path, index.WithEmbedder(m.Embedder))
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}
	s.db = db

	var metaOpts []metastore.Option
	if cfg.Metadata.JSONPath != "" {
		s.mirror = metastore.NewMirror(cfg.Metadata.JSONPath, logger)
		metaOpts = append(metaOpts, metastore.WithMirror(s.mirror))
	}
	s.meta = metastore.New(db, logger, metaOpts...)
	if s.mirror != nil {
		s.mirror.Attach(s.meta)
		n, err := s.meta.ImportJSON(ctx, cfg.Metadata.JSONPath)
		if err != nil {
			logger.Warn("metadata import failed", slog.String("path", cfg.Metadata.JSONPath), slog.String("error", err.Error()))
		} else if n > 0 {
			logger.Info("metadata imported", slog.String("path", cfg.Metadata.JSONPath), slog.Int("records", n))
		}
	}

	s.convs, err = conversation.New(ctx, db.SQL())
	if err != nil {
		s.Close()
		return nil, err
	}

	tok := chunk.WordTokenizer{}
	planner := query.NewPlanner(extract.NewQuery(m.Generator), s.meta, logger)
	s.pipeline = rag.New(db, planner, newReranker(cfg.Rerank, cfg.Models, m.Generator), m.Generator,
		rag.WithConfig(cfg.Retrieval.rag()),
		rag.WithTokenizer(tok),
		rag.WithConversations(s.convs),
		rag.WithLogger(logger),
	)

	ixOpts := []indexer.Option{
		indexer.WithExtractor(extract.NewDocument(m.Generator)),
		indexer.WithSplitter(chunk.NewSplitter(
			chunk.WithSize(cfg.Indexer.ChunkSize),
			chunk.WithOverlap(cfg.Indexer.ChunkOverlap),
			chunk.WithTokenizer(tok),
		)),
		indexer.WithPurgeStale(cfg.Indexer.PurgeStale),
		indexer.WithLogger(logger),
	}
	s.indexer = indexer.New(db, db, s.meta, store, append(ixOpts, extra...)...)

	s.docs = docservice.NewService(store, db)
	return s, nil
}

func newReranker(cfg RerankConfig, models ModelsConfig, gen llm.Generator) rerank.Reranker {
	switch cfg.Mode {
	case RerankLLM:
		return rerank.NewLLM(gen, cfg.Workers)
	case RerankKeyword:
		return rerank.Keyword{}
	default:
		return rerank.NewCrossEncoder(cfg.URL, cfg.Model, models.Timeout)
	}
}

// Close flushes the metadata mirror and closes the database.
func (s *services) Close() {
	if s.mirror != nil {
		s.mirror.Close()
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("close index failed", slog.String("error", err.Error()))
		}
	}
}
