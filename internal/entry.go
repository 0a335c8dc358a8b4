// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/dossier/internal/api"
	"github.com/starford/dossier/internal/indexer"
	"github.com/starford/dossier/internal/mcpserver"
	"github.com/starford/dossier/internal/rag"
	"github.com/starford/dossier/internal/sse"
	"github.com/starford/dossier/internal/watcher"
)

// Run starts the application with the given options: the initial sync, the
// document watcher and the HTTP server.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := newLogger(cfg, app.logOutput)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("documents_path", cfg.Documents.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("provider", cfg.Models.Provider),
		slog.String("rerank_mode", cfg.Rerank.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker, fed by the indexer.
	broker := sse.NewBroker(sse.WithThrottle(2 * time.Second))
	defer broker.Close()

	svc, err := build(ctx, cfg, logger, indexer.WithCallback(broker.PublishDocumentEvent))
	if err != nil {
		return err
	}
	defer svc.Close()

	// Run initial sync.
	stats, err := svc.indexer.Sync(ctx)
	if err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	} else {
		logger.Info("initial sync done",
			slog.Int("indexed", stats.Indexed),
			slog.Int("removed", stats.Removed),
			slog.Int("skipped", stats.Skipped),
			slog.Int("failed", stats.Failed))
	}

	apiRouter := api.NewRouter(api.Deps{
		Pipeline:      svc.pipeline,
		Conversations: svc.convs,
		Metadata:      svc.meta,
		Documents:     svc.docs,
	}, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := svc.db.SQL().PingContext(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	w := watcher.New(svc.store.Root(), svc.indexer,
		watcher.WithConfig(cfg.Watcher.watcher()),
		watcher.WithLogger(logger),
	)

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start document watcher.
	g.Go(func() error {
		if err := w.Run(gCtx); err != nil {
			return fmt.Errorf("watcher: %w", err)
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Stop the watcher on a signal too.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown")

// Reindex runs one full synchronisation of the index with the document root.
func Reindex(ctx context.Context, opts ...Option) (indexer.SyncStats, error) {
	app, err := newApplication(opts)
	if err != nil {
		return indexer.SyncStats{}, err
	}
	logger := newLogger(app.config, app.logOutput)

	svc, err := build(ctx, app.config, logger)
	if err != nil {
		return indexer.SyncStats{}, err
	}
	defer svc.Close()

	return svc.indexer.Sync(ctx)
}

// Ask answers one question and writes the NDJSON stream to out.
func Ask(ctx context.Context, question string, out io.Writer, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(app.config, app.logOutput)

	svc, err := build(ctx, app.config, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	w := rag.NewWriter(out)
	ret, err := svc.pipeline.Retrieve(ctx, question)
	if err != nil {
		svc.pipeline.Fail(w, err)
		return err
	}
	return svc.pipeline.Stream(ctx, rag.Request{Query: question}, ret, w)
}

// ServeMCP exposes the document tools over MCP on stdin/stdout.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(app.config, app.logOutput)

	svc, err := build(ctx, app.config, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	logger.Info("MCP server starting on stdio")
	return mcpserver.New(svc.pipeline, svc.meta, svc.docs).ServeStdio()
}
