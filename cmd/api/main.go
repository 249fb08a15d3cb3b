package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docqa/internal/app"
	"docqa/internal/config"
	"docqa/internal/contextutil"
	"docqa/internal/corpus"
	"docqa/internal/http"
)

//go:generate swagger generate spec -o swagger.json

// General API information
//
// This API answers questions about a folder of Markdown documents. Documents are
// split along their headings, indexed as vectors and re-ranked with heading-aware
// boosts; the best sections are returned directly or used as chat context.
//
// swagger:meta
//
// ---
// swagger: '2.0'
// info:
//   title: DocQA API
//   description: |
//     Retrieval over heading-aware Markdown chunks, with a retrieval-augmented chat on top.
//     The corpus is rebuilt on demand or when the documents folder changes.
//   version: 1.0.0
// schemes:
//   - http
//   - https
// consumes:
//   - application/json
// produces:
//   - application/json

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := app.NewLogger(cfg, os.Stdout)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = contextutil.WithLogger(ctx, logger)

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer func() {
		_ = a.Close()
	}()

	// Validate embedding client vector size (fail-fast)
	if err := a.ValidateEmbedder(ctx); err != nil {
		log.Fatalf("%v", err)
	}
	slog.Info("Embedding client validated", "vector_size", cfg.VectorSize)

	router := http.NewRouter(&http.Deps{
		ChatService:        a.Chat,
		Engine:             a.Engine,
		Corpus:             a.Corpus,
		VectorStore:        a.VectorStore,
		EmbeddingModel:     cfg.EmbeddingModelName,
		SearchDefaultLimit: cfg.SearchResultLimit,
		SearchMaxLimit:     cfg.SearchMaxResultLimit,
	})

	// Restore the last generation, or build one, after the router is ready.
	// Until then search and health report the corpus as not ready.
	go func() {
		slog.Info("Restoring corpus", "docs_path", a.Loader.Root())
		snap, err := a.Corpus.Restore(ctx)
		if err != nil {
			slog.Error("Corpus restore failed", "error", err)
			return
		}
		slog.Info("Corpus ready", "generation", snap.GenerationID, "chunks", snap.Len())
	}()

	if cfg.DocsWatch {
		watcher := corpus.NewWatcher(a.Loader, corpus.DefaultDebounce, func(ctx context.Context) {
			if _, err := a.Corpus.Rebuild(ctx, nil); err != nil {
				slog.Error("Corpus rebuild after change failed", "error", err)
			}
		})
		go func() {
			if err := watcher.Run(ctx); err != nil {
				slog.Error("Document watcher stopped", "error", err)
			}
		}()
	}

	addr := ":" + cfg.APIPort
	server := &nethttp.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		slog.Info("Shutting down API server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Graceful shutdown failed", "error", err)
		}
	}()

	slog.Info("Starting API server", "addr", addr)
	slog.Debug("LLM configuration", "base_url", cfg.LLMBaseURL, "model", cfg.LLMModelName)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		log.Fatalf("API server failed to start: %v", err)
	}
}
