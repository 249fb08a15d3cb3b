// Package app wires configuration into the running components shared by the
// API server and the command line tool.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"docqa/internal/config"
	"docqa/internal/contextutil"
	"docqa/internal/corpus"
	"docqa/internal/llm"
	"docqa/internal/rag"
	"docqa/internal/service"
	"docqa/internal/storage"
	"docqa/internal/vectorstore"
)

// App holds the wired components. Close releases the database and the vector backend.
type App struct {
	Config      *config.Config
	DB          *sql.DB
	VectorStore vectorstore.VectorStore
	Embedder    *llm.EmbeddingsClient
	LLM         *llm.Client
	Loader      *corpus.Loader
	Corpus      *corpus.Manager
	Engine      rag.Engine
	Chat        service.ChatService

	closers []io.Closer
}

// NewLogger builds the process logger from the configured level and format.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// New opens storage and the vector backend and builds every component.
// The corpus is not restored; callers decide when to Restore or Rebuild.
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	logger := contextutil.LoggerFromContext(ctx)
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.DB, err = storage.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.closers = append(a.closers, a.DB)
	if err := storage.Migrate(a.DB); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.InfoContext(ctx, "database initialized", "path", cfg.DBPath)

	switch cfg.VectorBackend {
	case config.BackendBolt:
		store, err := vectorstore.NewBoltStore(cfg.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open bolt store: %w", err)
		}
		a.VectorStore = store
		a.closers = append(a.closers, store)
		logger.InfoContext(ctx, "vector store initialized", "backend", cfg.VectorBackend, "path", cfg.BoltPath)
	default:
		store, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
		}
		a.VectorStore = store
		a.closers = append(a.closers, store)
		logger.InfoContext(ctx, "vector store initialized", "backend", cfg.VectorBackend, "url", cfg.QdrantURL)
	}

	a.Embedder = llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.LLMAPIKey, cfg.EmbeddingModelName, cfg.VectorSize, cfg.EmbeddingBatchSize)
	a.LLM = llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName)

	a.Loader, err = corpus.NewLoader(cfg.DocsPath, cfg.DocsInclude)
	if err != nil {
		return nil, err
	}

	corpusRepo := storage.NewCorpusRepo(a.DB)
	builder := corpus.NewBuilder(a.Embedder, a.VectorStore, corpusRepo, corpus.BuilderConfig{
		CollectionPrefix: cfg.CollectionPrefix,
		VectorSize:       cfg.VectorSize,
		BatchSize:        cfg.EmbeddingBatchSize,
	})
	a.Corpus = corpus.NewManager(a.Loader, builder, corpusRepo, a.VectorStore)

	a.Engine = rag.NewEngine(a.Embedder, a.VectorStore, a.Corpus, cfg.SearchCandidates)
	a.Chat = service.NewChatService(a.LLM, a.Engine, storage.NewHistoryRepo(a.DB), service.ChatConfig{
		ResultLimit: cfg.ChatResultLimit,
		MaxHistory:  cfg.MaxHistoryLength,
	})

	return a, nil
}

// ValidateEmbedder embeds a probe text and checks the vector size against VECTOR_SIZE.
func (a *App) ValidateEmbedder(ctx context.Context) error {
	vectors, err := a.Embedder.EmbedTexts(ctx, []string{"test"})
	if err != nil {
		return fmt.Errorf("failed to validate embedding client: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) != a.Config.VectorSize {
		got := 0
		if len(vectors) > 0 {
			got = len(vectors[0])
		}
		return fmt.Errorf("embedding vector size mismatch: expected %d, got %d", a.Config.VectorSize, got)
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
