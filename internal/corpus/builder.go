package corpus

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"docqa/internal/chunker"
	"docqa/internal/contextutil"
	"docqa/internal/storage"
	"docqa/internal/vectorstore"
)

const defaultBuildBatchSize = 32

// Embedder maps texts to vectors, one per text in input order.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// ProgressFunc is called after each embedded batch with the number of chunks done so far.
type ProgressFunc func(done, total int)

// BuilderConfig configures a Builder.
type BuilderConfig struct {
	CollectionPrefix string
	VectorSize       int
	BatchSize        int
}

// Builder turns documents into a new corpus generation: chunks, vectors in a
// fresh collection and rows in SQLite. A failed build removes what it created.
type Builder struct {
	embedder Embedder
	store    vectorstore.VectorStore
	repo     storage.CorpusStore
	cfg      BuilderConfig
	now      func() time.Time
}

// NewBuilder creates a new Builder.
func NewBuilder(embedder Embedder, store vectorstore.VectorStore, repo storage.CorpusStore, cfg BuilderConfig) *Builder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBuildBatchSize
	}
	if cfg.CollectionPrefix == "" {
		cfg.CollectionPrefix = "documents"
	}
	return &Builder{
		embedder: embedder,
		store:    store,
		repo:     repo,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Build chunks docs, embeds and indexes the chunks in a new collection and
// records the generation with status "building". The caller activates it.
func (b *Builder) Build(ctx context.Context, docs []Document, progress ProgressFunc) (snap *Snapshot, err error) {
	logger := contextutil.LoggerFromContext(ctx)

	chunked := ChunkAll(docs)

	builtAt := b.now()
	generationID := uuid.New().String()
	collection := fmt.Sprintf("%s_%d", b.cfg.CollectionPrefix, builtAt.UnixNano())

	infos := make([]DocumentInfo, len(docs))
	docRecords := make([]storage.DocumentRecord, len(docs))
	var entries []Entry
	var chunkRecords []storage.ChunkRecord
	for i, doc := range docs {
		docID := uuid.New().String()
		if len(chunked[i]) == 0 {
			logger.WarnContext(ctx, "document produced no chunks", "path", doc.Path)
		}
		infos[i] = DocumentInfo{Path: doc.Path, Title: doc.Title, Hash: doc.Hash, ChunkCount: len(chunked[i])}
		docRecords[i] = storage.DocumentRecord{
			ID:         docID,
			Path:       doc.Path,
			Title:      doc.Title,
			Hash:       doc.Hash,
			ChunkCount: len(chunked[i]),
		}

		for idx, c := range chunked[i] {
			id := uuid.New().String()
			entries = append(entries, Entry{ID: id, Document: doc.Path, Chunk: c})
			chunkRecords = append(chunkRecords, storage.ChunkRecord{
				ID:         id,
				DocumentID: docID,
				Position:   len(chunkRecords),
				ChunkIndex: idx,
				TitlePath:  c.TitlePath,
				Level:      c.Level.String(),
				Text:       c.Text,
			})
		}
	}

	if err := b.store.EnsureCollection(ctx, collection, b.cfg.VectorSize); err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	defer func() {
		if err != nil {
			b.discard(ctx, generationID, collection)
		}
	}()

	if err := b.index(ctx, collection, entries, progress); err != nil {
		return nil, err
	}

	gen := &storage.Generation{
		ID:            generationID,
		Collection:    collection,
		BuiltAt:       builtAt,
		DocumentCount: len(docs),
		ChunkCount:    len(entries),
	}
	if err := b.repo.SaveGeneration(ctx, gen, docRecords, chunkRecords); err != nil {
		return nil, fmt.Errorf("failed to save generation: %w", err)
	}

	logger.InfoContext(ctx, "built corpus generation",
		"generation", generationID, "collection", collection, "documents", len(docs), "chunks", len(entries))
	return NewSnapshot(generationID, collection, builtAt, infos, entries), nil
}

// index embeds entries batch by batch and upserts them in insertion order.
func (b *Builder) index(ctx context.Context, collection string, entries []Entry, progress ProgressFunc) error {
	total := len(entries)
	if progress != nil {
		progress(0, total)
	}

	for start := 0; start < total; start += b.cfg.BatchSize {
		end := min(start+b.cfg.BatchSize, total)
		batch := entries[start:end]

		texts := make([]string, len(batch))
		for i, e := range batch {
			texts[i] = e.Chunk.Text
		}

		vectors, err := b.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed chunks: %w", err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(batch), len(vectors))
		}

		points := make([]vectorstore.Point, len(batch))
		for i, e := range batch {
			points[i] = vectorstore.Point{
				ID:  e.ID,
				Vec: vectors[i],
				Meta: map[string]any{
					"type":     e.Chunk.Level.String(),
					"title":    e.Chunk.TitlePath,
					"document": e.Document,
				},
			}
		}
		if err := b.store.Upsert(ctx, collection, points); err != nil {
			return fmt.Errorf("failed to upsert vectors: %w", err)
		}

		if progress != nil {
			progress(end, total)
		}
	}
	return nil
}

// discard removes a generation's collection and rows. It runs even when ctx is cancelled.
func (b *Builder) discard(ctx context.Context, generationID, collection string) {
	logger := contextutil.LoggerFromContext(ctx)
	cleanupCtx := context.WithoutCancel(ctx)

	if err := b.store.DropCollection(cleanupCtx, collection); err != nil {
		logger.ErrorContext(ctx, "failed to drop collection", "collection", collection, "error", err)
	}
	if err := b.repo.Delete(cleanupCtx, generationID); err != nil {
		logger.ErrorContext(ctx, "failed to delete generation", "generation", generationID, "error", err)
	}
}

// ChunkAll chunks documents concurrently. Each document is chunked sequentially
// and result i belongs to docs[i].
func ChunkAll(docs []Document) [][]chunker.Chunk {
	out := make([][]chunker.Chunk, len(docs))
	if len(docs) == 0 {
		return out
	}

	workers := min(runtime.GOMAXPROCS(0), len(docs))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = chunker.Split(docs[i].Text)
			}
		}()
	}
	for i := range docs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return out
}
