// Package rag retrieves the chunks of the active corpus that best answer a question.
package rag

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_engine.go -package=mocks docqa/internal/rag Engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"docqa/internal/contextutil"
	"docqa/internal/corpus"
	"docqa/internal/ranker"
	"docqa/internal/service"
	"docqa/internal/vectorstore"
)

// DefaultCandidates is the number of nearest neighbours fetched before re-ranking.
const DefaultCandidates = 10

// Engine provides retrieval over the active corpus.
type Engine interface {
	// Search returns up to limit chunk texts ranked for question.
	Search(ctx context.Context, question string, limit int) ([]string, error)
	// SearchDetailed is Search with the scoring breakdown of each result.
	SearchDetailed(ctx context.Context, question string, limit int) ([]ranker.Result, error)
}

// SnapshotViewer runs a function against a stable corpus snapshot.
// *corpus.Manager implements it.
type SnapshotViewer interface {
	View(ctx context.Context, fn func(ctx context.Context, snap *corpus.Snapshot) error) error
}

// ragEngine implements the Engine interface.
type ragEngine struct {
	embedder   corpus.Embedder
	store      vectorstore.VectorStore
	corpus     SnapshotViewer
	candidates int
}

// NewEngine creates a new retrieval engine. A non-positive candidates uses DefaultCandidates.
func NewEngine(embedder corpus.Embedder, store vectorstore.VectorStore, viewer SnapshotViewer, candidates int) Engine {
	if candidates <= 0 {
		candidates = DefaultCandidates
	}
	return &ragEngine{
		embedder:   embedder,
		store:      store,
		corpus:     viewer,
		candidates: candidates,
	}
}

// Search returns up to limit chunk texts ranked for question.
func (e *ragEngine) Search(ctx context.Context, question string, limit int) ([]string, error) {
	results, err := e.SearchDetailed(ctx, question, limit)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(results))
	for _, r := range results {
		texts = append(texts, r.Chunk.Text)
	}
	return texts, nil
}

// SearchDetailed embeds the question, fetches the nearest chunks of the active
// snapshot, scores them against the question by cosine similarity of freshly
// embedded chunk texts and hands them to the ranker.
func (e *ragEngine) SearchDetailed(ctx context.Context, question string, limit int) ([]ranker.Result, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if strings.TrimSpace(question) == "" {
		return nil, &service.ValidationError{Field: "question", Message: "question is required"}
	}
	if limit < 0 {
		return nil, &service.ValidationError{Field: "limit", Message: fmt.Sprintf("must not be negative, got %d", limit)}
	}

	query := strings.ToLower(question)
	vectors, err := e.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, service.ExternalError(err, "failed to embed question")
	}
	if len(vectors) == 0 {
		return nil, service.ExternalError(errors.New("no embedding returned"), "failed to embed question")
	}
	queryVector := vectors[0]

	// Only the index query and ID resolution need the snapshot. Entries are
	// copies, so embedding and ranking run after the read lock is released.
	var entries []corpus.Entry
	err = e.corpus.View(ctx, func(ctx context.Context, snap *corpus.Snapshot) error {
		hits, err := e.store.Search(ctx, snap.Collection, queryVector, e.candidates)
		if err != nil {
			return service.ExternalError(err, "failed to search vector store")
		}

		entries = make([]corpus.Entry, 0, len(hits))
		for _, hit := range hits {
			entry, ok := snap.Lookup(hit.PointID)
			if !ok {
				logger.DebugContext(ctx, "skipping unknown point", "point_id", hit.PointID, "collection", snap.Collection)
				continue
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, translateError(err)
	}

	candidates, err := e.candidatesFor(ctx, queryVector, entries)
	if err != nil {
		return nil, err
	}

	results, err := ranker.RankDetailed(query, candidates, limit)
	if err != nil {
		return nil, translateError(err)
	}

	logger.InfoContext(ctx, "search completed", "limit", limit, "results", len(results))
	return results, nil
}

// candidatesFor re-embeds the entries' texts in one batch and pairs each with
// its cosine similarity to the query vector.
func (e *ragEngine) candidatesFor(ctx context.Context, queryVector []float32, entries []corpus.Entry) ([]ranker.Candidate, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	texts := make([]string, len(entries))
	for i, entry := range entries {
		texts[i] = entry.Chunk.Text
	}
	embedded, err := e.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, service.ExternalError(err, "failed to embed candidates")
	}
	if len(embedded) != len(entries) {
		return nil, service.ExternalError(
			fmt.Errorf("expected %d embeddings, got %d", len(entries), len(embedded)),
			"failed to embed candidates")
	}

	candidates := make([]ranker.Candidate, len(entries))
	for i, entry := range entries {
		candidates[i] = ranker.Candidate{
			Chunk:         entry.Chunk,
			RawSimilarity: ranker.CosineSimilarity(queryVector, embedded[i]),
		}
	}
	return candidates, nil
}

func translateError(err error) error {
	if errors.Is(err, corpus.ErrNotReady) {
		return service.ErrCorpusNotReady
	}
	var inputErr *ranker.InputError
	if errors.As(err, &inputErr) {
		return &service.ValidationError{Field: inputErr.Field, Message: inputErr.Message}
	}
	return err
}
