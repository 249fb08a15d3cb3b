package rag

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"docqa/internal/chunker"
	"docqa/internal/corpus"
	"docqa/internal/service"
	"docqa/internal/vectorstore"
	"docqa/internal/vectorstore/mocks"
)

type mapEmbedder struct {
	vectors map[string][]float32
	err     error
	batches [][]string
}

func (m *mapEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	m.batches = append(m.batches, texts)
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := m.vectors[t]
		if !ok {
			v = []float32{0, 1}
		}
		out[i] = v
	}
	return out, nil
}

var _ SnapshotViewer = (*corpus.Manager)(nil)

type fixedViewer struct {
	snap *corpus.Snapshot
}

func (v fixedViewer) View(ctx context.Context, fn func(ctx context.Context, snap *corpus.Snapshot) error) error {
	if v.snap == nil {
		return corpus.ErrNotReady
	}
	return fn(ctx, v.snap)
}

// unit returns a 2-d unit vector whose cosine with (1, 0) is sim.
func unit(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

func introSetupSnapshot() *corpus.Snapshot {
	chunks := chunker.Split("# Intro\nHello world\n## Setup\nRun install\n")
	entries := []corpus.Entry{
		{ID: "c0", Document: "intro.md", Chunk: chunks[0]},
		{ID: "c1", Document: "intro.md", Chunk: chunks[1]},
		{ID: "c2", Document: "intro.md", Chunk: chunks[2]},
	}
	return corpus.NewSnapshot("gen-1", "docs_1", time.Unix(0, 1), nil, entries)
}

func introSetupEmbedder() *mapEmbedder {
	return &mapEmbedder{vectors: map[string][]float32{
		"setup":                {1, 0},
		"Hello world":          unit(0.2),
		"## Setup\nRun install": unit(0.5),
	}}
}

func TestEngine_SearchDetailed(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockVectorStore(ctrl)
	embedder := introSetupEmbedder()

	store.EXPECT().
		Search(gomock.Any(), "docs_1", []float32{1, 0}, 10).
		Return([]vectorstore.SearchResult{
			{PointID: "c2", Score: 0.5},
			{PointID: "ghost", Score: 0.45},
			{PointID: "c1", Score: 0.5},
			{PointID: "c0", Score: 0.2},
		}, nil)

	engine := NewEngine(embedder, store, fixedViewer{snap: introSetupSnapshot()}, 0)
	results, err := engine.SearchDetailed(context.Background(), "Setup", 3)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "## Setup\nRun install", results[0].Chunk.Text)
	assert.Equal(t, "Intro - Setup", results[0].Chunk.TitlePath)
	assert.True(t, results[0].Lexical)
	assert.InDelta(t, 0.70, results[0].Score, 1e-6)

	// Question first, then the resolved candidates in one batch.
	require.Len(t, embedder.batches, 2)
	assert.Equal(t, []string{"setup"}, embedder.batches[0])
	assert.Len(t, embedder.batches[1], 3)
}

func TestEngine_Search(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockVectorStore(ctrl)

	store.EXPECT().
		Search(gomock.Any(), "docs_1", gomock.Any(), 5).
		Return([]vectorstore.SearchResult{{PointID: "c1"}, {PointID: "c2"}}, nil)

	engine := NewEngine(introSetupEmbedder(), store, fixedViewer{snap: introSetupSnapshot()}, 5)
	texts, err := engine.Search(context.Background(), "setup", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"## Setup\nRun install"}, texts)
}

func TestEngine_NoHits(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockVectorStore(ctrl)
	embedder := introSetupEmbedder()

	store.EXPECT().Search(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)

	engine := NewEngine(embedder, store, fixedViewer{snap: introSetupSnapshot()}, 0)
	texts, err := engine.Search(context.Background(), "setup", 3)
	require.NoError(t, err)
	assert.Empty(t, texts)
	assert.Len(t, embedder.batches, 1)
}

func TestEngine_Errors(t *testing.T) {
	tests := []struct {
		name     string
		question string
		limit    int
		viewer   fixedViewer
		embedErr error
		setup    func(store *mocks.MockVectorStore)
		check    func(t *testing.T, err error)
	}{
		{
			name:     "blank question",
			question: "   ",
			limit:    3,
			viewer:   fixedViewer{snap: introSetupSnapshot()},
			check: func(t *testing.T, err error) {
				var validationErr *service.ValidationError
				require.ErrorAs(t, err, &validationErr)
				assert.Equal(t, "question", validationErr.Field)
			},
		},
		{
			name:     "negative limit",
			question: "setup",
			limit:    -1,
			viewer:   fixedViewer{snap: introSetupSnapshot()},
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, service.ErrInvalidInput))
			},
		},
		{
			name:     "corpus not ready",
			question: "setup",
			limit:    3,
			viewer:   fixedViewer{},
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, service.ErrCorpusNotReady))
			},
		},
		{
			name:     "embedding failure",
			question: "setup",
			limit:    3,
			viewer:   fixedViewer{snap: introSetupSnapshot()},
			embedErr: errors.New("connection refused"),
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, service.ErrExternalService))
			},
		},
		{
			name:     "vector store failure",
			question: "setup",
			limit:    3,
			viewer:   fixedViewer{snap: introSetupSnapshot()},
			setup: func(store *mocks.MockVectorStore) {
				store.EXPECT().Search(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
					Return(nil, errors.New("qdrant down"))
			},
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, service.ErrExternalService))
				assert.Contains(t, err.Error(), "qdrant down")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			store := mocks.NewMockVectorStore(ctrl)
			if tt.setup != nil {
				tt.setup(store)
			}
			embedder := introSetupEmbedder()
			embedder.err = tt.embedErr

			_, err := NewEngine(embedder, store, tt.viewer, 0).SearchDetailed(context.Background(), tt.question, tt.limit)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

// trackingViewer records whether a View callback is running.
type trackingViewer struct {
	fixedViewer
	inside bool
}

func (v *trackingViewer) View(ctx context.Context, fn func(ctx context.Context, snap *corpus.Snapshot) error) error {
	v.inside = true
	defer func() { v.inside = false }()
	return v.fixedViewer.View(ctx, fn)
}

// viewAwareEmbedder notes, per call, whether the snapshot was held.
type viewAwareEmbedder struct {
	*mapEmbedder
	viewer     *trackingViewer
	heldInView []bool
}

func (e *viewAwareEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.heldInView = append(e.heldInView, e.viewer.inside)
	return e.mapEmbedder.EmbedTexts(ctx, texts)
}

func TestEngine_EmbedsOutsideSnapshotView(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockVectorStore(ctrl)
	viewer := &trackingViewer{fixedViewer: fixedViewer{snap: introSetupSnapshot()}}
	embedder := &viewAwareEmbedder{mapEmbedder: introSetupEmbedder(), viewer: viewer}

	store.EXPECT().
		Search(gomock.Any(), "docs_1", gomock.Any(), 10).
		DoAndReturn(func(context.Context, string, []float32, int) ([]vectorstore.SearchResult, error) {
			assert.True(t, viewer.inside, "index query must run against the held snapshot")
			return []vectorstore.SearchResult{{PointID: "c1"}, {PointID: "c2"}}, nil
		})

	engine := NewEngine(embedder, store, viewer, 0)
	texts, err := engine.Search(context.Background(), "setup", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"## Setup\nRun install"}, texts)

	// Question and candidate batch are both embedded without holding the snapshot.
	assert.Equal(t, []bool{false, false}, embedder.heldInView)
}
