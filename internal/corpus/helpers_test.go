package corpus

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"docqa/internal/storage"
	"docqa/internal/vectorstore"
)

const testVectorSize = 4

// fakeEmbedder derives a small deterministic vector from the text.
type fakeEmbedder struct {
	mu     sync.Mutex
	calls  int
	failAt int // 1-based call that fails, 0 never
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if f.failAt > 0 && call >= f.failAt {
		return nil, errors.New("embedding service unavailable")
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		lower := strings.ToLower(t)
		out[i] = []float32{
			float32(len(t)%7) + 1,
			float32(strings.Count(lower, "install")),
			float32(strings.Count(lower, "\n")),
			1,
		}
	}
	return out, nil
}

type staticSource struct {
	docs []Document
	err  error
}

func (s *staticSource) Load(context.Context) ([]Document, error) {
	return s.docs, s.err
}

type testEnv struct {
	repo  *storage.CorpusRepo
	store *vectorstore.BoltStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	db, err := storage.New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, storage.Migrate(db))

	store, err := vectorstore.NewBoltStore(filepath.Join(dir, "vectors.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return &testEnv{repo: storage.NewCorpusRepo(db), store: store}
}

func (e *testEnv) builder(embedder Embedder) *Builder {
	return NewBuilder(embedder, e.store, e.repo, BuilderConfig{
		CollectionPrefix: "docs",
		VectorSize:       testVectorSize,
		BatchSize:        2,
	})
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

var testDocs = []Document{
	{Path: "guide.md", Title: "Guide", Text: "# Guide\nIntro\n## Install\nRun install\n", Hash: "h1"},
	{Path: "empty.md", Title: "Empty", Text: "no headings here\n", Hash: "h2"},
	{Path: "faq.md", Title: "FAQ", Text: "# FAQ\n## Why\nBecause\n### Really\nYes\n", Hash: "h3"},
}
