package corpus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"docqa/internal/chunker"
	"docqa/internal/contextutil"
	"docqa/internal/storage"
	"docqa/internal/vectorstore"
)

// ErrNotReady is returned when no corpus generation has been built or restored.
var ErrNotReady = errors.New("corpus not ready")

// DocumentSource yields the documents of the next generation.
type DocumentSource interface {
	Load(ctx context.Context) ([]Document, error)
}

// Status reports the state of the manager.
type Status struct {
	Building      bool
	LastRebuildAt time.Time
	LastError     string
}

// Manager owns the active snapshot. Queries run under the read lock through View;
// a rebuild builds without the lock and only takes the write lock for the swap,
// so no query ever sees chunks of one generation with vectors of another.
type Manager struct {
	source  DocumentSource
	builder *Builder
	repo    storage.CorpusStore
	store   vectorstore.VectorStore

	mu      sync.RWMutex
	current *Snapshot

	rebuildMu sync.Mutex

	statusMu sync.Mutex
	status   Status
}

// NewManager creates a new Manager with no active snapshot.
func NewManager(source DocumentSource, builder *Builder, repo storage.CorpusStore, store vectorstore.VectorStore) *Manager {
	return &Manager{
		source:  source,
		builder: builder,
		repo:    repo,
		store:   store,
	}
}

// Current returns the active snapshot, or nil before the first build.
func (m *Manager) Current() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// View runs fn against the active snapshot while holding the read lock, so the
// snapshot's collection stays in place until fn returns.
func (m *Manager) View(ctx context.Context, fn func(ctx context.Context, snap *Snapshot) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return ErrNotReady
	}
	return fn(ctx, m.current)
}

// Status returns the rebuild status.
func (m *Manager) Status() Status {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	return m.status
}

// Rebuild loads all documents and replaces the active snapshot with a new
// generation. Rebuilds are serialised. On failure the active snapshot is kept.
func (m *Manager) Rebuild(ctx context.Context, progress ProgressFunc) (*Snapshot, error) {
	m.rebuildMu.Lock()
	defer m.rebuildMu.Unlock()

	m.setStatus(func(s *Status) { s.Building = true })
	snap, err := m.rebuild(ctx, progress)
	m.setStatus(func(s *Status) {
		s.Building = false
		s.LastRebuildAt = time.Now()
		s.LastError = ""
		if err != nil {
			s.LastError = err.Error()
		}
	})
	return snap, err
}

func (m *Manager) rebuild(ctx context.Context, progress ProgressFunc) (*Snapshot, error) {
	logger := contextutil.LoggerFromContext(ctx)

	docs, err := m.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}

	snap, err := m.builder.Build(ctx, docs, progress)
	if err != nil {
		return nil, err
	}

	if err := m.repo.Activate(ctx, snap.GenerationID); err != nil {
		m.builder.discard(ctx, snap.GenerationID, snap.Collection)
		return nil, fmt.Errorf("failed to activate generation: %w", err)
	}

	previous := m.swap(snap)
	if previous != nil {
		m.retire(ctx, previous.GenerationID, previous.Collection)
	}

	logger.InfoContext(ctx, "corpus rebuilt", "generation", snap.GenerationID, "chunks", snap.Len())
	return snap, nil
}

// Restore reinstates the last active generation recorded in SQLite. When there
// is none, or its collection is gone, it rebuilds instead. Afterwards it removes
// generations left behind by interrupted builds or failed cleanups.
func (m *Manager) Restore(ctx context.Context) (*Snapshot, error) {
	snap, err := m.restore(ctx)
	if err != nil {
		return nil, err
	}

	m.rebuildMu.Lock()
	defer m.rebuildMu.Unlock()
	m.sweep(ctx)
	return snap, nil
}

func (m *Manager) restore(ctx context.Context) (*Snapshot, error) {
	logger := contextutil.LoggerFromContext(ctx)

	gen, err := m.repo.Active(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		logger.InfoContext(ctx, "no active generation, building corpus")
		return m.Rebuild(ctx, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active generation: %w", err)
	}

	exists, err := m.store.CollectionExists(ctx, gen.Collection)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		logger.WarnContext(ctx, "active generation has no collection, rebuilding", "generation", gen.ID, "collection", gen.Collection)
		if err := m.repo.Delete(ctx, gen.ID); err != nil {
			logger.WarnContext(ctx, "failed to delete stale generation", "generation", gen.ID, "error", err)
		}
		return m.Rebuild(ctx, nil)
	}

	snap, err := m.load(ctx, gen)
	if err != nil {
		return nil, err
	}

	m.rebuildMu.Lock()
	defer m.rebuildMu.Unlock()
	if current := m.Current(); current != nil {
		// A rebuild finished while we were loading. It superseded the
		// generation we loaded without ever serving it, so nobody retired it.
		if current.GenerationID != snap.GenerationID {
			m.retire(ctx, snap.GenerationID, snap.Collection)
		}
		return current, nil
	}
	m.swap(snap)

	logger.InfoContext(ctx, "restored corpus generation", "generation", gen.ID, "chunks", snap.Len())
	return snap, nil
}

// sweep retires every generation that is not active. Callers hold rebuildMu,
// so no build is in flight and every "building" generation is an orphan.
func (m *Manager) sweep(ctx context.Context) {
	logger := contextutil.LoggerFromContext(ctx)

	gens, err := m.repo.Inactive(ctx)
	if err != nil {
		logger.WarnContext(ctx, "failed to list inactive generations", "error", err)
		return
	}

	current := m.Current()
	for _, gen := range gens {
		if current != nil && gen.ID == current.GenerationID {
			continue
		}
		logger.InfoContext(ctx, "removing leftover generation", "generation", gen.ID, "status", gen.Status, "collection", gen.Collection)
		m.retire(ctx, gen.ID, gen.Collection)
	}
}

func (m *Manager) load(ctx context.Context, gen *storage.Generation) (*Snapshot, error) {
	docs, err := m.repo.LoadDocuments(ctx, gen.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	chunks, err := m.repo.LoadChunks(ctx, gen.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}

	paths := make(map[string]string, len(docs))
	infos := make([]DocumentInfo, len(docs))
	for i, d := range docs {
		paths[d.ID] = d.Path
		infos[i] = DocumentInfo{Path: d.Path, Title: d.Title, Hash: d.Hash, ChunkCount: d.ChunkCount}
	}

	entries := make([]Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = Entry{
			ID:       c.ID,
			Document: paths[c.DocumentID],
			Chunk: chunker.Chunk{
				Text:      c.Text,
				TitlePath: c.TitlePath,
				Level:     chunker.Level(c.Level),
			},
		}
	}

	return NewSnapshot(gen.ID, gen.Collection, gen.BuiltAt, infos, entries), nil
}

// swap installs snap and returns the snapshot it replaced. It waits for
// in-flight View calls to finish.
func (m *Manager) swap(snap *Snapshot) *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	previous := m.current
	m.current = snap
	return previous
}

// retire drops a replaced generation. Failures leave garbage that the next
// Restore sweeps.
func (m *Manager) retire(ctx context.Context, generationID, collection string) {
	logger := contextutil.LoggerFromContext(ctx)
	cleanupCtx := context.WithoutCancel(ctx)

	if err := m.store.DropCollection(cleanupCtx, collection); err != nil {
		logger.WarnContext(ctx, "failed to drop retired collection", "collection", collection, "error", err)
		return
	}
	if err := m.repo.Delete(cleanupCtx, generationID); err != nil {
		logger.WarnContext(ctx, "failed to delete retired generation", "generation", generationID, "error", err)
	}
}

func (m *Manager) setStatus(update func(*Status)) {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	update(&m.status)
}
