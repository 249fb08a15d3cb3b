package corpus

import (
	"time"

	"docqa/internal/chunker"
)

// Entry is a chunk of the corpus together with the vector point that indexes it.
type Entry struct {
	ID       string // Vector point ID
	Document string // Source document path
	Chunk    chunker.Chunk
}

// DocumentInfo summarises a document of a snapshot.
type DocumentInfo struct {
	Path       string `json:"path"`
	Title      string `json:"title"`
	Hash       string `json:"hash"`
	ChunkCount int    `json:"chunk_count"`
}

// Snapshot is one immutable corpus generation: its chunks and the collection
// holding their vectors. Point IDs resolve to chunks through the entry map
// built while the points were inserted.
type Snapshot struct {
	GenerationID string
	Collection   string
	BuiltAt      time.Time
	Documents    []DocumentInfo

	order   []string
	entries map[string]Entry
}

// NewSnapshot creates a snapshot whose entries keep the given order.
func NewSnapshot(generationID, collection string, builtAt time.Time, docs []DocumentInfo, entries []Entry) *Snapshot {
	s := &Snapshot{
		GenerationID: generationID,
		Collection:   collection,
		BuiltAt:      builtAt,
		Documents:    docs,
		order:        make([]string, 0, len(entries)),
		entries:      make(map[string]Entry, len(entries)),
	}
	for _, e := range entries {
		s.order = append(s.order, e.ID)
		s.entries[e.ID] = e
	}
	return s
}

// Lookup resolves a vector point ID to its entry.
func (s *Snapshot) Lookup(id string) (Entry, bool) {
	e, ok := s.entries[id]
	return e, ok
}

// Len returns the number of chunks.
func (s *Snapshot) Len() int {
	return len(s.order)
}

// Entries returns the chunks in insertion order.
func (s *Snapshot) Entries() []Entry {
	out := make([]Entry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entries[id])
	}
	return out
}
