package corpus

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"unicode/utf8"

	"docqa/internal/chunker"
)

const (
	// ChunkerVersion identifies the chunking rules. Update it when they change.
	ChunkerVersion = "heading-v1"
	// RunesPerToken approximates token counts from rune counts.
	RunesPerToken = 4.0
)

// Stats describes the coverage of a snapshot.
type Stats struct {
	GenerationID      string         `json:"generation_id"`
	Collection        string         `json:"collection"`
	BuiltAt           string         `json:"built_at"`
	DocsProcessed     int            `json:"docs_processed"`
	DocsWithoutChunks []string       `json:"docs_without_chunks,omitempty"`
	Chunks            int            `json:"chunks"`
	ChunksByLevel     map[string]int `json:"chunks_by_level"`
	ChunkTokenStats   TokenStats     `json:"chunk_token_stats"`
	ChunkerVersion    string         `json:"chunker_version"`
	IndexVersion      string         `json:"index_version"`
}

// TokenStats contains approximate token count statistics over chunks.
type TokenStats struct {
	Min  int     `json:"min"`
	Max  int     `json:"max"`
	Mean float64 `json:"mean"`
	P95  int     `json:"p95"`
}

// ComputeStats summarises snap. embeddingModel feeds the index version so
// generations built with different models are told apart.
func ComputeStats(snap *Snapshot, embeddingModel string) Stats {
	stats := Stats{
		GenerationID:   snap.GenerationID,
		Collection:     snap.Collection,
		BuiltAt:        snap.BuiltAt.UTC().Format("2006-01-02T15:04:05Z"),
		DocsProcessed:  len(snap.Documents),
		Chunks:         snap.Len(),
		ChunksByLevel:  map[string]int{},
		ChunkerVersion: ChunkerVersion,
	}

	for _, d := range snap.Documents {
		if d.ChunkCount == 0 {
			stats.DocsWithoutChunks = append(stats.DocsWithoutChunks, d.Path)
		}
	}

	tokenCounts := make([]int, 0, snap.Len())
	for _, e := range snap.Entries() {
		stats.ChunksByLevel[levelKey(e.Chunk.Level)]++
		tokens := int(math.Round(float64(utf8.RuneCountInString(e.Chunk.Text)) / RunesPerToken))
		tokenCounts = append(tokenCounts, max(tokens, 1))
	}
	stats.ChunkTokenStats = computeTokenStats(tokenCounts)

	hash := sha256.Sum256([]byte(fmt.Sprintf("%s|%s", ChunkerVersion, embeddingModel)))
	stats.IndexVersion = hex.EncodeToString(hash[:])[:16]

	return stats
}

func levelKey(l chunker.Level) string {
	if l == chunker.LevelNone {
		return "none"
	}
	return l.String()
}

// computeTokenStats computes min, max, mean, and p95 from token counts.
func computeTokenStats(tokenCounts []int) TokenStats {
	if len(tokenCounts) == 0 {
		return TokenStats{}
	}

	sorted := make([]int, len(tokenCounts))
	copy(sorted, tokenCounts)
	sort.Ints(sorted)

	sum := 0
	for _, c := range sorted {
		sum += c
	}
	mean := float64(sum) / float64(len(sorted))

	p95Index := int(math.Ceil(float64(len(sorted))*0.95)) - 1
	p95Index = max(0, min(p95Index, len(sorted)-1))

	return TokenStats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: math.Round(mean*100) / 100,
		P95:  sorted[p95Index],
	}
}
