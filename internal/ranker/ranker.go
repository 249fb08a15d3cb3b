// Package ranker re-scores nearest-neighbour candidates with heading-aware boosts and
// returns a deduplicated, length-bounded list of chunk texts.
package ranker

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"docqa/internal/chunker"
)

const (
	h1Weight      = 0.05
	h2Weight      = 0.10
	h3Weight      = 0.15
	missingWeight = h2Weight

	lexicalBoost  = 0.10
	topLevelBoost = 0.20

	// ScoreThreshold is the exclusive lower bound a boosted score must exceed.
	ScoreThreshold = 0.30

	cosineEpsilon = 1e-10
)

// ErrInvalidInput is wrapped by every input validation failure.
var ErrInvalidInput = errors.New("invalid ranker input")

// InputError describes a caller contract violation.
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *InputError) Unwrap() error {
	return ErrInvalidInput
}

// Candidate is a chunk proposed by the vector index together with its cosine similarity
// to the query.
type Candidate struct {
	Chunk         chunker.Chunk
	RawSimilarity float64
}

// Result is a ranked candidate with its scoring breakdown.
type Result struct {
	Chunk         chunker.Chunk `json:"chunk"`
	RawSimilarity float64       `json:"raw_similarity"`
	LevelWeight   float64       `json:"level_weight"`
	Lexical       bool          `json:"lexical"`
	Score         float64       `json:"score"`
}

// CosineSimilarity returns dot(a, b) / (|a|*|b| + 1e-10). Vectors of different
// length are compared over their common prefix.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	return dot / (math.Sqrt(normA)*math.Sqrt(normB) + cosineEpsilon)
}

// LevelWeight returns the additive weight for a heading level.
func LevelWeight(level chunker.Level) float64 {
	switch level {
	case chunker.LevelH1:
		return h1Weight
	case chunker.LevelH2:
		return h2Weight
	case chunker.LevelH3:
		return h3Weight
	case chunker.LevelNone:
		return missingWeight
	default:
		return 0
	}
}

// LexicalOverlap reports whether any whitespace token of the query is a substring of
// the title path, case-insensitively.
func LexicalOverlap(query, titlePath string) bool {
	title := strings.ToLower(titlePath)
	for _, token := range strings.Fields(strings.ToLower(query)) {
		if strings.Contains(title, token) {
			return true
		}
	}
	return false
}

// Score computes the boosted score of a single candidate.
func Score(query string, c Candidate) Result {
	r := Result{
		Chunk:         c.Chunk,
		RawSimilarity: c.RawSimilarity,
		LevelWeight:   LevelWeight(c.Chunk.Level),
		Lexical:       LexicalOverlap(query, c.Chunk.TitlePath),
	}
	r.Score = r.RawSimilarity + r.LevelWeight
	if r.Lexical {
		r.Score += lexicalBoost
		if c.Chunk.Level == chunker.LevelH1 {
			r.Score += topLevelBoost
		}
	}
	return r
}

// Rank returns up to limit chunk texts ordered by boosted score.
func Rank(query string, candidates []Candidate, limit int) ([]string, error) {
	results, err := RankDetailed(query, candidates, limit)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(results))
	for _, r := range results {
		texts = append(texts, r.Chunk.Text)
	}
	return texts, nil
}

// RankDetailed runs the same pipeline as Rank and keeps the scoring breakdown.
func RankDetailed(query string, candidates []Candidate, limit int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &InputError{Field: "query", Message: "query is required"}
	}
	if limit < 0 {
		return nil, &InputError{Field: "limit", Message: fmt.Sprintf("must not be negative, got %d", limit)}
	}

	query = strings.ToLower(query)
	scored := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		r := Score(query, c)
		if r.Score > ScoreThreshold {
			scored = append(scored, r)
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	scored = Dedup(scored)
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// Dedup keeps the first result for every normalised chunk text. Applied to a list
// sorted by descending score it keeps the highest scored instance.
func Dedup(results []Result) []Result {
	seen := make(map[string]struct{}, len(results))
	out := make([]Result, 0, len(results))
	for _, r := range results {
		key := normalize(r.Chunk.Text)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

func normalize(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}
