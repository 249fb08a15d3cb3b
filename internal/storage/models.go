package storage

import "time"

// Generation statuses.
const (
	StatusBuilding = "building"
	StatusActive   = "active"
	StatusRetired  = "retired"
)

// Generation is one complete build of the corpus. Its chunks live in the
// vector collection named by Collection.
type Generation struct {
	ID            string // UUID
	Collection    string // Vector collection, "<prefix>_<unix-nanos>"
	Status        string
	BuiltAt       time.Time
	DocumentCount int
	ChunkCount    int
}

// DocumentRecord is a source document as loaded for a generation.
type DocumentRecord struct {
	ID           string // UUID
	GenerationID string
	Path         string // Relative to the documents root
	Title        string
	Hash         string // SHA256 hex string of file content
	ChunkCount   int
}

// ChunkRecord is one chunk of a generation. ID doubles as the vector point ID.
type ChunkRecord struct {
	ID           string // UUID
	GenerationID string
	DocumentID   string
	Position     int // Insertion order across the whole generation
	ChunkIndex   int // Emission order within the document
	TitlePath    string
	Level        string // "h1", "h2" or "h3"
	Text         string
}

// ChatMessage is one turn of a chat session.
type ChatMessage struct {
	ID        int64
	SessionID string
	Role      string // "user" or "assistant"
	Content   string
	CreatedAt time.Time
}
