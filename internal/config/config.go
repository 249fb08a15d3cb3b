package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Vector backends.
const (
	BackendQdrant = "qdrant"
	BackendBolt   = "bolt"
)

// Config holds all configuration for the application.
type Config struct {
	DocsPath    string
	DocsInclude []string
	DocsWatch   bool

	DBPath string

	VectorBackend    string
	QdrantURL        string
	CollectionPrefix string
	VectorSize       int
	BoltPath         string

	EmbeddingBaseURL   string
	EmbeddingModelName string
	EmbeddingBatchSize int

	LLMBaseURL   string
	LLMModelName string
	LLMAPIKey    string

	SearchCandidates     int
	SearchResultLimit    int
	SearchMaxResultLimit int
	ChatResultLimit      int
	MaxHistoryLength     int

	APIPort   string
	LogLevel  slog.Level
	LogFormat string
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or one of its parents, it is loaded.
// Environment variables already set take precedence over .env file values.
func Load() (*Config, error) {
	loadDotEnv()

	cfg := &Config{
		DocsPath:           getEnv("DOCS_PATH", ""),
		DocsInclude:        splitList(getEnv("DOCS_INCLUDE", "*.md,*.txt")),
		DBPath:             getEnv("DB_PATH", "./data/docqa.db"),
		VectorBackend:      strings.ToLower(getEnv("VECTOR_BACKEND", BackendQdrant)),
		QdrantURL:          getEnv("QDRANT_URL", "http://localhost:6333"),
		CollectionPrefix:   getEnv("QDRANT_COLLECTION", "documents"),
		BoltPath:           getEnv("BOLT_PATH", "./data/vectors.db"),
		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL_NAME", "all-MiniLM-L6-v2"),
		LLMBaseURL:         getEnv("LLM_BASE_URL", "http://localhost:8080"),
		LLMModelName:       getEnv("LLM_MODEL", "gemma:2b"),
		LLMAPIKey:          getEnv("LLM_API_KEY", ""),
		APIPort:            getEnv("API_PORT", "9000"),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	if cfg.DocsPath == "" {
		return nil, fmt.Errorf("DOCS_PATH is required")
	}

	var err error
	if cfg.DocsWatch, err = getBool("DOCS_WATCH", false); err != nil {
		return nil, err
	}

	// VECTOR_SIZE must match the output size of the embedding model.
	// Changing it requires a corpus rebuild.
	if getEnv("VECTOR_SIZE", "") == "" {
		return nil, fmt.Errorf("VECTOR_SIZE is required")
	}

	ints := []struct {
		key  string
		def  int
		dest *int
	}{
		{"VECTOR_SIZE", 0, &cfg.VectorSize},
		{"EMBEDDING_BATCH_SIZE", 32, &cfg.EmbeddingBatchSize},
		{"SEARCH_CANDIDATES", 10, &cfg.SearchCandidates},
		{"SEARCH_RESULT_LIMIT", 3, &cfg.SearchResultLimit},
		{"SEARCH_MAX_RESULT_LIMIT", 10, &cfg.SearchMaxResultLimit},
		{"CHAT_RESULT_LIMIT", 3, &cfg.ChatResultLimit},
		{"MAX_HISTORY_LENGTH", 5, &cfg.MaxHistoryLength},
	}
	for _, v := range ints {
		if *v.dest, err = getPositiveInt(v.key, v.def); err != nil {
			return nil, err
		}
	}
	if cfg.SearchMaxResultLimit < cfg.SearchResultLimit {
		return nil, fmt.Errorf("SEARCH_MAX_RESULT_LIMIT (%d) must not be below SEARCH_RESULT_LIMIT (%d)",
			cfg.SearchMaxResultLimit, cfg.SearchResultLimit)
	}

	switch cfg.VectorBackend {
	case BackendQdrant, BackendBolt:
	default:
		return nil, fmt.Errorf("VECTOR_BACKEND must be %q or %q, got %q", BackendQdrant, BackendBolt, cfg.VectorBackend)
	}

	if cfg.LogLevel, err = parseLogLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return nil, err
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	// Create data directories if they don't exist
	dirs := []string{filepath.Dir(cfg.DBPath)}
	if cfg.VectorBackend == BackendBolt {
		dirs = append(dirs, filepath.Dir(cfg.BoltPath))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	return cfg, nil
}

// loadDotEnv loads the first .env found in the working directory or up to
// five of its parents. Missing files are ignored.
func loadDotEnv() {
	wd, err := os.Getwd()
	if err != nil {
		return
	}
	dir := wd
	for i := 0; i <= 5; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return // Reached filesystem root
		}
		dir = parent
	}
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getPositiveInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return v, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLogLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error: %w", err)
	}
	return level, nil
}
