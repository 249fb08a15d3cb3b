package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"docqa/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	docs := filepath.Join(dir, "docs")
	if err := os.MkdirAll(docs, 0o755); err != nil {
		t.Fatal(err)
	}
	return &config.Config{
		DocsPath:             docs,
		DocsInclude:          []string{"*.md"},
		DBPath:               filepath.Join(dir, "docqa.db"),
		VectorBackend:        config.BackendBolt,
		BoltPath:             filepath.Join(dir, "vectors.db"),
		CollectionPrefix:     "documents",
		VectorSize:           4,
		EmbeddingBaseURL:     "http://127.0.0.1:1",
		EmbeddingBatchSize:   8,
		LLMBaseURL:           "http://127.0.0.1:1",
		SearchCandidates:     10,
		SearchResultLimit:    3,
		SearchMaxResultLimit: 10,
		ChatResultLimit:      3,
		MaxHistoryLength:     5,
		LogLevel:             slog.LevelInfo,
		LogFormat:            "text",
	}
}

func TestNew_BoltBackend(t *testing.T) {
	cfg := testConfig(t)

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() {
		_ = a.Close()
	}()

	if a.DB == nil || a.VectorStore == nil || a.Corpus == nil || a.Engine == nil || a.Chat == nil {
		t.Fatalf("New() left components unset: %+v", a)
	}
	if a.Loader.Root() != cfg.DocsPath {
		t.Errorf("Loader root = %q, want %q", a.Loader.Root(), cfg.DocsPath)
	}
	if a.Corpus.Current() != nil {
		t.Error("corpus should not be restored by New")
	}
	if _, err := os.Stat(cfg.BoltPath); err != nil {
		t.Errorf("bolt file not created: %v", err)
	}
}

func TestNew_InvalidIncludeClosesResources(t *testing.T) {
	cfg := testConfig(t)
	cfg.DocsInclude = []string{"[unclosed"}

	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("New() expected error for invalid include pattern")
	}

	// The bolt file lock is released on failure, so a second open succeeds.
	cfg.DocsInclude = []string{"*.md"}
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() after failure error = %v", err)
	}
	_ = a.Close()
}

func TestValidateEmbedder_Unreachable(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() {
		_ = a.Close()
	}()

	if err := a.ValidateEmbedder(context.Background()); err == nil {
		t.Error("ValidateEmbedder() expected error for unreachable embedding server")
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		format string
		isJSON bool
	}{
		{format: "json", isJSON: true},
		{format: "text", isJSON: false},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			cfg := &config.Config{LogLevel: slog.LevelWarn, LogFormat: tt.format}
			logger := NewLogger(cfg, &buf)

			logger.Info("hidden")
			if buf.Len() != 0 {
				t.Fatalf("info should be filtered at warn level, got %q", buf.String())
			}

			logger.Warn("shown", "key", "value")
			if got := json.Valid(bytes.TrimSpace(buf.Bytes())); got != tt.isJSON {
				t.Errorf("json.Valid = %v for format %s: %q", got, tt.format, buf.String())
			}
		})
	}
}
