// Package corpus loads source documents, builds corpus generations and keeps
// the active generation available to queries.
package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"docqa/internal/contextutil"
)

// DefaultIncludes matches Markdown and text files at the top of the documents root.
var DefaultIncludes = []string{"*.md", "*.txt"}

// Document is a source file as handed to the chunker.
type Document struct {
	Path  string // Relative to the root, forward slashes
	Title string
	Text  string // LF line endings
	Hash  string // SHA256 hex of the raw file content
}

// Loader reads documents under a root directory.
type Loader struct {
	root     string
	includes []string
}

// NewLoader creates a loader for root. Empty includes fall back to DefaultIncludes.
func NewLoader(root string, includes []string) (*Loader, error) {
	if len(includes) == 0 {
		includes = DefaultIncludes
	}
	for _, pattern := range includes {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid include pattern %q", pattern)
		}
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve documents root: %w", err)
	}

	return &Loader{root: abs, includes: includes}, nil
}

// Root returns the absolute documents root.
func (l *Loader) Root() string {
	return l.root
}

// Matches reports whether relPath (relative to the root, forward slashes) is a document.
func (l *Loader) Matches(relPath string) bool {
	for _, pattern := range l.includes {
		if ok, err := doublestar.Match(pattern, relPath); err == nil && ok {
			return true
		}
	}
	return false
}

// Load returns every matching document ordered by path.
// Files that cannot be read are logged and skipped.
func (l *Loader) Load(ctx context.Context) ([]Document, error) {
	logger := contextutil.LoggerFromContext(ctx)

	info, err := os.Stat(l.root)
	if err != nil {
		return nil, fmt.Errorf("failed to access documents root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("documents root %s is not a directory", l.root)
	}

	var docs []Document
	err = filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.WarnContext(ctx, "skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if d.IsDir() {
			if path != l.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return fmt.Errorf("failed to compute relative path for %s: %w", path, err)
		}
		rel = filepath.ToSlash(rel)
		if !l.Matches(rel) {
			return nil
		}

		doc, err := ReadDocument(path, rel)
		if err != nil {
			logger.WarnContext(ctx, "skipping unreadable document", "path", rel, "error", err)
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].Path < docs[j].Path
	})

	logger.InfoContext(ctx, "loaded documents", "root", l.root, "count", len(docs))
	return docs, nil
}

// ReadDocument reads the file at path as the document rel.
func ReadDocument(path, rel string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}

	sum := sha256.Sum256(raw)
	content := strings.ReplaceAll(string(raw), "\r\n", "\n")

	return Document{
		Path:  rel,
		Title: Title([]byte(content), rel),
		Text:  content,
		Hash:  hex.EncodeToString(sum[:]),
	}, nil
}
