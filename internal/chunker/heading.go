package chunker

import (
	"regexp"
	"strings"
)

// Level is the heading depth a chunk was closed under.
// The string values double as the "type" metadata stored alongside vectors.
type Level string

const (
	// LevelNone marks missing level metadata.
	LevelNone Level = ""
	LevelH1   Level = "h1"
	LevelH2   Level = "h2"
	LevelH3   Level = "h3"
)

// String returns the level as stored in metadata.
func (l Level) String() string {
	return string(l)
}

var (
	h1Pattern = regexp.MustCompile(`^# ([^#].*)$`)
	h2Pattern = regexp.MustCompile(`^## ([^#].*)$`)
	h3Pattern = regexp.MustCompile(`^### (.+)$`)
)

// Classify reports whether line is an H1, H2 or H3 heading and returns its trimmed text.
// Deeper headings ("#### ...") and lines without a space after the hashes are body content.
func Classify(line string) (Level, string, bool) {
	if m := h1Pattern.FindStringSubmatch(line); m != nil {
		return LevelH1, strings.TrimSpace(m[1]), true
	}
	if m := h2Pattern.FindStringSubmatch(line); m != nil {
		return LevelH2, strings.TrimSpace(m[1]), true
	}
	if m := h3Pattern.FindStringSubmatch(line); m != nil {
		return LevelH3, strings.TrimSpace(m[1]), true
	}
	return LevelNone, "", false
}
