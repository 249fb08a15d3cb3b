// Package chunker splits Markdown/text documents into heading-scoped chunks.
//
// The chunker walks a document once, line by line, tracking the most recently opened
// H1/H2/H3 headings. Every H2 and H3 section becomes its own chunk, and the whole span
// under an H1 is additionally kept as a fallback chunk so that sections without
// subdivisions remain retrievable.
package chunker

import (
	"strings"
)

// UnknownSection stands in for a heading that was never opened.
const UnknownSection = "Unknown Section"

// Chunk is one retrieval unit produced from a document.
type Chunk struct {
	Text      string `json:"text" yaml:"text"`             // Cleaned body content
	TitlePath string `json:"title_path" yaml:"title_path"` // "H1", "H1 - H2" or "H1 - H2 - H3"
	Level     Level  `json:"level" yaml:"level"`           // Level the chunk was closed under
}

// state is the accumulator walked over a single document.
// An empty heading string means the scope is not open.
type state struct {
	h1, h2, h3 string

	h1Buffer []string
	h2Buffer strings.Builder
	h3Buffer strings.Builder

	chunks []Chunk
}

// Split chunks a document and returns its chunks in emission order.
// A document without any H1/H2/H3 heading yields no chunks.
func Split(documentText string) []Chunk {
	s := &state{}
	for _, line := range strings.Split(documentText, "\n") {
		s.feed(line)
	}
	s.finish()
	return s.chunks
}

func (s *state) feed(line string) {
	level, text, isHeading := Classify(line)
	if !isHeading {
		s.body(line)
		return
	}

	switch level {
	case LevelH1:
		s.flushH1()
		s.h1 = text
		s.h2, s.h3 = "", ""
		s.h2Buffer.Reset()
		s.h3Buffer.Reset()

	case LevelH2:
		// Leading content of an H1 section is captured before its first subsection.
		if len(s.h1Buffer) > 0 && s.h2 == "" && s.h3 == "" {
			s.flushH1()
		}
		if strings.TrimSpace(s.h3Buffer.String()) != "" {
			s.flushH3()
			s.h3 = ""
		}
		if strings.TrimSpace(s.h2Buffer.String()) != "" {
			s.flushH2()
		}
		s.h2 = text
		s.h3 = ""
		s.h2Buffer.Reset()
		s.h2Buffer.WriteString(line + "\n")
		s.h1Buffer = append(s.h1Buffer, line)

	case LevelH3:
		if strings.TrimSpace(s.h3Buffer.String()) != "" {
			s.flushH3()
		}
		s.h3 = text
		s.h3Buffer.Reset()
		s.h3Buffer.WriteString(line + "\n")
		s.h1Buffer = append(s.h1Buffer, line)
	}
}

func (s *state) body(line string) {
	if s.h3 != "" {
		s.h3Buffer.WriteString(line + "\n")
	} else if s.h2 != "" {
		s.h2Buffer.WriteString(line + "\n")
	}
	if s.h1 != "" {
		s.h1Buffer = append(s.h1Buffer, line)
	}
}

func (s *state) finish() {
	if strings.TrimSpace(s.h3Buffer.String()) != "" {
		s.flushH3()
	}
	if strings.TrimSpace(s.h2Buffer.String()) != "" {
		s.flushH2()
	}
	if len(s.h1Buffer) > 0 {
		s.flushH1()
	}
}

// flushH1 emits the H1 fallback buffer and clears it regardless of content.
func (s *state) flushH1() {
	if len(s.h1Buffer) == 0 {
		return
	}
	s.emit(strings.Join(s.h1Buffer, "\n"), orUnknown(s.h1), LevelH1)
	s.h1Buffer = nil
}

func (s *state) flushH2() {
	s.emit(s.h2Buffer.String(), orUnknown(s.h1)+" - "+orUnknown(s.h2), LevelH2)
	s.h2Buffer.Reset()
}

func (s *state) flushH3() {
	s.emit(s.h3Buffer.String(), orUnknown(s.h1)+" - "+orUnknown(s.h2)+" - "+orUnknown(s.h3), LevelH3)
	s.h3Buffer.Reset()
}

func (s *state) emit(raw, titlePath string, level Level) {
	text := Clean(raw)
	if text == "" {
		return
	}
	s.chunks = append(s.chunks, Chunk{
		Text:      text,
		TitlePath: titlePath,
		Level:     level,
	})
}

// Clean removes blank lines and trims the result.
func Clean(raw string) string {
	lines := strings.Split(raw, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func orUnknown(heading string) string {
	if heading == "" {
		return UnknownSection
	}
	return heading
}
