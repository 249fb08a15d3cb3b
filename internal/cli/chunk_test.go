package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"docqa/internal/chunker"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestChunkCmd_JSON(t *testing.T) {
	path := writeDoc(t, "intro.md", "# Intro\r\nHello world\r\n## Setup\r\nRun install\r\n")

	out, err := runCmd(t, "chunk", path)
	require.NoError(t, err)

	var files []fileChunks
	require.NoError(t, json.Unmarshal([]byte(out), &files))
	require.Len(t, files, 1)
	assert.Equal(t, path, files[0].File)
	assert.Equal(t, "Intro", files[0].Title)
	assert.Equal(t, []chunker.Chunk{
		{Text: "Hello world", TitlePath: "Intro", Level: chunker.LevelH1},
		{Text: "## Setup\nRun install", TitlePath: "Intro - Setup", Level: chunker.LevelH2},
		{Text: "## Setup\nRun install", TitlePath: "Intro", Level: chunker.LevelH1},
	}, files[0].Chunks)
}

func TestChunkCmd_YAML(t *testing.T) {
	a := writeDoc(t, "a.md", "# A\nbody\n")
	b := writeDoc(t, "b.txt", "no headings here\n")

	out, err := runCmd(t, "chunk", "--format", "yaml", a, b)
	require.NoError(t, err)

	var files []fileChunks
	require.NoError(t, yaml.Unmarshal([]byte(out), &files))
	require.Len(t, files, 2)
	assert.Equal(t, []chunker.Chunk{{Text: "body", TitlePath: "A", Level: chunker.LevelH1}}, files[0].Chunks)
	assert.Empty(t, files[1].Chunks)
	assert.Equal(t, "B", files[1].Title)
	assert.Contains(t, out, "title_path: A")
}

func TestChunkCmd_Errors(t *testing.T) {
	path := writeDoc(t, "a.md", "# A\nbody\n")

	tests := []struct {
		name string
		args []string
	}{
		{name: "no files", args: []string{"chunk"}},
		{name: "unknown format", args: []string{"chunk", "--format", "xml", path}},
		{name: "missing file", args: []string{"chunk", filepath.Join(t.TempDir(), "missing.md")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCmd(t, tt.args...)
			assert.Error(t, err)
		})
	}
}
