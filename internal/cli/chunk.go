package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"docqa/internal/chunker"
	"docqa/internal/corpus"
)

type fileChunks struct {
	File   string          `json:"file" yaml:"file"`
	Title  string          `json:"title" yaml:"title"`
	Chunks []chunker.Chunk `json:"chunks" yaml:"chunks"`
}

func newChunkCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "chunk FILE...",
		Short: "Print the chunks a document is split into",
		Long: `Split each file along its H1-H3 headings and print the resulting chunks.
No configuration or external service is needed.

Examples:
  docqa chunk README.md
  docqa chunk docs/*.md --format yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unsupported format %q: use json or yaml", format)
			}

			out := make([]fileChunks, 0, len(args))
			for _, path := range args {
				doc, err := corpus.ReadDocument(path, filepath.Base(path))
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}
				chunks := chunker.Split(doc.Text)
				if chunks == nil {
					chunks = []chunker.Chunk{}
				}
				out = append(out, fileChunks{File: path, Title: doc.Title, Chunks: chunks})
			}

			return writeChunks(cmd.OutOrStdout(), format, out)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or yaml")
	return cmd
}

func writeChunks(w io.Writer, format string, files []fileChunks) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(files); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(files)
}
