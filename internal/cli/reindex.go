package cli

import (
	"fmt"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"docqa/internal/corpus"
)

func newReindexCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the corpus from the documents folder",
		Long: `Load every document under DOCS_PATH, chunk and embed it into a new
generation and make that generation active. The previous generation is
removed once the new one is in place.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = a.Close()
			}()

			out := cmd.OutOrStdout()
			var progress corpus.ProgressFunc
			if !quiet {
				progress = newProgressBar(cmd)
			}

			fmt.Fprintf(out, "Indexing %s...\n", a.Loader.Root())
			snap, err := a.Corpus.Rebuild(ctx, progress)
			if err != nil {
				return fmt.Errorf("reindex failed: %w", err)
			}

			stats := corpus.ComputeStats(snap, a.Config.EmbeddingModelName)
			fmt.Fprintf(out, "\nIndexing complete:\n")
			fmt.Fprintf(out, "  Generation:     %s\n", stats.GenerationID)
			fmt.Fprintf(out, "  Collection:     %s\n", stats.Collection)
			fmt.Fprintf(out, "  Documents:      %d\n", stats.DocsProcessed)
			fmt.Fprintf(out, "  Chunks:         %d\n", stats.Chunks)
			if len(stats.DocsWithoutChunks) > 0 {
				fmt.Fprintf(out, "\nDocuments without headings (not indexed):\n")
				for _, path := range stats.DocsWithoutChunks {
					fmt.Fprintf(out, "  - %s\n", path)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "hide the progress bar")
	return cmd
}

// newProgressBar returns a ProgressFunc that draws on stderr. The bar is created
// on the first call, once the chunk total is known.
func newProgressBar(cmd *cobra.Command) corpus.ProgressFunc {
	var (
		mu  sync.Mutex
		bar *progressbar.ProgressBar
	)
	return func(done, total int) {
		mu.Lock()
		defer mu.Unlock()

		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Embedding[reset]"),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(cmd.ErrOrStderr())
				}),
			)
		}
		_ = bar.Set(done)
	}
}
