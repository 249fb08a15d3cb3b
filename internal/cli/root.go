// Package cli implements the docqa command line tool.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"docqa/internal/app"
	"docqa/internal/config"
	"docqa/internal/contextutil"
)

// NewRootCmd builds the docqa command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docqa",
		Short: "Heading-aware retrieval over a folder of Markdown documents",
		Long: `docqa splits Markdown documents along their headings, indexes the sections
as vectors and answers questions with the best matching sections.

Example usage:
  docqa chunk guide.md --format yaml   # Show how a document is split
  docqa reindex                        # Rebuild the corpus from DOCS_PATH
  docqa search "how do I install"      # Print the best matching sections`,
		SilenceUsage: true,
	}

	root.AddCommand(newChunkCmd(), newReindexCmd(), newSearchCmd())
	return root
}

// openApp loads configuration from the environment and wires the components.
// Logs go to stderr so stdout only carries command output.
func openApp(cmd *cobra.Command) (context.Context, *app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := app.NewLogger(cfg, cmd.ErrOrStderr())
	ctx := contextutil.WithLogger(cmd.Context(), logger)

	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return ctx, a, nil
}
