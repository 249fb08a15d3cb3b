package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	var (
		limit    int
		detailed bool
	)

	cmd := &cobra.Command{
		Use:   "search QUESTION",
		Short: "Print the document sections that best answer a question",
		Long: `Restore the active corpus generation (building one if none exists) and print
the ranked chunk texts for QUESTION.

Examples:
  docqa search "how do I install on linux"
  docqa search "configuration" -n 5 --detailed`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = a.Close()
			}()

			if limit <= 0 {
				limit = a.Config.SearchResultLimit
			}
			question := strings.Join(args, " ")

			if _, err := a.Corpus.Restore(ctx); err != nil {
				return fmt.Errorf("failed to load corpus: %w", err)
			}

			out := cmd.OutOrStdout()
			if detailed {
				results, err := a.Engine.SearchDetailed(ctx, question, limit)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			answers, err := a.Engine.Search(ctx, question, limit)
			if err != nil {
				return err
			}
			if len(answers) == 0 {
				fmt.Fprintln(out, "No relevant sections found.")
				return nil
			}
			for i, answer := range answers {
				if i > 0 {
					fmt.Fprintln(out, "\n---")
				}
				fmt.Fprintln(out, answer)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of results (default SEARCH_RESULT_LIMIT)")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "print scores as JSON")
	return cmd
}
