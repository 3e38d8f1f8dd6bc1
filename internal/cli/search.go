package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/khanglvm/lunar-mcp/internal/search"
)

const defaultSearchLimit = 5

// NewSearchCmd creates the 'search' command for ranking registry tools.
func NewSearchCmd() *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Rank registry tools for a free-text query",
		Long: `Search the tool registry. Full-text (BM25) scores over tool names and
categories are fused with letter-frequency similarity, so partial words
and typos still find tools.`,
		Example: `  lunar-mcp search create repository
  lunar-mcp search contaner --limit 3 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), limit, jsonOutput)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", defaultSearchLimit, "Maximum number of results")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, limit int, jsonOutput bool) error {
	rt, err := newRuntime(cmd, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	results, err := rt.Engine().SearchTools(query, limit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if results == nil {
		results = []search.SearchResult{}
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, map[string]any{
			"query":   query,
			"results": results,
			"total":   len(results),
		})
	}

	if len(results) == 0 {
		fmt.Fprintf(out, "No tools match %q.\n", query)
		return nil
	}
	fmt.Fprintf(out, "Results for %q:\n\n", query)
	for i, r := range results {
		fmt.Fprintf(out, "  %d. %-32s %-10s [TOOL:%s]  %.3f\n", i+1, r.ToolName, r.Category, r.JumpCode, r.Score)
	}
	return nil
}
