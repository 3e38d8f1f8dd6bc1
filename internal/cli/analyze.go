package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewAnalyzeCmd creates the 'analyze' command.
func NewAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <request...>",
		Short: "Analyze a request and print the decision as JSON",
		Long: `Analyze a free-text request the way the analyze_request MCP tool does.

The words of the request are joined with spaces. A request holding
[CHAIN:...] notation runs the chain; a [TOOL:code] jump code resolves
directly; anything else gets a suggestion.`,
		Example: `  lunar-mcp analyze create a github repository
  lunar-mcp analyze "[TOOL:docker-1] start the database"
  lunar-mcp analyze "[CHAIN:github-1→docker-1]"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, strings.Join(args, " "))
		},
	}

	return cmd
}

func runAnalyze(cmd *cobra.Command, request string) error {
	rt, err := newRuntime(cmd, runtimeOptions{journal: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			rt.logger.Warn("cleanup failed", zap.Error(err))
		}
	}()

	analysis := rt.Engine().Analyze(cmd.Context(), request)
	return printJSON(cmd.OutOrStdout(), analysis)
}
