/*
Package cli implements the lunar-mcp command line.

Every command reads the configuration named by the persistent --config
flag (default ~/.lunar-mcp/config.yaml) and logs to stderr; stdout carries
command output, or MCP JSON-RPC for serve.
*/
package cli

import (
	"github.com/spf13/cobra"

	"github.com/khanglvm/lunar-mcp/internal/config"
	"github.com/khanglvm/lunar-mcp/internal/version"
)

const (
	flagConfig   = "config"
	flagLogLevel = "log-level"
)

// NewRootCmd creates the lunar-mcp root command with every subcommand.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lunar-mcp",
		Short: "Request analysis and tool suggestion for MCP clients",
		Long: `lunar-mcp analyzes free-text requests and decides which tool should
handle them.

A request is resolved along the cheapest applicable path:
  • [CHAIN:a→b→c]  - run a chain of tools and return its trace
  • [TOOL:code]    - a jump code names the tool directly
  • anything else  - cached or freshly computed suggestion, merging
                     lexical registry matches with learned usage patterns

Run 'lunar-mcp serve' to expose the engine to AI clients over MCP stdio.`,
		Version:       version.Current().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP(flagConfig, "c", "", "Config file (default ~/.lunar-mcp/config.yaml)")
	cmd.PersistentFlags().String(flagLogLevel, "", "Log level: debug, info, warn, error (overrides config)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewAnalyzeCmd())
	cmd.AddCommand(NewChainCmd())
	cmd.AddCommand(NewCodesCmd())
	cmd.AddCommand(NewSearchCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewAddCmd())
	cmd.AddCommand(NewRemoveCmd())
	cmd.AddCommand(NewVerifyCmd())
	cmd.AddCommand(NewBenchmarkCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// configPath returns the --config value or the default location.
func configPath(cmd *cobra.Command) (string, error) {
	if flag := cmd.Flags().Lookup(flagConfig); flag != nil && flag.Value.String() != "" {
		return flag.Value.String(), nil
	}
	return config.GetDefaultConfigPath()
}

// logLevel returns the --log-level value, empty when unset.
func logLevel(cmd *cobra.Command) string {
	if flag := cmd.Flags().Lookup(flagLogLevel); flag != nil {
		return flag.Value.String()
	}
	return ""
}

func levelOrDefault(level string) string {
	if level == "" {
		return config.DefaultLogLevel
	}
	return level
}
