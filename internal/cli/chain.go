package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/khanglvm/lunar-mcp/internal/chain"
	"github.com/khanglvm/lunar-mcp/internal/models"
)

// NewChainCmd creates the 'chain' command group.
func NewChainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain",
		Short: "Validate or run tool chains",
		Long: `Work with chain notation: [CHAIN:step→step→...].

A step names a tool by any part of its name or by its jump code. The
brackets may be omitted; "github-1→docker-1" is read as
"[CHAIN:github-1→docker-1]".`,
	}

	cmd.AddCommand(newChainValidateCmd())
	cmd.AddCommand(newChainRunCmd())

	return cmd
}

func newChainValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "validate <notation>",
		Short:   "Resolve every step of a chain without running it",
		Example: `  lunar-mcp chain validate "[CHAIN:github-1→file_operation]"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd, runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			result := rt.Engine().ValidateChain(chainNotation(args[0]))
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.Valid {
				return fmt.Errorf("chain is invalid: %d problem(s)", len(result.Errors))
			}
			return nil
		},
	}
}

func newChainRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <notation>",
		Short: "Run a chain and print its execution trace",
		Long: `Run a chain step by step. Steps on tools of configured servers are
sent to those servers; other steps are simulated. The chain stops at the
first failing step.`,
		Example: `  lunar-mcp chain run "[CHAIN:github-1→docker-1]"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd, runtimeOptions{journal: true})
			if err != nil {
				return err
			}
			defer func() {
				if err := rt.Close(); err != nil {
					rt.logger.Warn("cleanup failed", zap.Error(err))
				}
			}()

			exec := rt.Engine().ExecuteChain(cmd.Context(), chainNotation(args[0]))
			if err := printJSON(cmd.OutOrStdout(), exec); err != nil {
				return err
			}
			if exec.Status == models.ChainFailed {
				return fmt.Errorf("chain failed: %s", exec.Error)
			}
			return nil
		},
	}
}

// chainNotation wraps bare step lists in [CHAIN:...].
func chainNotation(arg string) string {
	if chain.Contains(arg) {
		return arg
	}
	return chain.Format(strings.Split(arg, chain.Separator))
}
