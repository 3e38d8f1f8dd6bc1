package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/khanglvm/lunar-mcp/internal/benchmark"
)

// NewBenchmarkCmd creates the 'benchmark' command for measuring analysis.
func NewBenchmarkCmd() *cobra.Command {
	var (
		jsonOutput bool
		iterations int
	)

	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Measure analysis latency and suggestion cache hit rate",
		Long: `Run a latency and cache benchmark against the configured registry.

A built-in corpus of requests covering every analysis path (jump codes,
lexical suggestions, near-duplicate phrasings, unmatched requests and
chains) is replayed --iterations times against a fresh engine. The first
pass fills the suggestion cache; later passes show the hit rate.

Chains run with the configured simulated step latency; no server is
started.`,
		Example: `  # Run benchmark with current config
  lunar-mcp benchmark

  # More passes, output as JSON
  lunar-mcp benchmark --iterations 10 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBenchmark(cmd, iterations, jsonOutput)
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	cmd.Flags().IntVarP(&iterations, "iterations", "i", benchmark.DefaultIterations, "Passes over the request corpus")

	return cmd
}

func runBenchmark(cmd *cobra.Command, iterations int, jsonOutput bool) error {
	if iterations < 1 {
		return fmt.Errorf("--iterations must be at least 1")
	}

	rt, err := newRuntime(cmd, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	// Steps must not reach real servers.
	cfg := *rt.Config()
	cfg.Servers = nil
	eng, pool := rt.build(&cfg)
	defer pool.Close()
	defer eng.Close()

	result := benchmark.Run(cmd.Context(), eng, benchmark.Options{Iterations: iterations})

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), result)
	}
	fmt.Fprint(cmd.OutOrStdout(), benchmark.Format(result))
	return nil
}
