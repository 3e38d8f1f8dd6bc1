package cli

import (
	"fmt"
	"os/exec"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/khanglvm/lunar-mcp/internal/config"
	"github.com/khanglvm/lunar-mcp/internal/spawner"
)

// lookPath is a variable so tests can resolve commands without a PATH.
var lookPath = exec.LookPath

// NewVerifyCmd creates the 'verify' command for verifying configuration.
func NewVerifyCmd() *cobra.Command {
	var connect bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify configuration and server commands",
		Long: `Verify that the configuration file loads and validates, that every
server command can be found, and optionally (--connect) that every server
starts and lists its tools.`,
		Example: `  lunar-mcp verify
  lunar-mcp verify --connect`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, connect)
		},
	}

	cmd.Flags().BoolVar(&connect, "connect", false, "Start each server and list its tools")

	return cmd
}

func runVerify(cmd *cobra.Command, connect bool) error {
	path, err := configPath(cmd)
	if err != nil {
		return err
	}

	cfg, err := config.LoadFrom(path)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	out := cmd.OutOrStdout()
	reg := cfg.Registry()
	fmt.Fprintf(out, "✓ Config file: %s\n", path)
	if len(cfg.Tools) == 0 {
		fmt.Fprintf(out, "✓ Tools: %d (sample catalog, registry %s)\n", reg.Len(), reg.Version())
	} else {
		fmt.Fprintf(out, "✓ Tools: %d (registry %s)\n", reg.Len(), reg.Version())
	}
	fmt.Fprintf(out, "✓ Servers registered: %d\n", len(cfg.Servers))

	names := make([]string, 0, len(cfg.Servers))
	for name := range cfg.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	var pool *spawner.Pool
	if connect {
		pool = spawner.NewPool(cfg.Servers, spawner.Options{Timeout: cfg.StepTimeout(), Logger: zap.NewNop()})
		defer pool.Close()
	}

	problems := 0
	for _, name := range names {
		server := cfg.Servers[name]
		resolved, err := lookPath(server.Command)
		if err != nil {
			fmt.Fprintf(out, "✗ %s: command %q not found\n", name, server.Command)
			problems++
			continue
		}
		fmt.Fprintf(out, "✓ %s: %s\n", name, resolved)

		if pool != nil {
			tools, err := pool.GetTools(cmd.Context(), name, server)
			if err != nil {
				fmt.Fprintf(out, "    Status:  ✗ %s\n", err.Error())
				problems++
			} else {
				fmt.Fprintf(out, "    Status:  ✓ %d tools\n", len(tools))
			}
		}
	}

	if problems > 0 {
		return fmt.Errorf("%d problem(s) found", problems)
	}
	return nil
}
