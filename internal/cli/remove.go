package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/khanglvm/lunar-mcp/internal/config"
	"github.com/khanglvm/lunar-mcp/internal/spawner"
)

// NewRemoveCmd creates the 'remove' command for removing MCP servers.
func NewRemoveCmd() *cobra.Command {
	var keepTools bool

	cmd := &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove an MCP server",
		Long: `Remove an MCP server from the configuration, along with the registry
tools named "<name>:..." unless --keep-tools is given. Kept tools run
simulated.`,
		Example: `  lunar-mcp remove github
  lunar-mcp rm github --keep-tools`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd, args[0], keepTools)
		},
	}

	cmd.Flags().BoolVar(&keepTools, "keep-tools", false, "Keep the server's tools in the registry")

	return cmd
}

func runRemove(cmd *cobra.Command, name string, keepTools bool) error {
	path, err := configPath(cmd)
	if err != nil {
		return err
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if _, exists := cfg.Servers[name]; !exists {
		return fmt.Errorf("server '%s' not found", name)
	}
	delete(cfg.Servers, name)

	removed := 0
	if !keepTools {
		kept := cfg.Tools[:0]
		for _, tool := range cfg.Tools {
			if server, _ := spawner.SplitToolName(tool.Name); server == name {
				removed++
				continue
			}
			kept = append(kept, tool)
		}
		cfg.Tools = kept
	}

	if err := config.Save(cfg, path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed server '%s'\n", name)
	if removed > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %d tool(s)\n", removed)
	}
	return nil
}
