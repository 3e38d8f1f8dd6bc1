package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/khanglvm/lunar-mcp/internal/config"
	"github.com/khanglvm/lunar-mcp/internal/registry"
)

// NewInitCmd creates the 'init' command that writes a starter config.
func NewInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file with every default",
		Long: `Write a configuration file holding every default setting and the sample
tool catalog. An existing file is left alone unless --force is given, in
which case it is first backed up to <file>.bak.`,
		Example: `  lunar-mcp init
  lunar-mcp init --force
  lunar-mcp --config ./lunar.yaml init`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config (a .bak copy is kept)")

	return cmd
}

func runInit(cmd *cobra.Command, force bool) error {
	path, err := configPath(cmd)
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config already exists at %s\n\n💡 Use 'lunar-mcp init --force' to overwrite it", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to check %s: %w", path, err)
	}

	cfg := config.NewConfig()
	cfg.Tools = registry.DefaultTools()
	if err := config.Save(cfg, path); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Created %s (%d tools)\n", path, len(cfg.Tools))
	return nil
}
