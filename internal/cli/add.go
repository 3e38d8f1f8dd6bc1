package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/khanglvm/lunar-mcp/internal/config"
	"github.com/khanglvm/lunar-mcp/internal/models"
)

// NewAddCmd creates the 'add' command for registering an MCP server and,
// optionally, its tools.
func NewAddCmd() *cobra.Command {
	var (
		command  string
		args     []string
		envVars  []string
		tools    []string
		category string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add an MCP server and its tools to the configuration",
		Long: `Register an MCP server that chain steps can run on.

Each --tool adds "<name>:<tool>" to the tool registry under --category
(default: the server name). Chain steps that resolve to a tool named
"<name>:..." are sent to this server; other tools stay simulated.

The configuration is validated before it is written; the previous file
is kept as <file>.bak.`,
		Example: `  lunar-mcp add github --command npx --arg -y --arg @modelcontextprotocol/server-github \
    --env GITHUB_TOKEN=ghp_xxx --tool create_repository --tool create_branch

  lunar-mcp add files -c /usr/local/bin/fs-mcp -t read_file -t write_file --category file`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, positionalArgs []string) error {
			server := &config.ServerConfig{
				Command: command,
				Args:    args,
				Env:     parseEnvVars(envVars),
			}
			return runAdd(cmd, positionalArgs[0], server, tools, category)
		},
	}

	cmd.Flags().StringVar(&command, "command", "", "Command to run the MCP server")
	cmd.Flags().StringArrayVarP(&args, "arg", "a", nil, "Arguments for the command")
	cmd.Flags().StringArrayVarP(&envVars, "env", "e", nil, "Environment variables (KEY=VALUE)")
	cmd.Flags().StringArrayVarP(&tools, "tool", "t", nil, "Tool exposed by the server (repeatable)")
	cmd.Flags().StringVar(&category, "category", "", "Category of the added tools (default: server name)")
	_ = cmd.MarkFlagRequired("command")

	return cmd
}

func runAdd(cmd *cobra.Command, name string, server *config.ServerConfig, tools []string, category string) error {
	if strings.ContainsAny(name, ": ") {
		return fmt.Errorf("server name %q must not contain ':' or spaces", name)
	}
	if err := config.ValidateServer(name, server); err != nil {
		return err
	}

	path, err := configPath(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadForEdit(path)
	if err != nil {
		return err
	}

	if category == "" {
		category = name
	}
	cfg.Servers[name] = server

	added := 0
	for _, tool := range tools {
		fullName := name + ":" + strings.TrimSpace(tool)
		if hasTool(cfg.Tools, fullName) {
			continue
		}
		cfg.Tools = append(cfg.Tools, models.Tool{Name: fullName, Category: category})
		added++
	}

	if err := config.Save(cfg, path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Added server '%s' to %s\n", name, path)
	if added > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Registered %d tool(s) under category '%s'\n", added, category)
	}
	return nil
}

// loadForEdit loads the config at path for modification. A missing file
// yields defaults; any other load error is returned so a broken file is
// never overwritten.
func loadForEdit(path string) (*config.Config, error) {
	cfg, err := config.LoadFrom(path)
	if err == nil {
		return cfg, nil
	}
	var notFound *config.ConfigNotFoundError
	if errors.As(err, &notFound) {
		return config.NewConfig(), nil
	}
	return nil, err
}

func hasTool(tools []models.Tool, name string) bool {
	for _, t := range tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

// parseEnvVars turns KEY=VALUE pairs into a map. Entries without a key
// are skipped.
func parseEnvVars(pairs []string) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, _ := strings.Cut(pair, "=")
		if key = strings.TrimSpace(key); key != "" {
			env[key] = value
		}
	}
	return env
}
