package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/khanglvm/lunar-mcp/internal/version"
)

// NewVersionCmd creates the 'version' command.
func NewVersionCmd() *cobra.Command {
	var (
		check      bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display the current version, commit hash, and build date.

With --check, also ask GitHub for the latest release (at most once a day;
the result is cached in ~/.lunar-mcp/update.json).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd, check, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Check for a newer release")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	return cmd
}

func runVersion(cmd *cobra.Command, check, jsonOutput bool) error {
	info := version.Current()
	out := cmd.OutOrStdout()

	var release *version.Release
	if check {
		var err error
		release, err = newUpdateChecker().CheckUpdate(cmd.Context())
		if err != nil {
			return fmt.Errorf("update check failed: %w", err)
		}
	}

	if jsonOutput {
		return printJSON(out, struct {
			version.Info
			Update *version.Release `json:"update,omitempty"`
		}{info, release})
	}

	fmt.Fprintf(out, "Version:  %s\n", info.Version)
	fmt.Fprintf(out, "Commit:   %s\n", info.Commit)
	fmt.Fprintf(out, "Built:    %s\n", info.Date)
	if check {
		if release != nil {
			fmt.Fprintf(out, "\nUpdate available: %s\n  %s\n", release.Version, release.URL)
		} else {
			fmt.Fprintln(out, "\nUp to date.")
		}
	}
	return nil
}
