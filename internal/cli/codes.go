package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/khanglvm/lunar-mcp/internal/models"
)

// NewCodesCmd creates the 'codes' command for listing jump codes.
func NewCodesCmd() *cobra.Command {
	var jsonOutput bool
	var pattern string

	cmd := &cobra.Command{
		Use:     "codes",
		Aliases: []string{"ls"},
		Short:   "List the jump codes of the tool registry",
		Long: `Display every jump code and the tool it names, in registry order.

Jump codes are "<category>-<n>" and are used in requests as [TOOL:<code>].
They are derived from the configured tools; editing the tool list can
renumber them.`,
		Example: `  lunar-mcp codes
  lunar-mcp codes --search docker
  lunar-mcp codes --search '^github-' --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCodes(cmd, pattern, jsonOutput)
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	cmd.Flags().StringVarP(&pattern, "search", "s", "", "Only codes whose code or tool matches this regular expression")

	return cmd
}

func runCodes(cmd *cobra.Command, pattern string, jsonOutput bool) error {
	rt, err := newRuntime(cmd, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	eng := rt.Engine()
	var codes []models.JumpCode
	if pattern != "" {
		codes, err = eng.SearchJumpCodes(pattern)
		if err != nil {
			return err
		}
	} else {
		codes = eng.ListJumpCodes()
	}

	if jsonOutput {
		if codes == nil {
			codes = []models.JumpCode{}
		}
		return printJSON(cmd.OutOrStdout(), codes)
	}

	out := cmd.OutOrStdout()
	if len(codes) == 0 {
		fmt.Fprintln(out, "No jump codes match.")
		return nil
	}

	fmt.Fprintf(out, "Jump codes (%d, registry %s):\n\n", len(codes), eng.Registry().Version())
	for _, code := range codes {
		fmt.Fprintf(out, "  %-20s %s\n", code.Pattern, code.Tool)
	}
	return nil
}
