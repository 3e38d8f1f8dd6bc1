package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/khanglvm/lunar-mcp/internal/config"
	"github.com/khanglvm/lunar-mcp/internal/logging"
	"github.com/khanglvm/lunar-mcp/internal/storage"
)

const defaultHistoryLimit = 10

// NewHistoryCmd creates the 'history' command for reading the journal.
func NewHistoryCmd() *cobra.Command {
	var (
		limit      int
		usage      bool
		days       int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show journaled chain executions or tool usage",
		Long: `Read back the analysis journal (~/.lunar-mcp/journal.db by default).

By default the latest chain executions are shown. With --usage, the tool
usage records of the last --days days are shown instead. Requests are
journaled as SHA256 hashes only.`,
		Example: `  lunar-mcp history
  lunar-mcp history --limit 50 --json
  lunar-mcp history --usage --days 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if usage {
				return runUsageHistory(cmd, days, limit, jsonOutput)
			}
			return runChainHistory(cmd, limit, jsonOutput)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", defaultHistoryLimit, "Maximum number of records")
	cmd.Flags().BoolVarP(&usage, "usage", "u", false, "Show tool usage instead of chains")
	cmd.Flags().IntVar(&days, "days", 7, "Usage window in days (with --usage)")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	return cmd
}

// openJournal opens the configured journal read-side. It returns nil when
// the journal is disabled in config.
func openJournal(cmd *cobra.Command) (*storage.SQLiteStorage, error) {
	path, err := configPath(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(levelOrDefault(logLevel(cmd)), cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	cfg := config.LoadOrDefault(path, logger)
	if !cfg.Storage.Enabled {
		return nil, nil
	}

	store := storage.NewStorage(cfg.StoragePath(), logger.Named("journal"))
	if err := store.Init(); err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return store, nil
}

func runChainHistory(cmd *cobra.Command, limit int, jsonOutput bool) error {
	store, err := openJournal(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if store == nil {
		fmt.Fprintln(out, "Journal disabled (storage.enabled: false).")
		return nil
	}
	defer store.Close()

	records, err := store.RecentChains(limit)
	if err != nil {
		return err
	}
	if jsonOutput {
		if records == nil {
			records = []storage.ChainRecord{}
		}
		return printJSON(out, records)
	}

	if len(records) == 0 {
		fmt.Fprintln(out, "No chain executions journaled.")
		return nil
	}
	fmt.Fprintf(out, "Chain executions (%d, newest first):\n\n", len(records))
	for _, r := range records {
		fmt.Fprintf(out, "  %s  %-9s %d steps  %-10v %s\n",
			r.StartedAt.Local().Format(time.DateTime), r.Status, len(r.Steps), r.TotalDuration, r.Notation)
		if r.Error != "" {
			fmt.Fprintf(out, "      error: %s\n", r.Error)
		}
	}
	return nil
}

func runUsageHistory(cmd *cobra.Command, days, limit int, jsonOutput bool) error {
	store, err := openJournal(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if store == nil {
		fmt.Fprintln(out, "Journal disabled (storage.enabled: false).")
		return nil
	}
	defer store.Close()

	since := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	events, err := store.UsageSince(since, limit)
	if err != nil {
		return err
	}
	if jsonOutput {
		if events == nil {
			events = []storage.UsageEvent{}
		}
		return printJSON(out, events)
	}

	if len(events) == 0 {
		fmt.Fprintf(out, "No tool usage in the last %d days.\n", days)
		return nil
	}

	counts := make(map[string]int)
	for _, e := range events {
		counts[e.Tool]++
	}
	fmt.Fprintf(out, "Tool usage (last %d days, %d records):\n\n", days, len(events))
	for _, e := range events {
		fmt.Fprintf(out, "  %s  %-32s %v\n", e.Timestamp.Local().Format(time.DateTime), e.Tool, e.ResponseTime)
	}
	fmt.Fprintln(out)
	tools := make([]string, 0, len(counts))
	for tool := range counts {
		tools = append(tools, tool)
	}
	sort.Strings(tools)
	for _, tool := range tools {
		fmt.Fprintf(out, "  %-32s %d\n", tool, counts[tool])
	}
	return nil
}
