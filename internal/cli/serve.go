package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/khanglvm/lunar-mcp/internal/config"
	"github.com/khanglvm/lunar-mcp/internal/mcp"
	"github.com/khanglvm/lunar-mcp/internal/storage"
	"github.com/khanglvm/lunar-mcp/internal/version"
)

const (
	// retentionInterval is how often the journal is pruned while serving.
	retentionInterval = time.Hour

	updateCheckTimeout = 10 * time.Second
	shutdownTimeout    = 5 * time.Second
)

// newUpdateChecker is a variable so tests can point it at a fake release API.
var newUpdateChecker = func() *version.Checker {
	return &version.Checker{}
}

// NewServeCmd creates the 'serve' command for running the MCP server.
func NewServeCmd() *cobra.Command {
	var noUpdateCheck bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server (stdio transport)",
		Long: `Start the lunar-mcp MCP server using stdio transport.

This server exposes 7 tools to AI clients:
  • analyze_request - Suggest a tool, resolve a jump code or run a chain
  • list_all_tools  - The tool catalog with categories and jump codes
  • validate_chain  - Resolve the steps of a chain without running it
  • execute_chain   - Run a chain
  • search_tools    - Rank tools for a free-text query
  • predict_next    - Tools observed to follow a tool
  • hub_stats       - Cache, learner and chain statistics

The config file is watched; on change the engine is rebuilt in place.
Chain steps on tools of configured servers spawn those servers on demand.`,
		Example: `  # Run directly
  lunar-mcp serve

  # Add to Claude Code
  claude mcp add lunar -- lunar-mcp serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, !noUpdateCheck)
		},
	}

	cmd.Flags().BoolVar(&noUpdateCheck, "no-update-check", false, "Skip the background release check")

	return cmd
}

// runServe serves MCP on stdin/stdout until stdin closes or
// SIGINT/SIGTERM arrives, alongside the config watcher, journal retention,
// the metrics endpoint and the update check.
func runServe(cmd *cobra.Command, checkUpdates bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(cmd, runtimeOptions{journal: true, metrics: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			rt.logger.Warn("error during shutdown", zap.Error(err))
		}
	}()

	cfg := rt.Config()
	server := mcp.NewServer(rt.Engine(), rt.logger.Named("mcp"))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		if err := server.Run(gctx, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		err := config.Watch(gctx, rt.configPath, config.DefaultWatchDebounce, func(cfg *config.Config) {
			rt.reload(server, cfg)
		}, rt.logger.Named("config"))
		if err != nil {
			rt.logger.Warn("config hot reload disabled", zap.Error(err))
		}
		return nil
	})

	if addr := cfg.Metrics.Addr; addr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, addr, rt.metrics.Handler(), rt.logger)
		})
	}

	if rt.store != nil && cfg.Retention() > 0 {
		g.Go(func() error {
			runRetention(gctx, rt.store, cfg.Retention(), retentionInterval, rt.logger)
			return nil
		})
	}

	if checkUpdates {
		g.Go(func() error {
			checkForUpdates(gctx, newUpdateChecker(), rt.logger)
			return nil
		})
	}

	rt.logger.Info("lunar-mcp serving",
		zap.String("version", version.Version),
		zap.String("config", rt.configPath),
		zap.Int("tools", rt.Engine().Registry().Len()))

	err = g.Wait()
	rt.logger.Info("shutdown complete")
	return err
}

// serveMetrics exposes handler on addr at /metrics until ctx is done.
func serveMetrics(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// runRetention prunes the journal now and then every interval until ctx
// is done.
func runRetention(ctx context.Context, store storage.Storage, retention, interval time.Duration, logger *zap.Logger) {
	prune := func() {
		if err := store.Cleanup(retention); err != nil {
			logger.Warn("journal cleanup failed", zap.Error(err))
		}
	}

	prune()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

// checkForUpdates logs when a newer release exists.
func checkForUpdates(ctx context.Context, checker *version.Checker, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, updateCheckTimeout)
	defer cancel()

	release, err := checker.CheckUpdate(ctx)
	if err != nil {
		logger.Debug("update check failed", zap.Error(err))
		return
	}
	if release != nil {
		logger.Info("update available",
			zap.String("latest", release.Version),
			zap.String("current", version.Version),
			zap.String("url", release.URL))
	}
}
