package cli

import (
	"errors"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/khanglvm/lunar-mcp/internal/chain"
	"github.com/khanglvm/lunar-mcp/internal/config"
	"github.com/khanglvm/lunar-mcp/internal/engine"
	"github.com/khanglvm/lunar-mcp/internal/learning"
	"github.com/khanglvm/lunar-mcp/internal/logging"
	"github.com/khanglvm/lunar-mcp/internal/mcp"
	"github.com/khanglvm/lunar-mcp/internal/metrics"
	"github.com/khanglvm/lunar-mcp/internal/spawner"
	"github.com/khanglvm/lunar-mcp/internal/storage"
)

// runtimeOptions selects the optional components of a runtime.
type runtimeOptions struct {
	// journal opens the SQLite journal (when enabled in config) and
	// records analyses, usage and chains to it.
	journal bool

	// metrics registers Prometheus collectors for the engine.
	metrics bool
}

// runtime is everything one command invocation works with: the loaded
// config, the logger and an engine whose chain steps run through a pool
// of MCP server processes.
type runtime struct {
	configPath string
	logger     *zap.Logger
	metrics    *metrics.Metrics
	store      *storage.SQLiteStorage
	tracker    *learning.Tracker

	mu     sync.Mutex
	cfg    *config.Config
	engine *engine.Engine
	pool   *spawner.Pool
}

// newRuntime loads the config and builds the engine. The --log-level flag
// takes precedence over the config's logging level.
func newRuntime(cmd *cobra.Command, opts runtimeOptions) (*runtime, error) {
	path, err := configPath(cmd)
	if err != nil {
		return nil, err
	}

	level := logLevel(cmd)
	bootLevel := levelOrDefault(level)
	logger, err := logging.New(bootLevel, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	cfg := config.LoadOrDefault(path, logger)
	if level == "" && cfg.Logging.Level != "" && cfg.Logging.Level != bootLevel {
		if configured, err := logging.New(cfg.Logging.Level, cmd.ErrOrStderr()); err == nil {
			logger = configured
		}
	}

	rt := &runtime{configPath: path, cfg: cfg, logger: logger}
	if opts.metrics {
		rt.metrics = metrics.New()
	}
	if opts.journal && cfg.Storage.Enabled {
		rt.store = storage.NewStorage(cfg.StoragePath(), logger.Named("journal"))
		rt.tracker = learning.NewTracker(rt.store, logger.Named("journal"))
	}

	rt.engine, rt.pool = rt.build(cfg)
	return rt, nil
}

// build creates a process pool and an engine for cfg. Tools whose server
// is not configured run on the simulated invoker.
func (rt *runtime) build(cfg *config.Config) (*engine.Engine, *spawner.Pool) {
	pool := spawner.NewPool(cfg.Servers, spawner.Options{
		Timeout:  cfg.StepTimeout(),
		Fallback: chain.SimulatedInvoker{Latency: cfg.StepLatency()},
		Logger:   rt.logger.Named("spawner"),
	})

	eng := engine.New(cfg.Registry(), engine.Options{
		Cache:      cfg.CacheOptions(),
		MaxHistory: cfg.Patterns.MaxHistory,
		Chain: chain.Options{
			Invoker:    pool,
			MaxHistory: cfg.Chains.MaxHistory,
		},
		Logger:  rt.logger.Named("engine"),
		Metrics: rt.metrics,
		Tracker: rt.tracker,
	})
	return eng, pool
}

// reload rebuilds the engine for cfg and installs it in server. The
// journal, metrics and logger are kept; learned patterns start over.
func (rt *runtime) reload(server *mcp.Server, cfg *config.Config) {
	eng, pool := rt.build(cfg)

	rt.mu.Lock()
	oldPool := rt.pool
	rt.cfg, rt.engine, rt.pool = cfg, eng, pool
	rt.mu.Unlock()

	old := server.SetEngine(eng)
	if old != nil {
		if err := old.Close(); err != nil {
			rt.logger.Warn("failed to close previous engine", zap.Error(err))
		}
	}
	if err := oldPool.Close(); err != nil {
		rt.logger.Warn("failed to stop previous servers", zap.Error(err))
	}

	rt.logger.Info("engine rebuilt",
		zap.Int("tools", eng.Registry().Len()),
		zap.String("registryVersion", eng.Registry().Version()),
		zap.Int("servers", len(cfg.Servers)))
}

// Engine returns the current engine.
func (rt *runtime) Engine() *engine.Engine {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.engine
}

// Config returns the current config.
func (rt *runtime) Config() *config.Config {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.cfg
}

// Close flushes the journal and stops every server process.
func (rt *runtime) Close() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	var errs []error
	if rt.tracker != nil {
		rt.tracker.Stop()
	}
	if rt.pool != nil {
		errs = append(errs, rt.pool.Close())
	}
	if rt.engine != nil {
		errs = append(errs, rt.engine.Close())
	}
	if rt.store != nil {
		errs = append(errs, rt.store.Close())
	}
	_ = rt.logger.Sync()
	return errors.Join(errs...)
}
