/*
Package engine composes the registry, jump codes, suggestion cache,
pattern learner and chain executor into one decision per request.

Analyze resolves a request along the cheapest applicable path:

  - chain notation ([CHAIN:...]) runs the chain and returns its trace;
  - a jump code ([TOOL:...]) names the tool directly with full confidence;
  - otherwise the suggestion cache is consulted (exact key, then
    approximate match) and, on a miss, lexical matching against the
    registry is merged with the learner's context-based suggestions.

Suggestions that name a tool are fed back into the learner.
*/
package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/khanglvm/lunar-mcp/internal/cache"
	"github.com/khanglvm/lunar-mcp/internal/chain"
	"github.com/khanglvm/lunar-mcp/internal/clock"
	"github.com/khanglvm/lunar-mcp/internal/jumpcode"
	"github.com/khanglvm/lunar-mcp/internal/learning"
	"github.com/khanglvm/lunar-mcp/internal/metrics"
	"github.com/khanglvm/lunar-mcp/internal/models"
	"github.com/khanglvm/lunar-mcp/internal/registry"
	"github.com/khanglvm/lunar-mcp/internal/search"
)

const (
	// suggestionConfidence is assigned to every computed suggestion that
	// names a tool.
	suggestionConfidence = 0.85

	// maxSuggestions bounds the alternative tools of a suggestion.
	maxSuggestions = 5

	// patternSuggestLimit is how many learner suggestions are merged in.
	patternSuggestLimit = 5

	reasonJumpCode = "direct jump code match"
	reasonAnalysis = "semantic and pattern analysis"
	reasonNoMatch  = "no matching tool"
)

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	Cache      cache.Options
	MaxHistory int
	Chain      chain.Options
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Clock      clock.Clock

	// Tracker, when set, journals usage records, analyses and chain
	// executions.
	Tracker *learning.Tracker
}

// Stats summarizes the engine's stores.
type Stats struct {
	Cache           cache.Stats           `json:"cache"`
	Patterns        learning.PatternStats `json:"patterns"`
	Chains          int                   `json:"chains"`
	Tools           int                   `json:"tools"`
	RegistryVersion string                `json:"registryVersion"`
}

// Catalog describes the registry as exposed to clients.
type Catalog struct {
	Tools      []models.Tool       `json:"tools"`
	TotalCount int                 `json:"totalCount"`
	Categories map[string][]string `json:"categories"`
	JumpCodes  []models.JumpCode   `json:"jumpCodes"`
	Version    string              `json:"version"`
}

// Engine analyzes requests against one registry snapshot. It holds no
// lock of its own; each store it owns is safe for concurrent use.
type Engine struct {
	registry *registry.Registry
	resolver *jumpcode.Resolver
	cache    *cache.Cache
	learner  *learning.PatternLearner
	chains   *chain.Executor
	indexer  *search.Indexer

	logger  *zap.Logger
	metrics *metrics.Metrics
	clock   clock.Clock
	tracker *learning.Tracker
}

// New builds an engine for reg.
func New(reg *registry.Registry, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Cache.Clock == nil {
		opts.Cache.Clock = opts.Clock
	}
	if opts.Chain.Clock == nil {
		opts.Chain.Clock = opts.Clock
	}

	resolver := jumpcode.New(reg)
	e := &Engine{
		registry: reg,
		resolver: resolver,
		cache:    cache.New(opts.Cache),
		learner:  learning.NewPatternLearner(opts.MaxHistory, opts.Clock),
		chains:   chain.NewExecutor(reg, resolver, opts.Chain),
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		clock:    opts.Clock,
		tracker:  opts.Tracker,
	}

	e.learner.OnRecord(func(record models.UsageRecord) {
		e.metrics.ObserveUsage()
		if e.tracker != nil {
			e.tracker.TrackUsage(record)
		}
	})

	indexer, err := search.NewRegistryIndexer(reg, opts.Logger)
	if err != nil {
		opts.Logger.Warn("tool search disabled", zap.Error(err))
	} else {
		e.indexer = indexer
	}

	return e
}

// Close releases the search index.
func (e *Engine) Close() error {
	if e.indexer == nil {
		return nil
	}
	return e.indexer.Close()
}

// Analyze decides how to handle request.
func (e *Engine) Analyze(ctx context.Context, request string) models.Analysis {
	start := e.clock.Now()

	var analysis models.Analysis
	var path string

	if chain.Contains(request) {
		exec := e.ExecuteChain(ctx, request)
		analysis = models.Analysis{Kind: models.KindChain, Chain: &exec}
		path = metrics.PathChain
	} else if entry, ok := e.resolver.Resolve(request); ok {
		analysis = models.Analysis{
			Kind: models.KindSuggestion,
			Suggestion: &models.Suggestion{
				PrimaryTool: entry.Tool,
				Confidence:  1.0,
				Reason:      reasonJumpCode,
				JumpCode:    entry.Code,
				Suggestions: []string{},
			},
		}
		path = metrics.PathJumpCode
	} else {
		var suggestion models.Suggestion
		suggestion, path = e.suggest(ctx, request)
		analysis = models.Analysis{Kind: models.KindSuggestion, Suggestion: &suggestion}

		if suggestion.HasTool() {
			e.learner.LogUsage(suggestion.PrimaryTool, request, true, clock.Since(e.clock, start))
		}
	}

	elapsed := clock.Since(e.clock, start)
	e.metrics.ObserveAnalyze(path, elapsed)
	if e.tracker != nil {
		e.tracker.Track(learning.NewAnalysisEvent(request, analysis, start))
	}

	if analysis.Suggestion != nil {
		e.logger.Debug("request analyzed",
			zap.String("path", path),
			zap.String("tool", analysis.Suggestion.PrimaryTool),
			zap.Float64("confidence", analysis.Suggestion.Confidence),
			zap.Duration("elapsed", elapsed))
	}

	return analysis
}

// suggest serves request from the cache or computes a fresh suggestion.
func (e *Engine) suggest(ctx context.Context, request string) (models.Suggestion, string) {
	suggestion, source, err := e.cache.GetOrCompute(ctx, request, func(ctx context.Context) (models.Suggestion, error) {
		if err := ctx.Err(); err != nil {
			return models.Suggestion{}, err
		}
		return e.computeSuggestion(request), nil
	})

	switch source {
	case cache.SourceExact:
		e.metrics.ObserveCache("exact")
	case cache.SourceSimilar:
		e.metrics.ObserveCache("similar")
	default:
		e.metrics.ObserveCache("miss")
	}

	if err != nil {
		e.logger.Warn("suggestion computation failed", zap.Error(err))
		return noSuggestion(), metrics.PathComputed
	}

	if source == cache.SourceComputed {
		return suggestion, metrics.PathComputed
	}
	return suggestion, metrics.PathCache
}

// computeSuggestion merges lexical registry matches with the learner's
// suggestions for request.
func (e *Engine) computeSuggestion(request string) models.Suggestion {
	lexical := e.lexicalMatches(request)
	patterns := e.learner.Suggest(request, patternSuggestLimit)

	var primary string
	switch {
	case len(lexical) > 0:
		primary = lexical[0]
	case len(patterns) > 0:
		primary = patterns[0].Tool
	default:
		return noSuggestion()
	}

	// Alternatives are the next two lexical matches followed by every
	// pattern tool, as ranked. Repeats of the primary are kept.
	alternatives := make([]string, 0, maxSuggestions)
	if len(lexical) > 1 {
		alternatives = append(alternatives, lexical[1:min(len(lexical), 3)]...)
	}
	for _, p := range patterns {
		alternatives = append(alternatives, p.Tool)
	}
	if len(alternatives) > maxSuggestions {
		alternatives = alternatives[:maxSuggestions]
	}

	return models.Suggestion{
		PrimaryTool: primary,
		Confidence:  suggestionConfidence,
		Reason:      reasonAnalysis,
		Suggestions: alternatives,
	}
}

// lexicalMatches returns, in registry order, the tools whose category or
// name fragment appears in the lowercased request. The name fragment is
// the part after the first ":" with underscores read as spaces.
func (e *Engine) lexicalMatches(request string) []string {
	lower := strings.ToLower(request)

	var matches []string
	for _, tool := range e.registry.Tools() {
		category := strings.ToLower(registry.CategoryOf(tool))
		if strings.Contains(lower, category) {
			matches = append(matches, tool.Name)
			continue
		}
		if fragment := nameFragment(tool.Name); fragment != "" && strings.Contains(lower, fragment) {
			matches = append(matches, tool.Name)
		}
	}
	return matches
}

func nameFragment(name string) string {
	parts := strings.Split(strings.ToLower(name), ":")
	if len(parts) < 2 {
		return ""
	}
	return strings.ReplaceAll(parts[1], "_", " ")
}

func noSuggestion() models.Suggestion {
	return models.Suggestion{Reason: reasonNoMatch, Suggestions: []string{}}
}

// ExecuteChain runs the chain in notation and journals the result.
func (e *Engine) ExecuteChain(ctx context.Context, notation string) models.ChainExecution {
	exec := e.chains.Execute(ctx, notation, nil)

	e.metrics.ObserveChain(string(exec.Status), len(exec.Steps))
	if e.tracker != nil {
		e.tracker.TrackChain(exec)
	}

	if exec.Status == models.ChainFailed {
		e.logger.Info("chain failed",
			zap.String("id", exec.ID),
			zap.String("error", exec.Error),
			zap.Int("steps", len(exec.Steps)))
	} else {
		e.logger.Debug("chain completed",
			zap.String("id", exec.ID),
			zap.Int("steps", len(exec.Steps)),
			zap.Duration("elapsed", exec.TotalDuration))
	}

	return exec
}

// ValidateChain resolves the steps of notation without running them.
func (e *Engine) ValidateChain(notation string) models.ValidationResult {
	return e.chains.Validate(notation)
}

// ChainHistory returns the latest chain executions, oldest first.
func (e *Engine) ChainHistory(limit int) []models.ChainExecution {
	return e.chains.History(limit)
}

// ListJumpCodes returns every jump code in registry order.
func (e *Engine) ListJumpCodes() []models.JumpCode {
	return e.resolver.ListAll()
}

// SearchJumpCodes returns jump codes whose code or tool matches pattern.
func (e *Engine) SearchJumpCodes(pattern string) ([]models.JumpCode, error) {
	return e.resolver.Search(pattern)
}

// PredictNext returns the tools observed to follow tool.
func (e *Engine) PredictNext(tool string) []learning.Prediction {
	return e.learner.PredictNext(tool)
}

// SearchTools ranks registry tools for a free-text query.
func (e *Engine) SearchTools(query string, limit int) ([]search.SearchResult, error) {
	if e.indexer == nil {
		return nil, fmt.Errorf("tool search is unavailable")
	}
	return e.indexer.SearchHybrid(query, limit, search.DefaultFusionConfig)
}

// Learner exposes the pattern learner.
func (e *Engine) Learner() *learning.PatternLearner {
	return e.learner
}

// Registry returns the registry snapshot the engine was built for.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Catalog describes every tool with its category and jump code.
func (e *Engine) Catalog() Catalog {
	tools := e.registry.Tools()
	return Catalog{
		Tools:      tools,
		TotalCount: len(tools),
		Categories: e.registry.Categories(),
		JumpCodes:  e.resolver.ListAll(),
		Version:    e.registry.Version(),
	}
}

// Stats returns a snapshot of the engine's stores.
func (e *Engine) Stats() Stats {
	return Stats{
		Cache:           e.cache.Stats(),
		Patterns:        e.learner.Stats(),
		Chains:          e.chains.Len(),
		Tools:           e.registry.Len(),
		RegistryVersion: e.registry.Version(),
	}
}
