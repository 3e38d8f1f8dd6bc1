/*
Package benchmark measures request analysis over a request corpus.

Each iteration replays the whole corpus against one engine, so the first
pass mostly computes suggestions and later passes exercise the suggestion
cache. The result reports latency percentiles, how requests were resolved
and the cache hit rate.
*/
package benchmark

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/khanglvm/lunar-mcp/internal/clock"
	"github.com/khanglvm/lunar-mcp/internal/engine"
	"github.com/khanglvm/lunar-mcp/internal/models"
)

// DefaultIterations is the number of corpus passes.
const DefaultIterations = 3

// DefaultRequests is a corpus over the sample tool catalog covering every
// analysis path.
var DefaultRequests = []string{
	"create a github repository for the new service",
	"create a github repo for the new service",
	"open a branch on github",
	"spin up a docker container",
	"start a docker container for tests",
	"run [TOOL:file-1] on the config",
	"[TOOL:system-1] list processes",
	"read the file and summarize it",
	"deploy something somewhere",
	"[CHAIN:github-1→docker-1]",
	"[CHAIN:github-1→github-2→system-1]",
}

// Outcome classifies how a request was resolved.
type Outcome string

const (
	OutcomeJumpCode   Outcome = "jumpCode"
	OutcomeSuggestion Outcome = "suggestion"
	OutcomeNoMatch    Outcome = "noMatch"
	OutcomeChain      Outcome = "chain"
)

// Options configures a benchmark run.
type Options struct {
	Iterations int
	Requests   []string
	Clock      clock.Clock
}

// LatencyStats summarizes per-request analysis latency.
type LatencyStats struct {
	Min  time.Duration `json:"min"`
	Mean time.Duration `json:"mean"`
	P50  time.Duration `json:"p50"`
	P95  time.Duration `json:"p95"`
	Max  time.Duration `json:"max"`
}

// Result is the outcome of a benchmark run.
type Result struct {
	Requests    int             `json:"requests"`
	Iterations  int             `json:"iterations"`
	Analyses    int             `json:"analyses"`
	Outcomes    map[Outcome]int `json:"outcomes"`
	CacheHits   int64           `json:"cacheHits"`
	CacheMisses int64           `json:"cacheMisses"`
	HitRate     float64         `json:"hitRate"`
	Latency     LatencyStats    `json:"latency"`
	Total       time.Duration   `json:"total"`
}

// Run replays the corpus against eng. It stops early, with the analyses
// done so far, when ctx is done.
func Run(ctx context.Context, eng *engine.Engine, opts Options) Result {
	if opts.Iterations <= 0 {
		opts.Iterations = DefaultIterations
	}
	if len(opts.Requests) == 0 {
		opts.Requests = DefaultRequests
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}

	before := eng.Stats().Cache
	result := Result{
		Requests:   len(opts.Requests),
		Iterations: opts.Iterations,
		Outcomes:   make(map[Outcome]int),
	}

	latencies := make([]time.Duration, 0, len(opts.Requests)*opts.Iterations)
	start := opts.Clock.Now()

loop:
	for i := 0; i < opts.Iterations; i++ {
		for _, request := range opts.Requests {
			if ctx.Err() != nil {
				break loop
			}
			t0 := opts.Clock.Now()
			analysis := eng.Analyze(ctx, request)
			latencies = append(latencies, clock.Since(opts.Clock, t0))
			result.Outcomes[Classify(analysis)]++
		}
	}

	result.Total = clock.Since(opts.Clock, start)
	result.Analyses = len(latencies)
	result.Latency = summarize(latencies)

	after := eng.Stats().Cache
	result.CacheHits = after.Hits - before.Hits
	result.CacheMisses = after.Misses - before.Misses
	if lookups := result.CacheHits + result.CacheMisses; lookups > 0 {
		result.HitRate = float64(result.CacheHits) / float64(lookups)
	}
	return result
}

// Classify reports how an analysis was resolved.
func Classify(analysis models.Analysis) Outcome {
	switch {
	case analysis.Kind == models.KindChain:
		return OutcomeChain
	case analysis.Suggestion == nil || !analysis.Suggestion.HasTool():
		return OutcomeNoMatch
	case analysis.Suggestion.JumpCode != "":
		return OutcomeJumpCode
	default:
		return OutcomeSuggestion
	}
}

func summarize(latencies []time.Duration) LatencyStats {
	if len(latencies) == 0 {
		return LatencyStats{}
	}

	sorted := append([]time.Duration(nil), latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}

	return LatencyStats{
		Min:  sorted[0],
		Mean: total / time.Duration(len(sorted)),
		P50:  percentile(sorted, 0.50),
		P95:  percentile(sorted, 0.95),
		Max:  sorted[len(sorted)-1],
	}
}

// percentile uses the nearest-rank method on sorted input.
func percentile(sorted []time.Duration, p float64) time.Duration {
	rank := int(p*float64(len(sorted)) + 0.999999)
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// Format renders a human-readable report.
func Format(r Result) string {
	var b strings.Builder
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(&b, "║              ANALYSIS BENCHMARK RESULTS                      ║")
	fmt.Fprintln(&b, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "  Requests:    %d × %d iterations = %d analyses\n", r.Requests, r.Iterations, r.Analyses)
	fmt.Fprintf(&b, "  Total time:  %v\n", r.Total)
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "  ⏱  Latency")
	fmt.Fprintf(&b, "     min %v · p50 %v · p95 %v · max %v · mean %v\n",
		r.Latency.Min, r.Latency.P50, r.Latency.P95, r.Latency.Max, r.Latency.Mean)
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "  🧭 Outcomes")
	for _, outcome := range []Outcome{OutcomeJumpCode, OutcomeSuggestion, OutcomeNoMatch, OutcomeChain} {
		fmt.Fprintf(&b, "     %-11s %d\n", outcome, r.Outcomes[outcome])
	}
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "  💾 Suggestion cache")
	fmt.Fprintf(&b, "     hits %d · misses %d · hit rate %.1f%%\n", r.CacheHits, r.CacheMisses, r.HitRate*100)
	fmt.Fprintln(&b)
	return b.String()
}
