package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/khanglvm/lunar-mcp/internal/clock"
	"github.com/khanglvm/lunar-mcp/internal/jumpcode"
	"github.com/khanglvm/lunar-mcp/internal/models"
	"github.com/khanglvm/lunar-mcp/internal/registry"
)

const (
	// DefaultMaxHistory bounds the execution history.
	DefaultMaxHistory = 100

	// DefaultHistoryLimit is used when History is called with limit <= 0.
	DefaultHistoryLimit = 10

	errNoSteps = "no steps in chain notation"
)

// Options configures an Executor. Zero values select the defaults.
type Options struct {
	// Invoker runs resolved steps. Defaults to a zero-latency
	// SimulatedInvoker.
	Invoker Invoker

	Clock      clock.Clock
	MaxHistory int
}

// Executor resolves and runs chains against one registry snapshot and
// keeps a bounded history of executions.
type Executor struct {
	registry *registry.Registry
	resolver *jumpcode.Resolver
	invoker  Invoker
	clock    clock.Clock

	mu         sync.RWMutex
	maxHistory int
	history    []models.ChainExecution
}

// NewExecutor creates an executor. A nil resolver is built from reg.
func NewExecutor(reg *registry.Registry, resolver *jumpcode.Resolver, opts Options) *Executor {
	if resolver == nil {
		resolver = jumpcode.New(reg)
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Invoker == nil {
		opts.Invoker = SimulatedInvoker{Clock: opts.Clock}
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = DefaultMaxHistory
	}

	return &Executor{
		registry:   reg,
		resolver:   resolver,
		invoker:    opts.Invoker,
		clock:      opts.Clock,
		maxHistory: opts.MaxHistory,
	}
}

// Resolve finds the tool for a step: the first registry tool whose name
// contains the step (case-insensitive), else the tool behind the step
// read as a jump code.
func (e *Executor) Resolve(step string) (models.Tool, bool) {
	needle := strings.ToLower(step)
	if needle == "" {
		return models.Tool{}, false
	}

	for _, tool := range e.registry.Tools() {
		if strings.Contains(strings.ToLower(tool.Name), needle) {
			return tool, true
		}
	}

	if entry, ok := e.resolver.Resolve(jumpcode.Pattern(step)); ok {
		return e.registry.Lookup(entry.Tool)
	}
	return models.Tool{}, false
}

// Validate resolves every step of notation without running anything.
func (e *Executor) Validate(notation string) models.ValidationResult {
	steps := Parse(notation)
	result := models.ValidationResult{
		Valid:  true,
		Steps:  make([]models.StepValidation, 0, len(steps)),
		Errors: []string{},
	}

	if len(steps) == 0 {
		result.Valid = false
		result.Errors = append(result.Errors, errNoSteps)
		return result
	}

	for _, step := range steps {
		tool, ok := e.Resolve(step)
		if !ok {
			result.Valid = false
			result.Errors = append(result.Errors, "unknown step: "+step)
			result.Steps = append(result.Steps, models.StepValidation{Step: step})
			continue
		}
		result.Steps = append(result.Steps, models.StepValidation{Step: step, Tool: tool.Name, Valid: true})
	}

	return result
}

// Execute runs the steps of notation in order. The first step that cannot
// be resolved or whose invocation fails ends the chain as failed. Every
// execution, successful or not, is appended to the history.
func (e *Executor) Execute(ctx context.Context, notation string, args map[string]any) models.ChainExecution {
	start := e.clock.Now()
	exec := models.ChainExecution{
		ID:        uuid.NewString(),
		Notation:  notation,
		Steps:     []models.ChainStep{},
		StartedAt: start,
	}

	steps := Parse(notation)
	if len(steps) == 0 {
		exec.Status = models.ChainFailed
		exec.Error = errNoSteps
	} else {
		exec.Status = models.ChainCompleted
		for i, step := range steps {
			result := e.runStep(ctx, i+1, step, args)
			exec.Steps = append(exec.Steps, result)
			if result.Status == models.StepFailed {
				exec.Status = models.ChainFailed
				exec.Error = result.Error
				break
			}
		}
	}

	exec.TotalDuration = clock.Since(e.clock, start)
	e.record(exec)
	return exec.Clone()
}

func (e *Executor) runStep(ctx context.Context, index int, step string, args map[string]any) models.ChainStep {
	result := models.ChainStep{Index: index, Step: step, Status: models.StepPending}

	tool, ok := e.Resolve(step)
	if !ok {
		result.Status = models.StepFailed
		result.Error = fmt.Sprintf("tool not found for step: %s", step)
		return result
	}

	result.ToolName = tool.Name
	result.Status = models.StepExecuting

	stepStart := e.clock.Now()
	output, err := e.invoker.Invoke(ctx, tool, args)
	result.Duration = clock.Since(e.clock, stepStart)

	if err != nil {
		result.Status = models.StepFailed
		result.Error = err.Error()
		return result
	}

	result.Status = models.StepCompleted
	result.Output = output
	return result
}

func (e *Executor) record(exec models.ChainExecution) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, exec.Clone())
	if len(e.history) > e.maxHistory {
		drop := len(e.history) - e.maxHistory
		copy(e.history, e.history[drop:])
		clear(e.history[e.maxHistory:])
		e.history = e.history[:e.maxHistory]
	}
}

// History returns up to limit of the most recent executions, oldest
// first. A limit <= 0 selects DefaultHistoryLimit.
func (e *Executor) History(limit int) []models.ChainExecution {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	start := max(len(e.history)-limit, 0)
	out := make([]models.ChainExecution, 0, len(e.history)-start)
	for _, exec := range e.history[start:] {
		out = append(out, exec.Clone())
	}
	return out
}

// Len returns the number of executions in the history.
func (e *Executor) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.history)
}
