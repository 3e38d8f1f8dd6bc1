package chain

import (
	"context"
	"time"

	"github.com/khanglvm/lunar-mcp/internal/clock"
	"github.com/khanglvm/lunar-mcp/internal/models"
)

// Invoker runs a single resolved tool for a chain step.
type Invoker interface {
	Invoke(ctx context.Context, tool models.Tool, args map[string]any) (string, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, tool models.Tool, args map[string]any) (string, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, tool models.Tool, args map[string]any) (string, error) {
	return f(ctx, tool, args)
}

// SimulatedInvoker stands in for real tools: it waits Latency on Clock and
// succeeds with no output.
type SimulatedInvoker struct {
	Latency time.Duration
	Clock   clock.Clock
}

// Invoke simulates running tool.
func (s SimulatedInvoker) Invoke(ctx context.Context, tool models.Tool, args map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.Latency > 0 {
		clk := s.Clock
		if clk == nil {
			clk = clock.Real()
		}
		clk.Sleep(s.Latency)
	}
	return "", nil
}
