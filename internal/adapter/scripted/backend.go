// Package scripted implements the agentcall.Backend port with a
// deterministic in-process script instead of an external LLM agent. It is
// used for dry runs, demos, and tests of the run engine.
package scripted

import (
	"context"
	"fmt"
	"strconv"

	"github.com/halverson/ticketpilot/internal/port/agentcall"
)

const backendName = "scripted"

// StepFunc produces the result of one scripted step. The dispatch callback
// reaches the run's sandboxed tool registry, exactly as a real agent would.
type StepFunc func(ctx context.Context, req *agentcall.StepRequest, dispatch agentcall.Dispatch) (*agentcall.StepResult, error)

// Backend executes each pipeline step by looking up a scripted handler.
// Steps without a handler succeed with a canned result.
type Backend struct {
	steps       map[string]StepFunc
	costPerStep float64
}

// New creates a scripted backend with the given per-step cost.
func New(costPerStep float64) *Backend {
	return &Backend{
		steps:       make(map[string]StepFunc),
		costPerStep: costPerStep,
	}
}

// Register registers the scripted backend factory. The config key
// "cost_per_step" sets the simulated cost of each interaction.
func Register() {
	agentcall.Register(backendName, func(config map[string]string) (agentcall.Backend, error) {
		cost := 0.01
		if v, ok := config["cost_per_step"]; ok {
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("scripted: invalid cost_per_step %q: %w", v, err)
			}
			cost = parsed
		}
		return New(cost), nil
	})
}

// Name returns "scripted".
func (b *Backend) Name() string { return backendName }

// Script installs a handler for the named step.
func (b *Backend) Script(step string, fn StepFunc) {
	b.steps[step] = fn
}

// ExecuteStep runs the scripted handler for the step, or the default
// canned success when no handler is installed.
func (b *Backend) ExecuteStep(ctx context.Context, req *agentcall.StepRequest, dispatch agentcall.Dispatch) (*agentcall.StepResult, error) {
	if fn, ok := b.steps[req.Step]; ok {
		res, err := fn(ctx, req, dispatch)
		if res != nil && res.CostUSD == 0 {
			res.CostUSD = b.costPerStep
		}
		return res, err
	}

	return &agentcall.StepResult{
		Output:  fmt.Sprintf("scripted %s completed", req.Step),
		CostUSD: b.costPerStep,
	}, nil
}
