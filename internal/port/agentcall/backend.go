// Package agentcall defines the port for the external LLM coding-agent
// collaborator. The engine hands the backend a step request plus the tool
// schemas it may use; the backend returns proposed tool calls through the
// dispatch callback and a final step result.
package agentcall

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/halverson/ticketpilot/internal/domain/run"
)

// Dispatch forwards one agent-proposed tool call to the run's registry and
// returns the capability result verbatim. This is the only path from agent
// output to the project's filesystem and shell.
type Dispatch func(ctx context.Context, name string, args map[string]any) string

// StepRequest describes one pipeline step the backend should drive.
type StepRequest struct {
	Run      *run.Run   `json:"run"`
	Step     string     `json:"step"`
	Context  []string   `json:"context,omitempty"`
	Feedback string     `json:"feedback,omitempty"` // checkpoint rejection feedback, when re-entering
	Tools    []mcp.Tool `json:"tools"`
}

// StepResult is the backend's output for one completed step interaction.
type StepResult struct {
	Output    string  `json:"output"`
	Proposal  string  `json:"proposal,omitempty"` // payload for a checkpoint request, when the step is gated
	CostUSD   float64 `json:"cost_usd"`
	TokensIn  int64   `json:"tokens_in,omitempty"`
	TokensOut int64   `json:"tokens_out,omitempty"`
}

// Backend is the port interface for the external agent call. ExecuteStep is
// blocking, retryable, and possibly slow; implementations must honor
// context cancellation.
type Backend interface {
	// Name returns the unique identifier for this backend (e.g. "claude-cli").
	Name() string

	// ExecuteStep drives the agent through one pipeline step, dispatching
	// any tool calls it proposes through the given callback.
	ExecuteStep(ctx context.Context, req *StepRequest, dispatch Dispatch) (*StepResult, error)
}
