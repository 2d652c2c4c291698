// Package run defines the Run domain entity: one end-to-end execution of the
// implement-a-ticket pipeline for a single task.
package run

import "time"

// Status represents the current state of a run.
type Status string

const (
	StatusPending            Status = "pending"
	StatusRunning            Status = "running"
	StatusAwaitingCheckpoint Status = "awaiting_checkpoint"
	StatusPaused             Status = "paused"
	StatusCompleted          Status = "completed"
	StatusFailed             Status = "failed"
	StatusCancelled          Status = "cancelled"
)

// Run represents one execution of the pipeline for one task. A run owns its
// checkpoint requests and is never physically deleted by the core.
type Run struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Source      string `json:"source,omitempty"`
	ProjectPath string `json:"project_path"`
	Status      Status `json:"status"`
	CurrentStep string `json:"current_step,omitempty"`

	// Stack details discovered during the recon step.
	Language    string `json:"language,omitempty"`
	Framework   string `json:"framework,omitempty"`
	TestCommand string `json:"test_command,omitempty"`

	Error          string    `json:"error,omitempty"`
	Context        []string  `json:"context,omitempty"`
	TotalCostUSD   float64   `json:"total_cost_usd"`
	PauseRequested bool      `json:"pause_requested"`
	OwnerPID       int       `json:"owner_pid,omitempty"`
	Version        int       `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Terminal reports whether a status admits no further transitions.
func Terminal(s Status) bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// transitions enumerates the legal status edges of the state machine.
// Pause and checkpoint suspension are only reachable from running; both
// resume back into running at the same step.
var transitions = map[Status][]Status{
	StatusPending:            {StatusRunning, StatusCancelled},
	StatusRunning:            {StatusRunning, StatusAwaitingCheckpoint, StatusPaused, StatusCompleted, StatusFailed, StatusCancelled},
	StatusAwaitingCheckpoint: {StatusRunning, StatusFailed, StatusCancelled},
	StatusPaused:             {StatusRunning, StatusCancelled},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
