// Package task defines the TaskInput domain entity: the normalized task
// description a ticket source feeds into a new run.
package task

import (
	"fmt"

	"github.com/halverson/ticketpilot/internal/domain"
)

// Input is the normalized task description consumed when a run is created.
type Input struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Source      string `json:"source,omitempty"` // ticket-source tag, e.g. "github", "linear"
}

// Outcome reports a run's terminal result back to its ticket source.
type Outcome struct {
	RunID   string  `json:"run_id"`
	Success bool    `json:"success"`
	Error   string  `json:"error,omitempty"`
	CostUSD float64 `json:"cost_usd"`
}

// Validate checks that an Input has all required fields.
func (i *Input) Validate() error {
	if i.Title == "" {
		return fmt.Errorf("title is required: %w", domain.ErrValidation)
	}
	if i.Description == "" {
		return fmt.Errorf("description is required: %w", domain.ErrValidation)
	}
	return nil
}
