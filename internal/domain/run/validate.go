package run

import (
	"fmt"

	"github.com/halverson/ticketpilot/internal/domain"
)

// validStatuses enumerates all valid run statuses.
var validStatuses = map[Status]bool{
	StatusPending:            true,
	StatusRunning:            true,
	StatusAwaitingCheckpoint: true,
	StatusPaused:             true,
	StatusCompleted:          true,
	StatusFailed:             true,
	StatusCancelled:          true,
}

// Validate checks that a Run has all required fields and valid values.
func (r *Run) Validate() error {
	if r.Title == "" {
		return fmt.Errorf("title is required: %w", domain.ErrValidation)
	}
	if r.ProjectPath == "" {
		return fmt.Errorf("project_path is required: %w", domain.ErrValidation)
	}
	if r.Status != "" && !validStatuses[r.Status] {
		return fmt.Errorf("invalid status %q: %w", r.Status, domain.ErrValidation)
	}
	if r.TotalCostUSD < 0 {
		return fmt.Errorf("total_cost_usd must be non-negative: %w", domain.ErrValidation)
	}
	return nil
}
