// Package checkpoint defines the CheckpointRequest domain entity: a
// human-in-the-loop gate for one run at one pipeline step.
package checkpoint

import (
	"fmt"
	"time"

	"github.com/halverson/ticketpilot/internal/domain"
)

// Status represents the decision state of a checkpoint request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Request is a human-approval gate tied to a run and a pipeline step.
// It is mutated exactly once, from pending to a terminal status.
type Request struct {
	ID        string     `json:"id"`
	RunID     string     `json:"run_id"`
	Step      string     `json:"step"`
	Payload   string     `json:"payload,omitempty"`
	Status    Status     `json:"status"`
	Feedback  string     `json:"feedback,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
}

// Decided reports whether the request has reached a terminal status.
// DecidedAt is set iff this returns true.
func (r *Request) Decided() bool {
	return r.Status == StatusApproved || r.Status == StatusRejected
}

// Validate checks that a Request has all required fields and valid values.
func (r *Request) Validate() error {
	if r.RunID == "" {
		return fmt.Errorf("run_id is required: %w", domain.ErrValidation)
	}
	if r.Step == "" {
		return fmt.Errorf("step is required: %w", domain.ErrValidation)
	}
	switch r.Status {
	case "", StatusPending, StatusApproved, StatusRejected:
	default:
		return fmt.Errorf("invalid status %q: %w", r.Status, domain.ErrValidation)
	}
	if r.Decided() && r.DecidedAt == nil {
		return fmt.Errorf("decided_at is required for status %q: %w", r.Status, domain.ErrValidation)
	}
	if !r.Decided() && r.DecidedAt != nil {
		return fmt.Errorf("decided_at must be unset while pending: %w", domain.ErrValidation)
	}
	return nil
}
