package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/halverson/ticketpilot/internal/domain/task"
	"github.com/halverson/ticketpilot/internal/port/messagequeue"
	"github.com/halverson/ticketpilot/internal/port/ticketsource"
)

const sourceName = "queue"

// TicketSource reports run outcomes onto the message queue. External
// ticket-system bridges consume the subject and update the upstream
// ticket; the coordinator itself speaks no ticket wire protocol.
type TicketSource struct {
	queue messagequeue.Queue
}

// NewTicketSource creates a queue-backed ticket source.
func NewTicketSource(queue messagequeue.Queue) *TicketSource {
	return &TicketSource{queue: queue}
}

// RegisterTicketSource registers the queue-backed source factory under
// the "queue" name.
func RegisterTicketSource(queue messagequeue.Queue) {
	ticketsource.Register(sourceName, func(_ map[string]string) (ticketsource.Source, error) {
		return NewTicketSource(queue), nil
	})
}

// Name returns the source identifier.
func (s *TicketSource) Name() string {
	return sourceName
}

// UpdateStatus publishes the run's terminal outcome to tickets.outcome.
func (s *TicketSource) UpdateStatus(ctx context.Context, outcome task.Outcome) error {
	payload := messagequeue.TicketOutcomePayload{
		RunID:   outcome.RunID,
		Source:  sourceName,
		Success: outcome.Success,
		Error:   outcome.Error,
		CostUSD: outcome.CostUSD,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal ticket outcome: %w", err)
	}
	return s.queue.Publish(ctx, messagequeue.SubjectTicketOutcome, data)
}
