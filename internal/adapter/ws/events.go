package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	EventRunStatus          = "run.status"
	EventRunStep            = "run.step"
	EventCheckpointRequired = "checkpoint.requested"
	EventCheckpointDecided  = "checkpoint.decided"
)

// RunStatusEvent is broadcast when a run's status changes.
type RunStatusEvent struct {
	RunID       string  `json:"run_id"`
	Status      string  `json:"status"`
	CurrentStep string  `json:"current_step,omitempty"`
	Error       string  `json:"error,omitempty"`
	CostUSD     float64 `json:"cost_usd"`
}

// RunStepEvent is broadcast when a pipeline step starts, finishes, or fails.
type RunStepEvent struct {
	RunID   string `json:"run_id"`
	Step    string `json:"step"`
	Attempt int    `json:"attempt"`
	Phase   string `json:"phase"`
}

// CheckpointEvent is broadcast when a checkpoint is requested or decided.
type CheckpointEvent struct {
	CheckpointID string `json:"checkpoint_id"`
	RunID        string `json:"run_id"`
	Step         string `json:"step"`
	Status       string `json:"status,omitempty"`
	Feedback     string `json:"feedback,omitempty"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
