package nats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/halverson/ticketpilot/internal/adapter/ws"
	"github.com/halverson/ticketpilot/internal/domain/run"
	"github.com/halverson/ticketpilot/internal/port/messagequeue"
)

// eventSubjects maps control-plane event types onto queue subjects.
var eventSubjects = map[string]string{
	ws.EventRunStatus:          messagequeue.SubjectRunStatus,
	ws.EventRunStep:            messagequeue.SubjectRunStep,
	ws.EventCheckpointRequired: messagequeue.SubjectCheckpointRequested,
	ws.EventCheckpointDecided:  messagequeue.SubjectCheckpointDecided,
}

// Broadcaster mirrors run lifecycle events onto the message queue so
// external consumers (ticket bridges, audit sinks) see the same stream
// the GUI does. Publish failures are logged and dropped; the queue is an
// observer, never a gate on run progress.
type Broadcaster struct {
	queue messagequeue.Queue
	log   *slog.Logger
}

// NewBroadcaster creates a queue-backed event broadcaster.
func NewBroadcaster(queue messagequeue.Queue, log *slog.Logger) *Broadcaster {
	return &Broadcaster{queue: queue, log: log}
}

// BroadcastEvent publishes the event to its mapped subject. Event types
// without a subject mapping are ignored.
func (b *Broadcaster) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	subject, ok := eventSubjects[eventType]
	if !ok {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		b.log.Error("marshal queue event", "type", eventType, "error", err)
		return
	}
	if err := b.queue.Publish(ctx, subject, data); err != nil {
		b.log.Warn("publish queue event", "subject", subject, "error", err)
	}

	// Terminal status transitions also land on runs.completed so consumers
	// that only care about outcomes need not track every transition.
	if ev, ok := payload.(ws.RunStatusEvent); ok && run.Terminal(run.Status(ev.Status)) {
		if err := b.queue.Publish(ctx, messagequeue.SubjectRunCompleted, data); err != nil {
			b.log.Warn("publish queue event", "subject", messagequeue.SubjectRunCompleted, "error", err)
		}
	}
}
