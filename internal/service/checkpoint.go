package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/halverson/ticketpilot/internal/adapter/ws"
	"github.com/halverson/ticketpilot/internal/domain"
	"github.com/halverson/ticketpilot/internal/domain/checkpoint"
	"github.com/halverson/ticketpilot/internal/domain/run"
	"github.com/halverson/ticketpilot/internal/port/broadcast"
	"github.com/halverson/ticketpilot/internal/port/runstore"
)

// feedbackPrefix tags rejection feedback inside a run's context so the
// next attempt of the gated step can pick it up.
const feedbackPrefix = "checkpoint feedback: "

// CheckpointService resolves human checkpoint decisions. Approval advances
// the suspended run; rejection re-enters the same step with the feedback
// folded into the run's context. Either way the run is re-enqueued.
type CheckpointService struct {
	store runstore.Store
	hub   broadcast.Broadcaster
	sched *Scheduler
	log   *slog.Logger
}

// NewCheckpointService creates a checkpoint service.
func NewCheckpointService(store runstore.Store, hub broadcast.Broadcaster, sched *Scheduler, log *slog.Logger) *CheckpointService {
	if hub == nil {
		hub = broadcast.Noop{}
	}
	return &CheckpointService{store: store, hub: hub, sched: sched, log: log}
}

// Get returns one checkpoint request by id.
func (s *CheckpointService) Get(ctx context.Context, id string) (*checkpoint.Request, error) {
	return s.store.GetCheckpoint(ctx, id)
}

// ListByRun returns all checkpoint requests for a run, newest first.
func (s *CheckpointService) ListByRun(ctx context.Context, runID string) ([]checkpoint.Request, error) {
	return s.store.ListCheckpointsByRun(ctx, runID)
}

// Decide resolves a pending checkpoint request. Deciding an already
// decided request fails with ErrConflict; the run must still be suspended
// on this checkpoint.
func (s *CheckpointService) Decide(ctx context.Context, id string, approve bool, feedback string) (*checkpoint.Request, error) {
	req, err := s.store.GetCheckpoint(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Decided() {
		return nil, fmt.Errorf("checkpoint %s already decided: %w", id, domain.ErrConflict)
	}

	r, err := s.store.GetRun(ctx, req.RunID)
	if err != nil {
		return nil, err
	}
	if r.Status != run.StatusAwaitingCheckpoint {
		return nil, fmt.Errorf("run %s is not awaiting a checkpoint: %w", r.ID, domain.ErrConflict)
	}

	status := checkpoint.StatusApproved
	if !approve {
		status = checkpoint.StatusRejected
	}
	decided, err := s.store.DecideCheckpoint(ctx, id, status, feedback)
	if err != nil {
		return nil, err
	}

	// Re-enter running at the same step. On approval the engine sees the
	// approved checkpoint and advances; on rejection it re-executes the
	// step with the feedback in context.
	upd := runstore.StateUpdate{
		Status:       run.StatusRunning,
		CurrentStep:  r.CurrentStep,
		Error:        r.Error,
		Context:      r.Context,
		TotalCostUSD: r.TotalCostUSD,
		Language:     r.Language,
		Framework:    r.Framework,
		TestCommand:  r.TestCommand,
	}
	if !approve && feedback != "" {
		upd.Context = append(upd.Context, feedbackPrefix+feedback)
	}
	if _, err := s.store.UpdateRunState(ctx, r.ID, r.Version, upd); err != nil {
		// The decision itself is durable. Leave the release to the engine,
		// which replays it from the decided checkpoint on its next pass.
		s.log.Warn("run release failed, deferring to engine replay",
			"run_id", r.ID, "checkpoint_id", id, "error", err)
	}

	s.hub.BroadcastEvent(ctx, ws.EventCheckpointDecided, ws.CheckpointEvent{
		CheckpointID: decided.ID,
		RunID:        decided.RunID,
		Step:         decided.Step,
		Status:       string(decided.Status),
		Feedback:     decided.Feedback,
	})
	s.log.Info("checkpoint decided",
		"checkpoint_id", decided.ID,
		"run_id", decided.RunID,
		"status", decided.Status,
	)

	if s.sched != nil {
		s.sched.Enqueue(decided.RunID)
	}
	return decided, nil
}
