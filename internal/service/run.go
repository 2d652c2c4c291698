package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/halverson/ticketpilot/internal/domain"
	"github.com/halverson/ticketpilot/internal/domain/run"
	"github.com/halverson/ticketpilot/internal/domain/task"
	"github.com/halverson/ticketpilot/internal/port/messagequeue"
	"github.com/halverson/ticketpilot/internal/port/runstore"
)

// RunService is the control-plane surface for runs: create, inspect,
// pause, resume, cancel. All state advancement happens in the engine; this
// service only flips flags and performs the transitions the control plane
// owns.
type RunService struct {
	store runstore.Store
	sched *Scheduler
	queue messagequeue.Queue
	log   *slog.Logger
}

// NewRunService creates a run service.
func NewRunService(store runstore.Store, sched *Scheduler, log *slog.Logger) *RunService {
	return &RunService{store: store, sched: sched, log: log}
}

// SetQueue attaches a message queue; accepted runs are announced on
// runs.created.
func (s *RunService) SetQueue(q messagequeue.Queue) { s.queue = q }

// Create accepts a task, persists a pending run, and enqueues it.
func (s *RunService) Create(ctx context.Context, input task.Input, projectPath string) (*run.Run, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	if projectPath == "" {
		return nil, fmt.Errorf("project_path is required: %w", domain.ErrValidation)
	}
	if info, err := os.Stat(projectPath); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("project_path %q is not a directory: %w", projectPath, domain.ErrValidation)
	}

	r := &run.Run{
		Title:       input.Title,
		Description: input.Description,
		Source:      input.Source,
		ProjectPath: projectPath,
		Status:      run.StatusPending,
		OwnerPID:    os.Getpid(),
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.CreateRun(ctx, r); err != nil {
		return nil, err
	}

	s.log.Info("run created", "run_id", r.ID, "title", r.Title, "source", r.Source)
	s.announce(ctx, r)
	if s.sched != nil {
		s.sched.Enqueue(r.ID)
	}
	return r, nil
}

// announce publishes runs.created; failures are logged and dropped.
func (s *RunService) announce(ctx context.Context, r *run.Run) {
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(messagequeue.RunCreatedPayload{
		RunID:  r.ID,
		Title:  r.Title,
		Source: r.Source,
	})
	if err != nil {
		s.log.Error("marshal runs.created", "run_id", r.ID, "error", err)
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectRunCreated, data); err != nil {
		s.log.Warn("publish runs.created", "run_id", r.ID, "error", err)
	}
}

// Get returns one run by id.
func (s *RunService) Get(ctx context.Context, id string) (*run.Run, error) {
	return s.store.GetRun(ctx, id)
}

// List returns runs, optionally filtered by status.
func (s *RunService) List(ctx context.Context, status run.Status) ([]run.Run, error) {
	return s.store.ListRuns(ctx, status)
}

// RequestPause flips the run's pause flag. The engine observes it at the
// next step boundary; in-flight work completes first.
func (s *RunService) RequestPause(ctx context.Context, id string) error {
	r, err := s.store.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if run.Terminal(r.Status) {
		return fmt.Errorf("run %s is %s: %w", id, r.Status, domain.ErrConflict)
	}
	if err := s.store.SetPauseRequested(ctx, id, true); err != nil {
		return err
	}
	s.log.Info("pause requested", "run_id", id)
	return nil
}

// Resume clears the pause flag and, for a parked run, re-enters running at
// the same step and re-enqueues it.
func (s *RunService) Resume(ctx context.Context, id string) error {
	r, err := s.store.GetRun(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.SetPauseRequested(ctx, id, false); err != nil {
		return err
	}

	if r.Status == run.StatusPaused {
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
		if _, err := s.store.UpdateRunState(ctx, id, r.Version, upd); err != nil {
			return err
		}
		if s.sched != nil {
			s.sched.Enqueue(id)
		}
	}
	s.log.Info("run resumed", "run_id", id, "step", r.CurrentStep)
	return nil
}

// Cancel aborts a run. Terminal runs cannot be cancelled again; in-flight
// step work finishes before the engine observes the terminal state.
func (s *RunService) Cancel(ctx context.Context, id string) error {
	r, err := s.store.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if !run.CanTransition(r.Status, run.StatusCancelled) {
		return fmt.Errorf("run %s is %s: %w", id, r.Status, domain.ErrConflict)
	}

	upd := runstore.StateUpdate{
		Status:       run.StatusCancelled,
		CurrentStep:  r.CurrentStep,
		Error:        r.Error,
		Context:      r.Context,
		TotalCostUSD: r.TotalCostUSD,
		Language:     r.Language,
		Framework:    r.Framework,
		TestCommand:  r.TestCommand,
	}
	if _, err := s.store.UpdateRunState(ctx, id, r.Version, upd); err != nil {
		return err
	}
	s.log.Info("run cancelled", "run_id", id)
	return nil
}
