package service

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/halverson/ticketpilot/internal/domain/run"
)

// Scheduler bounds how many runs execute concurrently. Enqueue never
// blocks the caller; execution waits on the semaphore in a goroutine.
type Scheduler struct {
	engine  *Engine
	sem     *semaphore.Weighted
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	log     *slog.Logger
}

// NewScheduler creates a scheduler allowing up to maxConcurrent runs.
func NewScheduler(engine *Engine, maxConcurrent int64, log *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		engine:  engine,
		sem:     semaphore.NewWeighted(maxConcurrent),
		baseCtx: ctx,
		cancel:  cancel,
		log:     log,
	}
}

// Enqueue schedules a run for execution. The engine's per-run lock makes
// duplicate enqueues of the same run harmless.
func (s *Scheduler) Enqueue(runID string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if err := s.sem.Acquire(s.baseCtx, 1); err != nil {
			return // shutting down
		}
		defer s.sem.Release(1)

		if err := s.engine.Execute(s.baseCtx, runID); err != nil {
			s.log.Error("run execution failed", "run_id", runID, "error", err)
		}
	}()
}

// Recover re-enqueues every run that was in flight when the process last
// stopped. Suspended runs are enqueued too: the engine releases any whose
// checkpoint was decided but never applied to the run, and leaves the rest
// parked. Paused runs stay parked until an explicit resume.
func (s *Scheduler) Recover(ctx context.Context) error {
	for _, status := range []run.Status{run.StatusRunning, run.StatusAwaitingCheckpoint, run.StatusPending} {
		runs, err := s.engine.store.ListRuns(ctx, status)
		if err != nil {
			return err
		}
		for _, r := range runs {
			s.log.Info("recovering run", "run_id", r.ID, "status", r.Status, "step", r.CurrentStep)
			s.Enqueue(r.ID)
		}
	}
	return nil
}

// Shutdown stops accepting work and waits for in-flight runs to park or
// finish their current step.
func (s *Scheduler) Shutdown() {
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until all enqueued runs have finished executing.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
