// Package service contains the application services: the run engine (state
// machine), the scheduler, and the run/checkpoint control-plane operations.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/halverson/ticketpilot/internal/adapter/otel"
	"github.com/halverson/ticketpilot/internal/adapter/ws"
	"github.com/halverson/ticketpilot/internal/domain"
	"github.com/halverson/ticketpilot/internal/domain/checkpoint"
	"github.com/halverson/ticketpilot/internal/domain/pipeline"
	"github.com/halverson/ticketpilot/internal/domain/project"
	"github.com/halverson/ticketpilot/internal/domain/run"
	"github.com/halverson/ticketpilot/internal/domain/task"
	"github.com/halverson/ticketpilot/internal/logger"
	"github.com/halverson/ticketpilot/internal/port/agentcall"
	"github.com/halverson/ticketpilot/internal/port/broadcast"
	"github.com/halverson/ticketpilot/internal/port/runstore"
	"github.com/halverson/ticketpilot/internal/port/ticketsource"
	"github.com/halverson/ticketpilot/internal/resilience"
	"github.com/halverson/ticketpilot/internal/tool"
)

// persistAttempts bounds how often a failed state persistence is retried
// before the step attempt is abandoned.
const persistAttempts = 3

// EngineConfig carries the policy knobs of the run engine.
type EngineConfig struct {
	Pipeline       pipeline.Definition
	TestIterations int // run_tests budget inside one implement attempt
	Sandbox        tool.SandboxOptions
}

// Engine is the run state machine. Execute drives one run from its
// persisted state toward a terminal status, suspending at checkpoints and
// pause requests. Every transition is persisted before the work it enables
// begins, so a crash is always resumable by calling Execute again.
type Engine struct {
	store   runstore.Store
	backend agentcall.Backend
	breaker *resilience.Breaker
	hub     broadcast.Broadcaster
	metrics *otel.Metrics
	tickets func(name string) ticketsource.Source
	cfg     EngineConfig
	log     *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates a run engine. hub may be broadcast.Noop; metrics and
// tickets may be nil.
func NewEngine(store runstore.Store, backend agentcall.Backend, breaker *resilience.Breaker, hub broadcast.Broadcaster, cfg EngineConfig, log *slog.Logger) *Engine {
	if hub == nil {
		hub = broadcast.Noop{}
	}
	if cfg.TestIterations <= 0 {
		cfg.TestIterations = 5
	}
	return &Engine{
		store:   store,
		backend: backend,
		breaker: breaker,
		hub:     hub,
		cfg:     cfg,
		log:     log,
		locks:   make(map[string]*sync.Mutex),
	}
}

// SetMetrics attaches otel instruments to the engine.
func (e *Engine) SetMetrics(m *otel.Metrics) { e.metrics = m }

// SetTicketResolver attaches a lookup from source tag to ticket source,
// used to push terminal outcomes back to the originating system.
func (e *Engine) SetTicketResolver(resolve func(name string) ticketsource.Source) {
	e.tickets = resolve
}

// runLock returns the per-run mutex, creating it on first use. It ensures a
// single Execute is driving a given run in this process.
func (e *Engine) runLock(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

// Execute advances the run until it reaches a terminal status, suspends at
// a checkpoint, or parks on a pause request. It is safe to call repeatedly
// and after crashes; it picks up from whatever state was last persisted.
func (e *Engine) Execute(ctx context.Context, runID string) error {
	l := e.runLock(runID)
	l.Lock()
	defer l.Unlock()

	ctx = logger.WithRunID(ctx, runID)
	ctx, span := otel.StartRunSpan(ctx, runID)
	defer span.End()

	started := time.Now()

	for {
		r, err := e.store.GetRun(ctx, runID)
		if err != nil {
			return err
		}

		switch {
		case run.Terminal(r.Status):
			return nil
		case r.Status == run.StatusAwaitingCheckpoint:
			// Suspended until a decision. The decision and the run's
			// release are separate writes; if the release write was lost,
			// replay it from the decided checkpoint.
			released, err := e.resumeSuspended(ctx, r)
			if err != nil || !released {
				return err
			}
			continue
		case r.Status == run.StatusPaused:
			return nil
		case r.Status == run.StatusPending:
			first := e.cfg.Pipeline.First()
			r, err = e.transition(ctx, r, runstore.StateUpdate{
				Status:      run.StatusRunning,
				CurrentStep: first.Name,
				Context:     r.Context,
			})
			if err != nil {
				return err
			}
			if e.metrics != nil {
				e.metrics.RunsStarted.Add(ctx, 1)
			}
			continue
		}

		// Status is running. Pause is cooperative and observed only here,
		// at the step boundary.
		if r.PauseRequested {
			if _, err := e.transition(ctx, r, stateOf(r, run.StatusPaused)); err != nil {
				return err
			}
			e.log.Info("run paused", "run_id", r.ID, "step", r.CurrentStep)
			return nil
		}

		step, err := e.cfg.Pipeline.Get(r.CurrentStep)
		if err != nil {
			return e.fail(ctx, r, started, fmt.Sprintf("unknown pipeline step %q", r.CurrentStep))
		}

		// An approved checkpoint for the current step means the gated work
		// is already done; advance without re-executing. A rejected one
		// means re-execute with the feedback already folded into context.
		if approved, err := e.stepApproved(ctx, r, step); err != nil {
			return err
		} else if approved {
			if done, err := e.advance(ctx, &r, step, started); err != nil || done {
				return err
			}
			continue
		}

		updated, failMsg, err := e.executeStep(ctx, r, step)
		if err != nil {
			return err
		}
		r = updated
		if failMsg != "" {
			return e.fail(ctx, r, started, failMsg)
		}

		if step.Gated {
			if err := e.suspendForCheckpoint(ctx, r, step); err != nil {
				return err
			}
			return nil
		}

		if done, err := e.advance(ctx, &r, step, started); err != nil || done {
			return err
		}
	}
}

// stateOf builds a StateUpdate preserving every run field except status.
func stateOf(r *run.Run, status run.Status) runstore.StateUpdate {
	return runstore.StateUpdate{
		Status:       status,
		CurrentStep:  r.CurrentStep,
		Error:        r.Error,
		Context:      r.Context,
		TotalCostUSD: r.TotalCostUSD,
		Language:     r.Language,
		Framework:    r.Framework,
		TestCommand:  r.TestCommand,
	}
}

// transition persists one state change, retrying transient store faults. A
// version conflict means another actor moved the run; the error propagates
// out of Execute immediately, abandoning this pass and leaving the run to
// whoever holds the fresh version.
func (e *Engine) transition(ctx context.Context, r *run.Run, upd runstore.StateUpdate) (*run.Run, error) {
	if !run.CanTransition(r.Status, upd.Status) {
		return nil, fmt.Errorf("illegal transition %s -> %s for run %s", r.Status, upd.Status, r.ID)
	}

	var lastErr error
	for attempt := 0; attempt < persistAttempts; attempt++ {
		updated, err := e.store.UpdateRunState(ctx, r.ID, r.Version, upd)
		if err == nil {
			e.broadcastStatus(ctx, updated)
			return updated, nil
		}
		if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		lastErr = err
		e.log.Warn("state persistence failed, retrying", "run_id", r.ID, "error", err)
	}
	return nil, fmt.Errorf("persist transition for run %s: %w", r.ID, lastErr)
}

func (e *Engine) broadcastStatus(ctx context.Context, r *run.Run) {
	e.hub.BroadcastEvent(ctx, ws.EventRunStatus, ws.RunStatusEvent{
		RunID:       r.ID,
		Status:      string(r.Status),
		CurrentStep: r.CurrentStep,
		Error:       r.Error,
		CostUSD:     r.TotalCostUSD,
	})
}

// executeStep runs one pipeline step through the agent backend with the
// step's retry budget. It always returns the freshest persisted run; a
// non-empty failure message means the budget is exhausted.
func (e *Engine) executeStep(ctx context.Context, r *run.Run, step pipeline.Step) (*run.Run, string, error) {
	registry, err := e.registryFor(r)
	if err != nil {
		return r, fmt.Sprintf("sandbox setup: %v", err), nil
	}

	var lastErr error
	for attempt := 1; attempt <= step.Attempts(); attempt++ {
		sctx, span := otel.StartStepSpan(ctx, r.ID, step.Name, attempt)

		e.hub.BroadcastEvent(sctx, ws.EventRunStep, ws.RunStepEvent{
			RunID: r.ID, Step: step.Name, Attempt: attempt, Phase: "started",
		})

		result, callErr := e.callBackend(sctx, r, step, registry)
		span.End()

		if result != nil && result.CostUSD > 0 {
			r.TotalCostUSD += result.CostUSD
		}

		if callErr != nil {
			lastErr = callErr
			if e.metrics != nil && attempt < step.Attempts() {
				e.metrics.StepRetries.Add(ctx, 1)
			}
			e.hub.BroadcastEvent(ctx, ws.EventRunStep, ws.RunStepEvent{
				RunID: r.ID, Step: step.Name, Attempt: attempt, Phase: "failed",
			})
			// Persist the cost of the failed interaction before retrying.
			r.Context = append(r.Context, fmt.Sprintf("step %s attempt %d failed: %v", step.Name, attempt, callErr))
			updated, perr := e.transition(ctx, r, stateOf(r, run.StatusRunning))
			if perr != nil {
				return r, "", perr
			}
			r = updated
			continue
		}

		// Success: fold output into context, detect the stack after recon.
		if result.Output != "" {
			r.Context = append(r.Context, fmt.Sprintf("step %s: %s", step.Name, result.Output))
		}
		if step.Name == pipeline.StepRecon {
			e.detectStack(r)
		}
		if result.Proposal != "" {
			r.Context = append(r.Context, fmt.Sprintf("step %s proposal: %s", step.Name, result.Proposal))
		}

		updated, perr := e.transition(ctx, r, stateOf(r, run.StatusRunning))
		if perr != nil {
			return r, "", perr
		}

		e.hub.BroadcastEvent(ctx, ws.EventRunStep, ws.RunStepEvent{
			RunID: r.ID, Step: step.Name, Attempt: attempt, Phase: "finished",
		})
		return updated, "", nil
	}

	return r, fmt.Sprintf("step %s failed after %d attempts: %v", step.Name, step.Attempts(), lastErr), nil
}

// callBackend invokes the agent for one step attempt behind the circuit
// breaker, dispatching tool calls through the run's sandbox registry.
func (e *Engine) callBackend(ctx context.Context, r *run.Run, step pipeline.Step, registry *tool.Registry) (*agentcall.StepResult, error) {
	dispatch := e.boundedDispatch(r, step, registry)

	req := &agentcall.StepRequest{
		Run:      r,
		Step:     step.Name,
		Context:  r.Context,
		Feedback: lastFeedback(r.Context),
		Tools:    registry.Schemas(),
	}

	var result *agentcall.StepResult
	err := e.breaker.Execute(func() error {
		var callErr error
		result, callErr = e.backend.ExecuteStep(ctx, req, dispatch)
		return callErr
	})
	return result, err
}

// boundedDispatch wraps the registry dispatch with otel accounting and,
// for the implement step, the test-iteration budget: once exhausted,
// further run_tests calls return an in-band budget message instead of
// executing, steering the agent toward wrapping up.
func (e *Engine) boundedDispatch(r *run.Run, step pipeline.Step, registry *tool.Registry) agentcall.Dispatch {
	testCalls := 0
	return func(ctx context.Context, name string, args map[string]any) string {
		if e.metrics != nil {
			e.metrics.ToolCalls.Add(ctx, 1)
		}
		ctx, span := otel.StartToolCallSpan(ctx, r.ID, name)
		defer span.End()

		if step.Name == pipeline.StepImplement && name == "run_tests" {
			testCalls++
			if testCalls > e.cfg.TestIterations {
				return fmt.Sprintf("error: test iteration budget of %d exhausted for this step", e.cfg.TestIterations)
			}
		}
		e.log.Debug("tool call", "run_id", logger.RunID(ctx), "tool", name)
		return registry.Dispatch(ctx, name, args)
	}
}

// registryFor builds the sandboxed capability registry for one run.
func (e *Engine) registryFor(r *run.Run) (*tool.Registry, error) {
	opts := e.cfg.Sandbox
	if r.TestCommand != "" {
		opts.TestCommand = r.TestCommand
	}
	return tool.NewSandboxRegistry(r.ProjectPath, opts)
}

// detectStack fills the run's language/framework/test-command fields from
// the project root. Detection failure is not fatal; the fields stay empty.
func (e *Engine) detectStack(r *run.Run) {
	stack, ok, err := project.Detect(r.ProjectPath)
	if err != nil || !ok {
		e.log.Info("stack detection inconclusive", "run_id", r.ID, "error", err)
		return
	}
	r.Language = stack.Language
	r.Framework = stack.Framework
	if r.TestCommand == "" {
		r.TestCommand = stack.TestCommand
	}
}

// stepApproved reports whether the most recent checkpoint for the run's
// current step was approved, meaning the step's work is done and the run
// should advance without re-executing it.
func (e *Engine) stepApproved(ctx context.Context, r *run.Run, step pipeline.Step) (bool, error) {
	if !step.Gated {
		return false, nil
	}
	reqs, err := e.store.ListCheckpointsByRun(ctx, r.ID)
	if err != nil {
		return false, err
	}
	for _, req := range reqs { // newest first
		if req.Step == step.Name {
			return req.Status == checkpoint.StatusApproved, nil
		}
	}
	return false, nil
}

// suspendForCheckpoint persists the awaiting_checkpoint state and creates
// the pending request. Order matters: the suspension is durable before the
// request becomes visible to deciders.
func (e *Engine) suspendForCheckpoint(ctx context.Context, r *run.Run, step pipeline.Step) error {
	r, err := e.transition(ctx, r, stateOf(r, run.StatusAwaitingCheckpoint))
	if err != nil {
		return err
	}

	return e.createCheckpointRequest(ctx, r, step)
}

func (e *Engine) createCheckpointRequest(ctx context.Context, r *run.Run, step pipeline.Step) error {
	req := &checkpoint.Request{
		RunID:   r.ID,
		Step:    step.Name,
		Payload: lastProposal(r.Context),
	}
	if err := e.store.CreateCheckpoint(ctx, req); err != nil {
		// A pending request surviving a crash is fine; the run is already
		// suspended on it.
		if !errors.Is(err, domain.ErrConflict) {
			return err
		}
	}
	if e.metrics != nil {
		e.metrics.CheckpointWaits.Add(ctx, 1)
	}

	e.hub.BroadcastEvent(ctx, ws.EventCheckpointRequired, ws.CheckpointEvent{
		CheckpointID: req.ID,
		RunID:        r.ID,
		Step:         step.Name,
	})
	e.log.Info("run awaiting checkpoint", "run_id", r.ID, "step", step.Name, "checkpoint_id", req.ID)
	return nil
}

// resumeSuspended repairs the two gaps a suspended run can crash into. A
// decided checkpoint whose release write in CheckpointService.Decide was
// lost is replayed into running; a suspension whose request was never
// created is given its pending request back. Both are idempotent, so any
// Execute call, including Scheduler.Recover after a crash, can heal the
// run. Returns true when the run re-entered running.
func (e *Engine) resumeSuspended(ctx context.Context, r *run.Run) (bool, error) {
	reqs, err := e.store.ListCheckpointsByRun(ctx, r.ID)
	if err != nil {
		return false, err
	}
	var req *checkpoint.Request
	for i := range reqs { // newest first
		if reqs[i].Step == r.CurrentStep {
			req = &reqs[i]
			break
		}
	}
	if req == nil {
		step, err := e.cfg.Pipeline.Get(r.CurrentStep)
		if err != nil || !step.Gated {
			return false, err
		}
		return false, e.createCheckpointRequest(ctx, r, step)
	}
	if !req.Decided() {
		return false, nil
	}

	upd := stateOf(r, run.StatusRunning)
	if req.Status == checkpoint.StatusRejected && req.Feedback != "" && lastFeedback(r.Context) != req.Feedback {
		upd.Context = append(upd.Context, feedbackPrefix+req.Feedback)
	}
	if _, err := e.transition(ctx, r, upd); err != nil {
		return false, err
	}
	e.log.Info("released run from decided checkpoint",
		"run_id", r.ID, "checkpoint_id", req.ID, "decision", req.Status)
	return true, nil
}

// advance moves the run to the next step, or completes it when the current
// step is the last. Returns done=true when the run reached a terminal state
// or parked; the caller's loop continues otherwise.
func (e *Engine) advance(ctx context.Context, r **run.Run, step pipeline.Step, started time.Time) (done bool, err error) {
	next, ok, err := e.cfg.Pipeline.Next(step.Name)
	if err != nil {
		return true, err
	}
	if !ok {
		return true, e.complete(ctx, *r, started)
	}

	upd := stateOf(*r, run.StatusRunning)
	upd.CurrentStep = next.Name
	updated, err := e.transition(ctx, *r, upd)
	if err != nil {
		return true, err
	}
	*r = updated
	return false, nil
}

func (e *Engine) complete(ctx context.Context, r *run.Run, started time.Time) error {
	updated, err := e.transition(ctx, r, stateOf(r, run.StatusCompleted))
	if err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.RunsCompleted.Add(ctx, 1)
		e.metrics.RunDuration.Record(ctx, time.Since(started).Seconds())
		e.metrics.RunCost.Record(ctx, updated.TotalCostUSD)
	}
	e.log.Info("run completed", "run_id", r.ID, "cost_usd", updated.TotalCostUSD)
	e.reportOutcome(ctx, updated)
	return nil
}

func (e *Engine) fail(ctx context.Context, r *run.Run, started time.Time, msg string) error {
	upd := stateOf(r, run.StatusFailed)
	upd.Error = msg
	updated, err := e.transition(ctx, r, upd)
	if err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.RunsFailed.Add(ctx, 1)
		e.metrics.RunDuration.Record(ctx, time.Since(started).Seconds())
		e.metrics.RunCost.Record(ctx, updated.TotalCostUSD)
	}
	e.log.Error("run failed", "run_id", r.ID, "error", msg)
	e.reportOutcome(ctx, updated)
	return nil
}

// reportOutcome pushes the terminal result back to the originating ticket
// source, when one is configured for the run's source tag.
func (e *Engine) reportOutcome(ctx context.Context, r *run.Run) {
	if e.tickets == nil || r.Source == "" {
		return
	}
	src := e.tickets(r.Source)
	if src == nil {
		return
	}
	outcome := task.Outcome{
		RunID:   r.ID,
		Success: r.Status == run.StatusCompleted,
		Error:   r.Error,
		CostUSD: r.TotalCostUSD,
	}
	if err := src.UpdateStatus(ctx, outcome); err != nil {
		e.log.Warn("ticket outcome update failed", "run_id", r.ID, "source", r.Source, "error", err)
	}
}

// lastFeedback scans the context newest-first for checkpoint feedback.
func lastFeedback(contextLines []string) string {
	for i := len(contextLines) - 1; i >= 0; i-- {
		if after, ok := strings.CutPrefix(contextLines[i], feedbackPrefix); ok {
			return after
		}
	}
	return ""
}

// lastProposal scans the context newest-first for a step proposal to use
// as the checkpoint payload.
func lastProposal(contextLines []string) string {
	for i := len(contextLines) - 1; i >= 0; i-- {
		if idx := strings.Index(contextLines[i], " proposal: "); idx >= 0 {
			return contextLines[i][idx+len(" proposal: "):]
		}
	}
	return ""
}
