package service_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/halverson/ticketpilot/internal/adapter/memory"
	"github.com/halverson/ticketpilot/internal/adapter/scripted"
	"github.com/halverson/ticketpilot/internal/domain/pipeline"
	"github.com/halverson/ticketpilot/internal/domain/run"
	"github.com/halverson/ticketpilot/internal/port/agentcall"
	"github.com/halverson/ticketpilot/internal/port/broadcast"
	"github.com/halverson/ticketpilot/internal/port/runstore"
	"github.com/halverson/ticketpilot/internal/resilience"
	"github.com/halverson/ticketpilot/internal/service"
	"github.com/halverson/ticketpilot/internal/tool"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ungated returns the standard step sequence with no checkpoint gates.
func ungated() pipeline.Definition {
	return pipeline.Definition{
		ID: "ungated",
		Steps: []pipeline.Step{
			{Name: pipeline.StepRecon},
			{Name: pipeline.StepImplement},
			{Name: pipeline.StepMerge},
		},
	}
}

func newEngine(t *testing.T, store runstore.Store, backend agentcall.Backend, def pipeline.Definition) *service.Engine {
	t.Helper()
	return service.NewEngine(store, backend,
		resilience.NewBreaker(5, time.Second),
		broadcast.Noop{},
		service.EngineConfig{
			Pipeline:       def,
			TestIterations: 5,
			Sandbox:        tool.SandboxOptions{CommandTimeout: time.Minute, TestTimeout: time.Minute, SearchLimit: 50},
		},
		testLogger(),
	)
}

func seedRun(t *testing.T, store runstore.Store) *run.Run {
	t.Helper()
	r := &run.Run{
		Title:       "add healthcheck endpoint",
		Description: "expose /health for the load balancer",
		ProjectPath: t.TempDir(),
		Status:      run.StatusPending,
	}
	if err := store.CreateRun(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRunCompletesUngated(t *testing.T) {
	store := memory.NewStore()
	backend := scripted.New(0.02)
	engine := newEngine(t, store, backend, ungated())
	ctx := context.Background()

	r := seedRun(t, store)
	if err := engine.Execute(ctx, r.ID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	got, err := store.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != run.StatusCompleted {
		t.Fatalf("expected completed, got %s (error=%q)", got.Status, got.Error)
	}
	if got.CurrentStep != pipeline.StepMerge {
		t.Errorf("expected final step merge, got %s", got.CurrentStep)
	}
	// Three step interactions at 0.02 each.
	if got.TotalCostUSD < 0.059 || got.TotalCostUSD > 0.061 {
		t.Errorf("expected cost ~0.06, got %f", got.TotalCostUSD)
	}

	// No checkpoint rows for an ungated pipeline.
	cps, err := store.ListCheckpointsByRun(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(cps) != 0 {
		t.Errorf("expected no checkpoints, got %d", len(cps))
	}
}

func TestCostIsMonotonic(t *testing.T) {
	store := memory.NewStore()
	backend := scripted.New(0.05)
	// recon fails twice before succeeding; cost accrues on every attempt.
	failures := 0
	backend.Script(pipeline.StepRecon, func(_ context.Context, _ *agentcall.StepRequest, _ agentcall.Dispatch) (*agentcall.StepResult, error) {
		failures++
		if failures < 3 {
			return &agentcall.StepResult{CostUSD: 0.05}, context.DeadlineExceeded
		}
		return &agentcall.StepResult{Output: "recon done", CostUSD: 0.05}, nil
	})
	engine := newEngine(t, store, backend, ungated())
	ctx := context.Background()

	r := seedRun(t, store)
	if err := engine.Execute(ctx, r.ID); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != run.StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	// 3 recon attempts + implement + merge = 5 interactions at 0.05.
	if got.TotalCostUSD < 0.249 || got.TotalCostUSD > 0.251 {
		t.Errorf("expected cost ~0.25, got %f", got.TotalCostUSD)
	}
}

func TestStepRetryBudgetExhausted(t *testing.T) {
	store := memory.NewStore()
	backend := scripted.New(0.01)
	backend.Script(pipeline.StepImplement, func(_ context.Context, _ *agentcall.StepRequest, _ agentcall.Dispatch) (*agentcall.StepResult, error) {
		return nil, context.DeadlineExceeded
	})
	engine := newEngine(t, store, backend, ungated())
	ctx := context.Background()

	r := seedRun(t, store)
	if err := engine.Execute(ctx, r.ID); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != run.StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.Error == "" {
		t.Error("expected captured error message")
	}
	if got.CurrentStep != pipeline.StepImplement {
		t.Errorf("expected failure at implement, got %s", got.CurrentStep)
	}
}

func TestReplayFromPersistedStepIsIdempotent(t *testing.T) {
	store := memory.NewStore()
	backend := scripted.New(0.01)
	engine := newEngine(t, store, backend, ungated())
	ctx := context.Background()

	r := seedRun(t, store)
	if err := engine.Execute(ctx, r.ID); err != nil {
		t.Fatal(err)
	}
	done, err := store.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}

	// A second Execute on the completed run is a no-op.
	if err := engine.Execute(ctx, r.ID); err != nil {
		t.Fatal(err)
	}
	again, err := store.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.Version != done.Version {
		t.Errorf("terminal run mutated on replay: version %d -> %d", done.Version, again.Version)
	}
	if again.Status != run.StatusCompleted {
		t.Errorf("expected completed, got %s", again.Status)
	}
}

func TestReplayMidPipeline(t *testing.T) {
	store := memory.NewStore()
	backend := scripted.New(0.01)
	engine := newEngine(t, store, backend, ungated())
	ctx := context.Background()

	r := seedRun(t, store)

	// Simulate a crashed process that persisted running(implement).
	updated, err := store.UpdateRunState(ctx, r.ID, r.Version, stateRunningAt(r, pipeline.StepImplement))
	if err != nil {
		t.Fatal(err)
	}

	if err := engine.Execute(ctx, updated.ID); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != run.StatusCompleted {
		t.Fatalf("expected completed after replay, got %s", got.Status)
	}
}

func TestPauseObservedAtStepBoundary(t *testing.T) {
	store := memory.NewStore()
	backend := scripted.New(0.01)
	// An external actor pauses the run while recon is in flight.
	backend.Script(pipeline.StepRecon, func(ctx context.Context, req *agentcall.StepRequest, _ agentcall.Dispatch) (*agentcall.StepResult, error) {
		if err := store.SetPauseRequested(ctx, req.Run.ID, true); err != nil {
			return nil, err
		}
		return &agentcall.StepResult{Output: "recon done", CostUSD: 0.01}, nil
	})
	engine := newEngine(t, store, backend, ungated())
	ctx := context.Background()

	r := seedRun(t, store)
	if err := engine.Execute(ctx, r.ID); err != nil {
		t.Fatal(err)
	}

	paused, err := store.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if paused.Status != run.StatusPaused {
		t.Fatalf("expected paused, got %s", paused.Status)
	}
	// The in-flight step completed; the pause landed at the boundary.
	if paused.CurrentStep != pipeline.StepImplement {
		t.Errorf("expected parked at implement, got %s", paused.CurrentStep)
	}

	// Resume with no intervening execution leaves step and context intact.
	runSvc := service.NewRunService(store, nil, testLogger())
	if err := runSvc.Resume(ctx, r.ID); err != nil {
		t.Fatal(err)
	}
	resumed, err := store.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if resumed.Status != run.StatusRunning {
		t.Fatalf("expected running after resume, got %s", resumed.Status)
	}
	if resumed.CurrentStep != paused.CurrentStep {
		t.Errorf("current_step changed across pause/resume: %s -> %s", paused.CurrentStep, resumed.CurrentStep)
	}
	if len(resumed.Context) != len(paused.Context) {
		t.Errorf("context changed across pause/resume: %d -> %d entries", len(paused.Context), len(resumed.Context))
	}
	if resumed.PauseRequested {
		t.Error("pause flag not cleared by resume")
	}

	// Execution continues to completion from where it parked.
	if err := engine.Execute(ctx, r.ID); err != nil {
		t.Fatal(err)
	}
	final, err := store.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != run.StatusCompleted {
		t.Errorf("expected completed, got %s", final.Status)
	}
}

func TestDispatchReachesSandbox(t *testing.T) {
	store := memory.NewStore()
	backend := scripted.New(0.01)
	var writeResult, escapeResult string
	backend.Script(pipeline.StepImplement, func(ctx context.Context, _ *agentcall.StepRequest, dispatch agentcall.Dispatch) (*agentcall.StepResult, error) {
		writeResult = dispatch(ctx, "write_file", map[string]any{"path": "pkg/health.go", "content": "package pkg\n"})
		escapeResult = dispatch(ctx, "read_file", map[string]any{"path": "../../etc/passwd"})
		return &agentcall.StepResult{Output: "implemented", CostUSD: 0.01}, nil
	})
	engine := newEngine(t, store, backend, ungated())
	ctx := context.Background()

	r := seedRun(t, store)
	if err := engine.Execute(ctx, r.ID); err != nil {
		t.Fatal(err)
	}

	if writeResult == "" || strings.HasPrefix(writeResult, "error") {
		t.Errorf("expected write to succeed, got %q", writeResult)
	}
	if escapeResult == "" || !strings.Contains(escapeResult, "escapes project root") {
		t.Errorf("expected escape rejection, got %q", escapeResult)
	}
}

func TestCancelledRunStopsAdvancing(t *testing.T) {
	store := memory.NewStore()
	backend := scripted.New(0.01)
	backend.Script(pipeline.StepRecon, func(ctx context.Context, req *agentcall.StepRequest, _ agentcall.Dispatch) (*agentcall.StepResult, error) {
		// Cancel mid-step; the step finishes, then the engine observes it.
		r, err := store.GetRun(ctx, req.Run.ID)
		if err != nil {
			return nil, err
		}
		upd := stateRunningAt(r, r.CurrentStep)
		upd.Status = run.StatusCancelled
		if _, err := store.UpdateRunState(ctx, r.ID, r.Version, upd); err != nil {
			return nil, err
		}
		return &agentcall.StepResult{Output: "recon done", CostUSD: 0.01}, nil
	})
	engine := newEngine(t, store, backend, ungated())
	ctx := context.Background()

	r := seedRun(t, store)
	_ = engine.Execute(ctx, r.ID)

	got, err := store.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != run.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
}

// stateRunningAt builds a full StateUpdate at the given step, preserving
// the run's other fields.
func stateRunningAt(r *run.Run, step string) runstore.StateUpdate {
	return runstore.StateUpdate{
		Status:       run.StatusRunning,
		CurrentStep:  step,
		Error:        r.Error,
		Context:      r.Context,
		TotalCostUSD: r.TotalCostUSD,
		Language:     r.Language,
		Framework:    r.Framework,
		TestCommand:  r.TestCommand,
	}
}
