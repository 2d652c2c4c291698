package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/halverson/ticketpilot/internal/adapter/memory"
	"github.com/halverson/ticketpilot/internal/adapter/ws"
	"github.com/halverson/ticketpilot/internal/domain/checkpoint"
	"github.com/halverson/ticketpilot/internal/domain/pipeline"
	"github.com/halverson/ticketpilot/internal/domain/run"
	"github.com/halverson/ticketpilot/internal/port/runstore"
	"github.com/halverson/ticketpilot/internal/service"
)

func setupAPI(t *testing.T) (*memory.Store, http.Handler) {
	t.Helper()
	store := memory.NewStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := &Handlers{
		Runs:        service.NewRunService(store, nil, log),
		Checkpoints: service.NewCheckpointService(store, nil, nil, log),
		Hub:         ws.NewHub(),
	}
	r := chi.NewRouter()
	MountRoutes(r, h)
	return store, r
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateRunEndpoint(t *testing.T) {
	_, handler := setupAPI(t)
	dir := t.TempDir()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/runs", map[string]string{
		"title":        "fix flaky upload test",
		"description":  "TestUpload fails under -race",
		"project_path": dir,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var created run.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.ID == "" || created.Status != run.StatusPending {
		t.Errorf("unexpected run: %+v", created)
	}
}

func TestCreateRunValidationError(t *testing.T) {
	_, handler := setupAPI(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/runs", map[string]string{
		"description":  "no title",
		"project_path": t.TempDir(),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetRunNotFound(t *testing.T) {
	_, handler := setupAPI(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/runs/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListRunsStatusFilter(t *testing.T) {
	_, handler := setupAPI(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/runs?status=bogus", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/runs?status=completed", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	// Empty list serializes as [], not null.
	if got := rec.Body.String(); got != "[]\n" {
		t.Errorf("body = %q, want empty array", got)
	}
}

func TestPauseCompletedRunConflicts(t *testing.T) {
	store, handler := setupAPI(t)
	ctx := context.Background()

	r := &run.Run{Title: "t", Description: "d", ProjectPath: t.TempDir(), Status: run.StatusPending}
	if err := store.CreateRun(ctx, r); err != nil {
		t.Fatal(err)
	}
	mid, err := store.UpdateRunState(ctx, r.ID, r.Version, runstore.StateUpdate{Status: run.StatusRunning, CurrentStep: pipeline.StepRecon})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.UpdateRunState(ctx, r.ID, mid.Version, runstore.StateUpdate{Status: run.StatusCompleted, CurrentStep: pipeline.StepMerge}); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/runs/"+r.ID+"/pause", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestDecideCheckpointEndpoint(t *testing.T) {
	store, handler := setupAPI(t)
	ctx := context.Background()

	r := &run.Run{Title: "t", Description: "d", ProjectPath: t.TempDir(), Status: run.StatusPending}
	if err := store.CreateRun(ctx, r); err != nil {
		t.Fatal(err)
	}
	mid, err := store.UpdateRunState(ctx, r.ID, r.Version, runstore.StateUpdate{Status: run.StatusRunning, CurrentStep: pipeline.StepMerge})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.UpdateRunState(ctx, r.ID, mid.Version, runstore.StateUpdate{Status: run.StatusAwaitingCheckpoint, CurrentStep: pipeline.StepMerge}); err != nil {
		t.Fatal(err)
	}
	cp := &checkpoint.Request{RunID: r.ID, Step: pipeline.StepMerge, Payload: "merge plan", Status: checkpoint.StatusPending}
	if err := store.CreateCheckpoint(ctx, cp); err != nil {
		t.Fatal(err)
	}

	path := fmt.Sprintf("/api/v1/checkpoints/%s/decide", cp.ID)
	rec := doJSON(t, handler, http.MethodPost, path, map[string]any{"approve": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var decided checkpoint.Request
	if err := json.Unmarshal(rec.Body.Bytes(), &decided); err != nil {
		t.Fatal(err)
	}
	if decided.Status != checkpoint.StatusApproved {
		t.Errorf("status = %s, want approved", decided.Status)
	}

	// Second decision conflicts.
	rec = doJSON(t, handler, http.MethodPost, path, map[string]any{"approve": false, "feedback": "no"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}

	// The run is released back to running at the gated step.
	got, err := store.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != run.StatusRunning || got.CurrentStep != pipeline.StepMerge {
		t.Errorf("run = %s at %s, want running at merge", got.Status, got.CurrentStep)
	}
}

func TestListRunCheckpoints(t *testing.T) {
	store, handler := setupAPI(t)
	ctx := context.Background()

	r := &run.Run{Title: "t", Description: "d", ProjectPath: t.TempDir(), Status: run.StatusPending}
	if err := store.CreateRun(ctx, r); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/runs/"+r.ID+"/checkpoints", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Body.String(); got != "[]\n" {
		t.Errorf("body = %q, want empty array", got)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/runs/nope/checkpoints", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, handler := setupAPI(t)

	rec := doJSON(t, handler, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
