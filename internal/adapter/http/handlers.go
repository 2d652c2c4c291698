package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/halverson/ticketpilot/internal/adapter/ws"
	"github.com/halverson/ticketpilot/internal/domain/checkpoint"
	"github.com/halverson/ticketpilot/internal/domain/run"
	"github.com/halverson/ticketpilot/internal/domain/task"
	"github.com/halverson/ticketpilot/internal/service"
)

// Handlers bundles the service dependencies for all HTTP endpoints.
type Handlers struct {
	Runs        *service.RunService
	Checkpoints *service.CheckpointService
	Hub         *ws.Hub
}

// createRunRequest is the body of POST /api/v1/runs.
type createRunRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Source      string `json:"source,omitempty"`
	ProjectPath string `json:"project_path"`
}

// decideRequest is the body of POST /api/v1/checkpoints/{id}/decide.
type decideRequest struct {
	Approve  bool   `json:"approve"`
	Feedback string `json:"feedback,omitempty"`
}

// CreateRun handles POST /api/v1/runs
func (h *Handlers) CreateRun(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[createRunRequest](w, r)
	if !ok {
		return
	}

	created, err := h.Runs.Create(r.Context(), task.Input{
		Title:       req.Title,
		Description: req.Description,
		Source:      req.Source,
	}, req.ProjectPath)
	if err != nil {
		writeDomainError(w, err, "create run failed")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ListRuns handles GET /api/v1/runs?status=
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	status := run.Status(r.URL.Query().Get("status"))
	if status != "" && !validStatus(status) {
		writeError(w, http.StatusBadRequest, "unknown status filter")
		return
	}

	runs, err := h.Runs.List(r.Context(), status)
	if err != nil {
		writeDomainError(w, err, "list runs failed")
		return
	}
	if runs == nil {
		runs = []run.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetRun handles GET /api/v1/runs/{id}
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := h.Runs.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// PauseRun handles POST /api/v1/runs/{id}/pause
func (h *Handlers) PauseRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Runs.RequestPause(r.Context(), id); err != nil {
		writeDomainError(w, err, "run not found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "pause_requested"})
}

// ResumeRun handles POST /api/v1/runs/{id}/resume
func (h *Handlers) ResumeRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Runs.Resume(r.Context(), id); err != nil {
		writeDomainError(w, err, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

// CancelRun handles POST /api/v1/runs/{id}/cancel
func (h *Handlers) CancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Runs.Cancel(r.Context(), id); err != nil {
		writeDomainError(w, err, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// ListRunCheckpoints handles GET /api/v1/runs/{id}/checkpoints
func (h *Handlers) ListRunCheckpoints(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	if _, err := h.Runs.Get(r.Context(), runID); err != nil {
		writeDomainError(w, err, "run not found")
		return
	}

	cps, err := h.Checkpoints.ListByRun(r.Context(), runID)
	if err != nil {
		writeDomainError(w, err, "list checkpoints failed")
		return
	}
	if cps == nil {
		cps = []checkpoint.Request{}
	}
	writeJSON(w, http.StatusOK, cps)
}

// GetCheckpoint handles GET /api/v1/checkpoints/{id}
func (h *Handlers) GetCheckpoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := h.Checkpoints.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "checkpoint not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// DecideCheckpoint handles POST /api/v1/checkpoints/{id}/decide
func (h *Handlers) DecideCheckpoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, ok := readJSON[decideRequest](w, r)
	if !ok {
		return
	}

	decided, err := h.Checkpoints.Decide(r.Context(), id, req.Approve, req.Feedback)
	if err != nil {
		writeDomainError(w, err, "checkpoint not found")
		return
	}
	writeJSON(w, http.StatusOK, decided)
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"ws_clients": h.Hub.ConnectionCount(),
	})
}

func validStatus(s run.Status) bool {
	switch s {
	case run.StatusPending, run.StatusRunning, run.StatusAwaitingCheckpoint,
		run.StatusPaused, run.StatusCompleted, run.StatusFailed, run.StatusCancelled:
		return true
	}
	return false
}
