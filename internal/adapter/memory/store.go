// Package memory provides an in-memory runstore.Store used by tests and
// the standalone (no database) mode.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/halverson/ticketpilot/internal/domain"
	"github.com/halverson/ticketpilot/internal/domain/checkpoint"
	"github.com/halverson/ticketpilot/internal/domain/run"
	"github.com/halverson/ticketpilot/internal/port/runstore"
)

// Store implements runstore.Store with in-process maps. A single mutex
// serializes all writes, which trivially satisfies the per-run
// serialization requirement.
type Store struct {
	mu          sync.Mutex
	runs        map[string]*run.Run
	checkpoints map[string]*checkpoint.Request
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		runs:        make(map[string]*run.Run),
		checkpoints: make(map[string]*checkpoint.Request),
	}
}

func (s *Store) CreateRun(_ context.Context, r *run.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	r.ID = uuid.NewString()
	r.Version = 1
	r.CreatedAt = now
	r.UpdatedAt = now

	cp := copyRun(r)
	s.runs[r.ID] = &cp
	return nil
}

// copyRun detaches the context slice so callers and the store never share
// a backing array.
func copyRun(r *run.Run) run.Run {
	cp := *r
	cp.Context = append([]string(nil), r.Context...)
	return cp
}

func (s *Store) GetRun(_ context.Context, id string) (*run.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("get run %s: %w", id, domain.ErrNotFound)
	}
	cp := copyRun(r)
	return &cp, nil
}

func (s *Store) ListRuns(_ context.Context, status run.Status) ([]run.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var runs []run.Run
	for _, r := range s.runs {
		if status != "" && r.Status != status {
			continue
		}
		runs = append(runs, copyRun(r))
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}

func (s *Store) UpdateRunState(_ context.Context, id string, version int, upd runstore.StateUpdate) (*run.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("update run %s: %w", id, domain.ErrNotFound)
	}
	if r.Version != version {
		return nil, fmt.Errorf("update run %s: %w", id, domain.ErrConflict)
	}

	r.Status = upd.Status
	r.CurrentStep = upd.CurrentStep
	r.Error = upd.Error
	r.Context = append([]string(nil), upd.Context...)
	r.TotalCostUSD = upd.TotalCostUSD
	r.Language = upd.Language
	r.Framework = upd.Framework
	r.TestCommand = upd.TestCommand
	r.Version++
	r.UpdatedAt = time.Now().UTC()

	cp := copyRun(r)
	return &cp, nil
}

func (s *Store) SetPauseRequested(_ context.Context, id string, requested bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("set pause_requested %s: %w", id, domain.ErrNotFound)
	}
	r.PauseRequested = requested
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) CreateCheckpoint(_ context.Context, req *checkpoint.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[req.RunID]
	if !ok {
		return fmt.Errorf("create checkpoint: run %s: %w", req.RunID, domain.ErrNotFound)
	}
	if r.CurrentStep != req.Step {
		return fmt.Errorf("create checkpoint for run %s: step %q is not the run's current step %q: %w",
			req.RunID, req.Step, r.CurrentStep, domain.ErrValidation)
	}
	for _, existing := range s.checkpoints {
		if existing.RunID == req.RunID && existing.Status == checkpoint.StatusPending {
			return fmt.Errorf("create checkpoint for run %s: pending checkpoint exists: %w", req.RunID, domain.ErrConflict)
		}
	}

	req.ID = uuid.NewString()
	req.Status = checkpoint.StatusPending
	req.CreatedAt = time.Now().UTC()

	cp := *req
	s.checkpoints[req.ID] = &cp
	return nil
}

func (s *Store) GetCheckpoint(_ context.Context, id string) (*checkpoint.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.checkpoints[id]
	if !ok {
		return nil, fmt.Errorf("get checkpoint %s: %w", id, domain.ErrNotFound)
	}
	cp := *req
	return &cp, nil
}

func (s *Store) ListCheckpointsByRun(_ context.Context, runID string) ([]checkpoint.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reqs []checkpoint.Request
	for _, req := range s.checkpoints {
		if req.RunID == runID {
			reqs = append(reqs, *req)
		}
	}
	sort.Slice(reqs, func(i, j int) bool {
		return reqs[i].CreatedAt.After(reqs[j].CreatedAt)
	})
	return reqs, nil
}

func (s *Store) PendingCheckpoint(_ context.Context, runID string) (*checkpoint.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, req := range s.checkpoints {
		if req.RunID == runID && req.Status == checkpoint.StatusPending {
			cp := *req
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("pending checkpoint for run %s: %w", runID, domain.ErrNotFound)
}

func (s *Store) DecideCheckpoint(_ context.Context, id string, status checkpoint.Status, feedback string) (*checkpoint.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.checkpoints[id]
	if !ok {
		return nil, fmt.Errorf("decide checkpoint %s: %w", id, domain.ErrNotFound)
	}
	if req.Decided() {
		return nil, fmt.Errorf("decide checkpoint %s: already decided: %w", id, domain.ErrConflict)
	}

	now := time.Now().UTC()
	req.Status = status
	req.Feedback = feedback
	req.DecidedAt = &now

	cp := *req
	return &cp, nil
}
