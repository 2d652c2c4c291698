// Package runstore defines the run store port (interface): durable
// persistence for runs and their checkpoint requests.
package runstore

import (
	"context"

	"github.com/halverson/ticketpilot/internal/domain/checkpoint"
	"github.com/halverson/ticketpilot/internal/domain/run"
)

// StateUpdate carries one run transition to be persisted. Every field is
// written; callers load the run, mutate, and persist atomically under the
// run's version (optimistic per-run serialization).
type StateUpdate struct {
	Status       run.Status
	CurrentStep  string
	Error        string
	Context      []string
	TotalCostUSD float64
	Language     string
	Framework    string
	TestCommand  string
}

// Store is the port interface for run and checkpoint persistence.
// Implementations must serialize concurrent writes per run so that at most
// one transition is being persisted at a time for a given run identifier.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, r *run.Run) error
	GetRun(ctx context.Context, id string) (*run.Run, error)
	ListRuns(ctx context.Context, status run.Status) ([]run.Run, error)
	UpdateRunState(ctx context.Context, id string, version int, upd StateUpdate) (*run.Run, error)
	SetPauseRequested(ctx context.Context, id string, requested bool) error

	// Checkpoint requests (owned by their run)
	CreateCheckpoint(ctx context.Context, req *checkpoint.Request) error
	GetCheckpoint(ctx context.Context, id string) (*checkpoint.Request, error)
	ListCheckpointsByRun(ctx context.Context, runID string) ([]checkpoint.Request, error)
	PendingCheckpoint(ctx context.Context, runID string) (*checkpoint.Request, error)
	DecideCheckpoint(ctx context.Context, id string, status checkpoint.Status, feedback string) (*checkpoint.Request, error)
}
