package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/halverson/ticketpilot/internal/domain"
	"github.com/halverson/ticketpilot/internal/domain/checkpoint"
)

const checkpointColumns = `id, run_id, step, payload, status, feedback, created_at, decided_at`

// CreateCheckpoint inserts a pending request. The insert only matches a run
// whose current_step equals the request's step, so a caller out of sync
// with the run cannot gate the wrong step.
func (s *Store) CreateCheckpoint(ctx context.Context, req *checkpoint.Request) error {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO checkpoint_requests (run_id, step, payload, status)
		 SELECT id, $2, $3, $4 FROM runs WHERE id = $1 AND current_step = $2
		 RETURNING id, created_at`,
		req.RunID, req.Step, req.Payload, string(checkpoint.StatusPending))

	if err := row.Scan(&req.ID, &req.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create checkpoint for run %s: pending checkpoint exists: %w", req.RunID, domain.ErrConflict)
		}
		if errors.Is(err, pgx.ErrNoRows) {
			r, getErr := s.GetRun(ctx, req.RunID)
			if getErr != nil {
				return getErr
			}
			return fmt.Errorf("create checkpoint for run %s: step %q is not the run's current step %q: %w",
				req.RunID, req.Step, r.CurrentStep, domain.ErrValidation)
		}
		return fmt.Errorf("create checkpoint: %w", err)
	}
	req.Status = checkpoint.StatusPending
	return nil
}

func (s *Store) GetCheckpoint(ctx context.Context, id string) (*checkpoint.Request, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+checkpointColumns+` FROM checkpoint_requests WHERE id = $1`, id)

	req, err := scanCheckpoint(row)
	if err != nil {
		return nil, notFoundWrap(err, "get checkpoint %s", id)
	}
	return &req, nil
}

func (s *Store) ListCheckpointsByRun(ctx context.Context, runID string) ([]checkpoint.Request, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+checkpointColumns+` FROM checkpoint_requests
		 WHERE run_id = $1 ORDER BY created_at DESC`, runID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints for run %s: %w", runID, err)
	}
	defer rows.Close()

	var reqs []checkpoint.Request
	for rows.Next() {
		req, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

func (s *Store) PendingCheckpoint(ctx context.Context, runID string) (*checkpoint.Request, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+checkpointColumns+` FROM checkpoint_requests
		 WHERE run_id = $1 AND status = 'pending'`, runID)

	req, err := scanCheckpoint(row)
	if err != nil {
		return nil, notFoundWrap(err, "pending checkpoint for run %s", runID)
	}
	return &req, nil
}

// DecideCheckpoint moves a pending request to approved or rejected. Deciding
// an already decided request returns ErrConflict.
func (s *Store) DecideCheckpoint(ctx context.Context, id string, status checkpoint.Status, feedback string) (*checkpoint.Request, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE checkpoint_requests
		 SET status = $2, feedback = $3, decided_at = now()
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+checkpointColumns,
		id, string(status), feedback)

	req, err := scanCheckpoint(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := s.GetCheckpoint(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, fmt.Errorf("decide checkpoint %s: already decided: %w", id, domain.ErrConflict)
		}
		return nil, fmt.Errorf("decide checkpoint %s: %w", id, err)
	}
	return &req, nil
}

func scanCheckpoint(row scannable) (checkpoint.Request, error) {
	var req checkpoint.Request
	err := row.Scan(&req.ID, &req.RunID, &req.Step, &req.Payload,
		&req.Status, &req.Feedback, &req.CreatedAt, &req.DecidedAt)
	return req, err
}
