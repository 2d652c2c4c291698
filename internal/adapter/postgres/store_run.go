package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/halverson/ticketpilot/internal/domain"
	"github.com/halverson/ticketpilot/internal/domain/run"
	"github.com/halverson/ticketpilot/internal/port/runstore"
)

// Store implements runstore.Store using PostgreSQL. Per-run write
// serialization comes from the version column: a transition only lands if
// the caller holds the current version.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const runColumns = `id, title, description, source, project_path, status, current_step,
       language, framework, test_command, error, context, total_cost_usd,
       pause_requested, owner_pid, version, created_at, updated_at`

func (s *Store) CreateRun(ctx context.Context, r *run.Run) error {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO runs (title, description, source, project_path, status, owner_pid)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, version, created_at, updated_at`,
		r.Title, r.Description, r.Source, r.ProjectPath, string(r.Status), r.OwnerPID)

	if err := row.Scan(&r.ID, &r.Version, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*run.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = $1`, id)

	r, err := scanRun(row)
	if err != nil {
		return nil, notFoundWrap(err, "get run %s", id)
	}
	return &r, nil
}

func (s *Store) ListRuns(ctx context.Context, status run.Status) ([]run.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []run.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *Store) UpdateRunState(ctx context.Context, id string, version int, upd runstore.StateUpdate) (*run.Run, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE runs
		 SET status = $3, current_step = $4, error = $5, context = $6,
		     total_cost_usd = $7, language = $8, framework = $9, test_command = $10,
		     version = version + 1, updated_at = now()
		 WHERE id = $1 AND version = $2
		 RETURNING `+runColumns,
		id, version, string(upd.Status), upd.CurrentStep, upd.Error, pgTextArray(upd.Context),
		upd.TotalCostUSD, upd.Language, upd.Framework, upd.TestCommand)

	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("update run %s: %w", id, domain.ErrConflict)
		}
		return nil, fmt.Errorf("update run %s: %w", id, err)
	}
	return &r, nil
}

func (s *Store) SetPauseRequested(ctx context.Context, id string, requested bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET pause_requested = $2, updated_at = now() WHERE id = $1`,
		id, requested)
	if err != nil {
		return fmt.Errorf("set pause_requested %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set pause_requested %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func scanRun(row scannable) (run.Run, error) {
	var r run.Run
	err := row.Scan(&r.ID, &r.Title, &r.Description, &r.Source, &r.ProjectPath,
		&r.Status, &r.CurrentStep, &r.Language, &r.Framework, &r.TestCommand,
		&r.Error, &r.Context, &r.TotalCostUSD, &r.PauseRequested, &r.OwnerPID,
		&r.Version, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}
