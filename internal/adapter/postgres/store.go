package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mito-ds/mito-ai/internal/eval"
)

// Store archives evaluation runs and their per-fixture results.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an existing pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Run is one archived evaluation run.
type Run struct {
	ID         string
	TestType   string
	Model      string
	PromptName string
	Total      int
	Passed     int
	CreatedAt  time.Time
}

// ArchiveRun stores a finished run with all its results in one transaction
// and returns the run id.
func (s *Store) ArchiveRun(ctx context.Context, testType, model, promptName string, results []eval.Result) (string, error) {
	runID := uuid.NewString()
	passed := 0
	for _, res := range results {
		if res.Passed {
			passed++
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("archive run: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertRun = `INSERT INTO eval_runs (id, test_type, model, prompt_name, total, passed)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.Exec(ctx, insertRun, runID, testType, model, promptName, len(results), passed); err != nil {
		return "", fmt.Errorf("archive run: %w", err)
	}

	const insertResult = `INSERT INTO eval_results (id, run_id, test_name, passed, notes, actual_output)
		VALUES ($1, $2, $3, $4, $5, $6)`
	for _, res := range results {
		if _, err := tx.Exec(ctx, insertResult, uuid.NewString(), runID, res.Fixture, res.Passed, res.Notes, res.Actual); err != nil {
			return "", fmt.Errorf("archive result %s: %w", res.Fixture, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("archive run: commit: %w", err)
	}
	return runID, nil
}

// ListRuns returns archived runs newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	const q = `SELECT id, test_type, model, prompt_name, total, passed, created_at
		FROM eval_runs ORDER BY created_at DESC LIMIT $1`
	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.TestType, &r.Model, &r.PromptName, &r.Total, &r.Passed, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Results returns the per-fixture outcomes of one run.
func (s *Store) Results(ctx context.Context, runID string) ([]eval.Result, error) {
	const q = `SELECT test_name, passed, notes, actual_output
		FROM eval_results WHERE run_id = $1 ORDER BY test_name`
	rows, err := s.pool.Query(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var results []eval.Result
	for rows.Next() {
		var res eval.Result
		if err := rows.Scan(&res.Fixture, &res.Passed, &res.Notes, &res.Actual); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, res)
	}
	if len(results) == 0 {
		if _, err := s.runExists(ctx, runID); err != nil {
			return nil, err
		}
	}
	return results, rows.Err()
}

func (s *Store) runExists(ctx context.Context, runID string) (bool, error) {
	var id string
	err := s.pool.QueryRow(ctx, `SELECT id FROM eval_runs WHERE id = $1`, runID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return false, fmt.Errorf("check run %s: %w", runID, err)
	}
	return true, nil
}
