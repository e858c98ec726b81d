package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	execution "payroll-cloud/internal/execution/domain"
)

const defaultRunTable = "branch_runs"

// RunRepository persists branch execution runs. One row per (file, branch);
// a retry pass overwrites the stored run.
type RunRepository struct {
	db    *sql.DB
	table string
}

// NewRunRepository constructs a repository.
func NewRunRepository(db *sql.DB, opts ...RunOption) *RunRepository {
	repo := &RunRepository{db: db, table: defaultRunTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// RunOption configures the repository.
type RunOption func(*RunRepository)

// WithRunTable overrides the table name.
func WithRunTable(table string) RunOption {
	return func(repo *RunRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Save upserts the run keyed by (file, branch).
func (r *RunRepository) Save(ctx context.Context, run *execution.BranchRun) error {
	if r == nil || r.db == nil {
		return errors.New("run repo: nil db")
	}
	if run == nil || run.FileID == "" || run.BranchID == "" {
		return errors.New("run repo: invalid run")
	}
	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, file_id, branch_id, status, summary, run_by, run_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (file_id, branch_id) DO UPDATE SET
	status = EXCLUDED.status,
	summary = EXCLUDED.summary,
	run_by = EXCLUDED.run_by,
	run_at = EXCLUDED.run_at`, r.table)
	_, err = r.db.ExecContext(ctx, query,
		run.ID, run.FileID, run.BranchID, run.Status, summary, run.RunBy, run.RunAt)
	return err
}

// Complete stores the run only when the branch was not already completed.
// Returns whether this call made the transition, so racing passes over the
// same branch settle on exactly one winner.
func (r *RunRepository) Complete(ctx context.Context, run *execution.BranchRun) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("run repo: nil db")
	}
	if run == nil || run.FileID == "" || run.BranchID == "" {
		return false, errors.New("run repo: invalid run")
	}
	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf(`
INSERT INTO %[1]s (id, file_id, branch_id, status, summary, run_by, run_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (file_id, branch_id) DO UPDATE SET
	status = EXCLUDED.status,
	summary = EXCLUDED.summary,
	run_by = EXCLUDED.run_by,
	run_at = EXCLUDED.run_at
WHERE %[1]s.status <> $4`, r.table)
	res, err := r.db.ExecContext(ctx, query,
		run.ID, run.FileID, run.BranchID, execution.RunStatusCompleted, summary, run.RunBy, run.RunAt)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// Get loads the stored run for a (file, branch), nil when none exists.
func (r *RunRepository) Get(ctx context.Context, fileID, branchID string) (*execution.BranchRun, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("run repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, file_id, branch_id, status, summary, run_by, run_at
FROM %s WHERE file_id = $1 AND branch_id = $2`, r.table)
	row := r.db.QueryRowContext(ctx, query, fileID, branchID)

	var run execution.BranchRun
	var summary []byte
	if err := row.Scan(&run.ID, &run.FileID, &run.BranchID, &run.Status, &summary, &run.RunBy, &run.RunAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(summary, &run.Summary); err != nil {
		return nil, fmt.Errorf("run repo: bad summary: %w", err)
	}
	return &run, nil
}

// ListByFile returns all branch runs of a file.
func (r *RunRepository) ListByFile(ctx context.Context, fileID string) ([]*execution.BranchRun, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("run repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, file_id, branch_id, status, summary, run_by, run_at
FROM %s WHERE file_id = $1 ORDER BY branch_id`, r.table)
	rows, err := r.db.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*execution.BranchRun
	for rows.Next() {
		var run execution.BranchRun
		var summary []byte
		if err := rows.Scan(&run.ID, &run.FileID, &run.BranchID, &run.Status, &summary, &run.RunBy, &run.RunAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(summary, &run.Summary); err != nil {
			return nil, fmt.Errorf("run repo: bad summary: %w", err)
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}
