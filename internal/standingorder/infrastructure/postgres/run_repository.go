package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const defaultOrderRunTable = "standing_order_runs"

// Run statuses.
const (
	runStatusRunning = "running"
	runStatusPosted  = "posted"
)

// RunRepository is the once-per-day execution guard for standing orders. One
// row per (order, date); the claim insert loses when the order already ran.
type RunRepository struct {
	db    *sql.DB
	table string
}

// NewRunRepository constructs a repository.
func NewRunRepository(db *sql.DB, opts ...RunOption) *RunRepository {
	repo := &RunRepository{db: db, table: defaultOrderRunTable}
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

// Claim takes the run claim for (order, date). Returns false when the order
// already ran that day.
func (r *RunRepository) Claim(ctx context.Context, orderID string, asOf time.Time) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("order run repo: nil db")
	}
	if orderID == "" {
		return false, errors.New("order run repo: empty order id")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (order_id, as_of_date, status, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (order_id, as_of_date) DO NOTHING`, r.table)
	result, err := r.db.ExecContext(ctx, query, orderID, dateOnly(asOf), runStatusRunning, time.Now().UTC())
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// Complete records the ledger transaction reference for a claimed run.
func (r *RunRepository) Complete(ctx context.Context, orderID string, asOf time.Time, transactionRef string) error {
	if r == nil || r.db == nil {
		return errors.New("order run repo: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s SET status = $3, transaction_ref = $4
WHERE order_id = $1 AND as_of_date = $2`, r.table)
	_, err := r.db.ExecContext(ctx, query, orderID, dateOnly(asOf), runStatusPosted, transactionRef)
	return err
}

// Release frees the claim after a failed post so a later pass can retry.
func (r *RunRepository) Release(ctx context.Context, orderID string, asOf time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("order run repo: nil db")
	}
	query := fmt.Sprintf(`
DELETE FROM %s WHERE order_id = $1 AND as_of_date = $2 AND status = $3`, r.table)
	_, err := r.db.ExecContext(ctx, query, orderID, dateOnly(asOf), runStatusRunning)
	return err
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
