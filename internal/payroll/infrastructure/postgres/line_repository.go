package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	payroll "payroll-cloud/internal/payroll/domain"
)

const defaultLineTable = "salary_lines"

// LineRepository is a Postgres implementation for salary lines.
type LineRepository struct {
	db    *sql.DB
	table string
}

// NewLineRepository constructs a repository.
func NewLineRepository(db *sql.DB, opts ...LineOption) *LineRepository {
	repo := &LineRepository{db: db, table: defaultLineTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// LineOption configures the repository.
type LineOption func(*LineRepository)

// WithLineTable overrides the table name.
func WithLineTable(table string) LineOption {
	return func(repo *LineRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

const lineColumns = `id, file_id, row_index, matricule, member_name, branch_id, loan_ref,
	gross_salary, net_salary, capital, interest, vat, savings, shares, charges, remaining_salary,
	status, fail_reason, transaction_ref, posted_at, created_at`

// InsertBatch persists parsed and allocated lines in one transaction.
func (r *LineRepository) InsertBatch(ctx context.Context, lines []*payroll.SalaryLine) error {
	if r == nil || r.db == nil {
		return errors.New("line repo: nil db")
	}
	if len(lines) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
ON CONFLICT (id) DO NOTHING`, r.table, lineColumns)
	for _, line := range lines {
		if line == nil || line.ID == "" {
			return errors.New("line repo: invalid line")
		}
		var postedAt any
		if !line.PostedAt.IsZero() {
			postedAt = line.PostedAt
		}
		if _, err := tx.ExecContext(ctx, query,
			line.ID, line.FileID, line.RowIndex, line.Matricule, line.MemberName, line.BranchID, line.LoanRef,
			line.GrossSalary, line.NetSalary, line.Capital, line.Interest, line.VAT, line.Savings,
			line.Shares, line.Charges, line.RemainingSalary,
			line.Status, line.FailReason, line.TransactionRef, postedAt, line.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListByFile returns all lines of a file in row order.
func (r *LineRepository) ListByFile(ctx context.Context, fileID string) ([]*payroll.SalaryLine, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE file_id = $1 ORDER BY row_index`, lineColumns, r.table)
	return r.list(ctx, query, fileID)
}

// ListByFileBranch returns all lines of a branch within a file in row order.
func (r *LineRepository) ListByFileBranch(ctx context.Context, fileID, branchID string) ([]*payroll.SalaryLine, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE file_id = $1 AND branch_id = $2 ORDER BY row_index`, lineColumns, r.table)
	return r.list(ctx, query, fileID, branchID)
}

// ListPending returns pending lines of a branch within a file in row order.
func (r *LineRepository) ListPending(ctx context.Context, fileID, branchID string) ([]*payroll.SalaryLine, error) {
	query := fmt.Sprintf(`
SELECT %s FROM %s
WHERE file_id = $1 AND branch_id = $2 AND status = $3
ORDER BY row_index`, lineColumns, r.table)
	return r.list(ctx, query, fileID, branchID, payroll.LineStatusPending)
}

// MarkPosted transitions a line pending -> posted. The status predicate makes
// the transition happen at most once.
func (r *LineRepository) MarkPosted(ctx context.Context, id, transactionRef string) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("line repo: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s SET status = $2, transaction_ref = $3, fail_reason = '', posted_at = $4
WHERE id = $1 AND status = $5`, r.table)
	result, err := r.db.ExecContext(ctx, query, id, payroll.LineStatusPosted, transactionRef,
		time.Now().UTC(), payroll.LineStatusPending)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// MarkFailed records a per-line posting failure; posted lines are untouched.
func (r *LineRepository) MarkFailed(ctx context.Context, id, reason string) error {
	if r == nil || r.db == nil {
		return errors.New("line repo: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s SET status = $2, fail_reason = $3
WHERE id = $1 AND status = $4`, r.table)
	_, err := r.db.ExecContext(ctx, query, id, payroll.LineStatusFailed, reason, payroll.LineStatusPending)
	return err
}

// ResetFailed returns failed lines of a file to pending for a retry run.
func (r *LineRepository) ResetFailed(ctx context.Context, fileID string) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("line repo: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s SET status = $2, fail_reason = ''
WHERE file_id = $1 AND status = $3`, r.table)
	result, err := r.db.ExecContext(ctx, query, fileID, payroll.LineStatusPending, payroll.LineStatusFailed)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *LineRepository) list(ctx context.Context, query string, args ...any) ([]*payroll.SalaryLine, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("line repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []*payroll.SalaryLine
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func scanLine(rows *sql.Rows) (*payroll.SalaryLine, error) {
	var line payroll.SalaryLine
	var gross, net, capital, interest, vat, savings, shares, charges, remaining string
	var postedAt sql.NullTime
	if err := rows.Scan(
		&line.ID, &line.FileID, &line.RowIndex, &line.Matricule, &line.MemberName, &line.BranchID, &line.LoanRef,
		&gross, &net, &capital, &interest, &vat, &savings, &shares, &charges, &remaining,
		&line.Status, &line.FailReason, &line.TransactionRef, &postedAt, &line.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	for _, field := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&line.GrossSalary, gross},
		{&line.NetSalary, net},
		{&line.Capital, capital},
		{&line.Interest, interest},
		{&line.VAT, vat},
		{&line.Savings, savings},
		{&line.Shares, shares},
		{&line.Charges, charges},
		{&line.RemainingSalary, remaining},
	} {
		if *field.dst, err = decimal.NewFromString(field.src); err != nil {
			return nil, fmt.Errorf("line repo: bad decimal %q: %w", field.src, err)
		}
	}
	if postedAt.Valid {
		line.PostedAt = postedAt.Time
	}
	return &line, nil
}
