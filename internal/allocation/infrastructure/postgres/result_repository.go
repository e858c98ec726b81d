package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	allocation "payroll-cloud/internal/allocation/domain"
)

const (
	defaultResultTable = "allocation_results"
	defaultLineTable   = "salary_lines"
)

// ResultRepository is a Postgres implementation for per-file allocation
// aggregates.
type ResultRepository struct {
	db          *sql.DB
	resultTable string
	lineTable   string
}

// NewResultRepository constructs a repository.
func NewResultRepository(db *sql.DB, opts ...ResultOption) *ResultRepository {
	repo := &ResultRepository{db: db, resultTable: defaultResultTable, lineTable: defaultLineTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// ResultOption configures the repository.
type ResultOption func(*ResultRepository)

// WithResultTable overrides the aggregates table name.
func WithResultTable(table string) ResultOption {
	return func(repo *ResultRepository) {
		if table != "" {
			repo.resultTable = table
		}
	}
}

// WithResultLineTable overrides the salary lines table used for recomputes.
func WithResultLineTable(table string) ResultOption {
	return func(repo *ResultRepository) {
		if table != "" {
			repo.lineTable = table
		}
	}
}

const resultColumns = `file_id, line_count,
	total_capital, total_interest, total_vat, total_savings, total_shares, total_charges, total_remaining, total_net,
	capital_lines, interest_lines, vat_lines, savings_lines, shares_lines, charges_lines, created_at`

// Save upserts the aggregate. Re-analysis of the same file overwrites the
// previous aggregate; line-level records stay authoritative.
func (r *ResultRepository) Save(ctx context.Context, result *allocation.Result) error {
	if r == nil || r.db == nil {
		return errors.New("result repo: nil db")
	}
	if result == nil || result.FileID == "" {
		return errors.New("result repo: invalid result")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT (file_id) DO UPDATE SET
	line_count = EXCLUDED.line_count,
	total_capital = EXCLUDED.total_capital,
	total_interest = EXCLUDED.total_interest,
	total_vat = EXCLUDED.total_vat,
	total_savings = EXCLUDED.total_savings,
	total_shares = EXCLUDED.total_shares,
	total_charges = EXCLUDED.total_charges,
	total_remaining = EXCLUDED.total_remaining,
	total_net = EXCLUDED.total_net,
	capital_lines = EXCLUDED.capital_lines,
	interest_lines = EXCLUDED.interest_lines,
	vat_lines = EXCLUDED.vat_lines,
	savings_lines = EXCLUDED.savings_lines,
	shares_lines = EXCLUDED.shares_lines,
	charges_lines = EXCLUDED.charges_lines,
	created_at = EXCLUDED.created_at`, r.resultTable, resultColumns)
	_, err := r.db.ExecContext(ctx, query,
		result.FileID, result.LineCount,
		result.TotalCapital, result.TotalInterest, result.TotalVAT, result.TotalSavings,
		result.TotalShares, result.TotalCharges, result.TotalRemaining, result.TotalNet,
		result.CapitalLines, result.InterestLines, result.VATLines, result.SavingsLines,
		result.SharesLines, result.ChargesLines, result.CreatedAt)
	return err
}

// GetByFile loads the stored aggregate for a file.
func (r *ResultRepository) GetByFile(ctx context.Context, fileID string) (*allocation.Result, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("result repo: nil db")
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE file_id = $1`, resultColumns, r.resultTable)
	row := r.db.QueryRowContext(ctx, query, fileID)

	var result allocation.Result
	var capital, interest, vat, savings, shares, charges, remaining, net string
	if err := row.Scan(
		&result.FileID, &result.LineCount,
		&capital, &interest, &vat, &savings, &shares, &charges, &remaining, &net,
		&result.CapitalLines, &result.InterestLines, &result.VATLines, &result.SavingsLines,
		&result.SharesLines, &result.ChargesLines, &result.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := scanTotals(&result, capital, interest, vat, savings, shares, charges, remaining, net); err != nil {
		return nil, err
	}
	return &result, nil
}

// RecomputeFromLines rebuilds the aggregate by summing the stored salary
// lines and persists the result.
func (r *ResultRepository) RecomputeFromLines(ctx context.Context, fileID string) (*allocation.Result, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("result repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT COUNT(*),
	COALESCE(SUM(capital), 0), COALESCE(SUM(interest), 0), COALESCE(SUM(vat), 0),
	COALESCE(SUM(savings), 0), COALESCE(SUM(shares), 0), COALESCE(SUM(charges), 0),
	COALESCE(SUM(remaining_salary), 0), COALESCE(SUM(net_salary), 0),
	COUNT(*) FILTER (WHERE capital > 0), COUNT(*) FILTER (WHERE interest > 0),
	COUNT(*) FILTER (WHERE vat > 0), COUNT(*) FILTER (WHERE savings > 0),
	COUNT(*) FILTER (WHERE shares > 0), COUNT(*) FILTER (WHERE charges > 0)
FROM %s WHERE file_id = $1`, r.lineTable)
	row := r.db.QueryRowContext(ctx, query, fileID)

	result := allocation.Result{FileID: fileID, CreatedAt: time.Now().UTC()}
	var capital, interest, vat, savings, shares, charges, remaining, net string
	if err := row.Scan(
		&result.LineCount,
		&capital, &interest, &vat, &savings, &shares, &charges, &remaining, &net,
		&result.CapitalLines, &result.InterestLines, &result.VATLines, &result.SavingsLines,
		&result.SharesLines, &result.ChargesLines); err != nil {
		return nil, err
	}
	if err := scanTotals(&result, capital, interest, vat, savings, shares, charges, remaining, net); err != nil {
		return nil, err
	}
	if err := r.Save(ctx, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func scanTotals(result *allocation.Result, capital, interest, vat, savings, shares, charges, remaining, net string) error {
	var err error
	for _, field := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&result.TotalCapital, capital},
		{&result.TotalInterest, interest},
		{&result.TotalVAT, vat},
		{&result.TotalSavings, savings},
		{&result.TotalShares, shares},
		{&result.TotalCharges, charges},
		{&result.TotalRemaining, remaining},
		{&result.TotalNet, net},
	} {
		if *field.dst, err = decimal.NewFromString(field.src); err != nil {
			return fmt.Errorf("result repo: bad decimal %q: %w", field.src, err)
		}
	}
	return nil
}
