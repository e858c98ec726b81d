package standingorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	standingorder "payroll-cloud/internal/standingorder/domain"
)

const defaultOrderTable = "standing_orders"

// ChargeReader sums a member's active salary-sourced standing orders into the
// recurring charges owed during payroll allocation. Orders that draw from a
// deposit account are settled by the scheduler, not from salary.
type ChargeReader struct {
	db    *sql.DB
	table string
}

// NewChargeReader constructs a reader.
func NewChargeReader(db *sql.DB, opts ...ReaderOption) *ChargeReader {
	reader := &ChargeReader{db: db, table: defaultOrderTable}
	for _, opt := range opts {
		opt(reader)
	}
	return reader
}

// ReaderOption configures the reader.
type ReaderOption func(*ChargeReader)

// WithTable overrides the standing orders table name.
func WithTable(table string) ReaderOption {
	return func(reader *ChargeReader) {
		if reader != nil && table != "" {
			reader.table = table
		}
	}
}

// ChargesDue returns the total of the member's active salary-sourced orders.
func (r *ChargeReader) ChargesDue(ctx context.Context, memberID string) (decimal.Decimal, error) {
	if r == nil || r.db == nil {
		return decimal.Decimal{}, errors.New("charge reader: nil db")
	}
	if memberID == "" {
		return decimal.Decimal{}, errors.New("charge reader: empty member id")
	}

	query := fmt.Sprintf(`
SELECT COALESCE(SUM(amount), 0)
FROM %s
WHERE member_id = $1 AND source_class = $2 AND active
	AND (end_date IS NULL OR end_date >= CURRENT_DATE)`, r.table)

	var total string
	if err := r.db.QueryRowContext(ctx, query, memberID, standingorder.AccountClassSalary).Scan(&total); err != nil {
		return decimal.Decimal{}, err
	}
	owed, err := decimal.NewFromString(total)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("charge reader: bad decimal %q: %w", total, err)
	}
	if owed.IsNegative() {
		return decimal.Decimal{}, errors.New("charge reader: negative charges total")
	}
	return owed, nil
}
