package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	standingorder "payroll-cloud/internal/standingorder/domain"
)

const defaultOrderTable = "standing_orders"

// OrderRepository is a Postgres implementation for standing orders.
type OrderRepository struct {
	db    *sql.DB
	table string
}

// NewOrderRepository constructs a repository.
func NewOrderRepository(db *sql.DB, opts ...OrderOption) *OrderRepository {
	repo := &OrderRepository{db: db, table: defaultOrderTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// OrderOption configures the repository.
type OrderOption func(*OrderRepository)

// WithOrderTable overrides the table name.
func WithOrderTable(table string) OrderOption {
	return func(repo *OrderRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

const orderColumns = `id, member_id, branch_id, source_class, destination_class, amount, purpose,
	frequency, start_date, end_date, priority, active, external_account, external_account_no,
	created_at, updated_at`

// Create inserts a new order.
func (r *OrderRepository) Create(ctx context.Context, order *standingorder.Order) error {
	if r == nil || r.db == nil {
		return errors.New("order repo: nil db")
	}
	if order == nil || order.ID == "" {
		return standingorder.ErrInvalidOrder
	}
	query := fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`, r.table, orderColumns)
	_, err := r.db.ExecContext(ctx, query,
		order.ID, order.MemberID, order.BranchID, order.SourceClass, order.DestinationClass,
		order.Amount, order.Purpose, order.Frequency, order.StartDate, nullTime(order.EndDate),
		order.Priority, order.Active, order.ExternalAccount, order.ExternalAccountNo,
		order.CreatedAt, order.UpdatedAt)
	return err
}

// Update overwrites an existing order.
func (r *OrderRepository) Update(ctx context.Context, order *standingorder.Order) error {
	if r == nil || r.db == nil {
		return errors.New("order repo: nil db")
	}
	if order == nil || order.ID == "" {
		return standingorder.ErrInvalidOrder
	}
	query := fmt.Sprintf(`
UPDATE %s SET member_id = $2, branch_id = $3, source_class = $4, destination_class = $5,
	amount = $6, purpose = $7, frequency = $8, start_date = $9, end_date = $10,
	priority = $11, active = $12, external_account = $13, external_account_no = $14,
	updated_at = $15
WHERE id = $1`, r.table)
	result, err := r.db.ExecContext(ctx, query,
		order.ID, order.MemberID, order.BranchID, order.SourceClass, order.DestinationClass,
		order.Amount, order.Purpose, order.Frequency, order.StartDate, nullTime(order.EndDate),
		order.Priority, order.Active, order.ExternalAccount, order.ExternalAccountNo,
		order.UpdatedAt)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return standingorder.ErrOrderNotFound
	}
	return nil
}

// GetByID loads one order, nil when unknown.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*standingorder.Order, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("order repo: nil db")
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, orderColumns, r.table)
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanOrder(rows)
}

// ListActive returns all active orders ordered by priority.
func (r *OrderRepository) ListActive(ctx context.Context) ([]*standingorder.Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE active ORDER BY priority, id`, orderColumns, r.table)
	return r.list(ctx, query)
}

// ListByMember returns a member's orders, active and inactive.
func (r *OrderRepository) ListByMember(ctx context.Context, memberID string) ([]*standingorder.Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE member_id = $1 ORDER BY created_at`, orderColumns, r.table)
	return r.list(ctx, query, memberID)
}

func (r *OrderRepository) list(ctx context.Context, query string, args ...any) ([]*standingorder.Order, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("order repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*standingorder.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func scanOrder(rows *sql.Rows) (*standingorder.Order, error) {
	var order standingorder.Order
	var amount string
	var endDate sql.NullTime
	if err := rows.Scan(
		&order.ID, &order.MemberID, &order.BranchID, &order.SourceClass, &order.DestinationClass,
		&amount, &order.Purpose, &order.Frequency, &order.StartDate, &endDate,
		&order.Priority, &order.Active, &order.ExternalAccount, &order.ExternalAccountNo,
		&order.CreatedAt, &order.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("order repo: bad decimal %q: %w", amount, err)
	}
	order.Amount = parsed
	if endDate.Valid {
		order.EndDate = endDate.Time
	}
	return &order, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
