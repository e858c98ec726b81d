package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	standingorder "payroll-cloud/internal/standingorder/domain"
)

// OrderRepository is an in-memory standing order store for tests.
type OrderRepository struct {
	mu     sync.Mutex
	orders map[string]*standingorder.Order
}

// NewOrderRepository constructs an empty repository.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{orders: make(map[string]*standingorder.Order)}
}

// Create inserts a new order.
func (r *OrderRepository) Create(ctx context.Context, order *standingorder.Order) error {
	_ = ctx
	if order == nil || order.ID == "" {
		return standingorder.ErrInvalidOrder
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *order
	r.orders[order.ID] = &copied
	return nil
}

// Update overwrites an existing order.
func (r *OrderRepository) Update(ctx context.Context, order *standingorder.Order) error {
	_ = ctx
	if order == nil || order.ID == "" {
		return standingorder.ErrInvalidOrder
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.ID]; !ok {
		return standingorder.ErrOrderNotFound
	}
	copied := *order
	r.orders[order.ID] = &copied
	return nil
}

// GetByID loads one order, nil when unknown.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*standingorder.Order, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	copied := *order
	return &copied, nil
}

// ListActive returns all active orders ordered by priority.
func (r *OrderRepository) ListActive(ctx context.Context) ([]*standingorder.Order, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	var orders []*standingorder.Order
	for _, order := range r.orders {
		if order.Active {
			copied := *order
			orders = append(orders, &copied)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].Priority != orders[j].Priority {
			return orders[i].Priority < orders[j].Priority
		}
		return orders[i].ID < orders[j].ID
	})
	return orders, nil
}

// ListByMember returns a member's orders.
func (r *OrderRepository) ListByMember(ctx context.Context, memberID string) ([]*standingorder.Order, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	var orders []*standingorder.Order
	for _, order := range r.orders {
		if order.MemberID == memberID {
			copied := *order
			orders = append(orders, &copied)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.Before(orders[j].CreatedAt) })
	return orders, nil
}

// RunRepository is an in-memory once-per-day guard for tests.
type RunRepository struct {
	mu   sync.Mutex
	runs map[string]string
}

// NewRunRepository constructs an empty repository.
func NewRunRepository() *RunRepository {
	return &RunRepository{runs: make(map[string]string)}
}

func runKey(orderID string, asOf time.Time) string {
	return orderID + "|" + asOf.Format("2006-01-02")
}

// Claim takes the run claim for (order, date).
func (r *RunRepository) Claim(ctx context.Context, orderID string, asOf time.Time) (bool, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	key := runKey(orderID, asOf)
	if _, held := r.runs[key]; held {
		return false, nil
	}
	r.runs[key] = ""
	return true, nil
}

// Complete records the transaction reference.
func (r *RunRepository) Complete(ctx context.Context, orderID string, asOf time.Time, transactionRef string) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[runKey(orderID, asOf)] = transactionRef
	return nil
}

// Release frees an unfinished claim.
func (r *RunRepository) Release(ctx context.Context, orderID string, asOf time.Time) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	key := runKey(orderID, asOf)
	if ref, held := r.runs[key]; held && ref == "" {
		delete(r.runs, key)
	}
	return nil
}

// Ref returns the recorded transaction reference for (order, date).
func (r *RunRepository) Ref(orderID string, asOf time.Time) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, held := r.runs[runKey(orderID, asOf)]
	return ref, held
}
