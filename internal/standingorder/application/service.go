package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"payroll-cloud/internal/ledger"
	"payroll-cloud/internal/observability/metrics"
	standingorder "payroll-cloud/internal/standingorder/domain"
)

// OrderRepository persists standing orders.
type OrderRepository interface {
	Create(ctx context.Context, order *standingorder.Order) error
	Update(ctx context.Context, order *standingorder.Order) error
	GetByID(ctx context.Context, id string) (*standingorder.Order, error)
	ListActive(ctx context.Context) ([]*standingorder.Order, error)
	ListByMember(ctx context.Context, memberID string) ([]*standingorder.Order, error)
}

// RunStore is the once-per-day guard. One row per (order, date): the claim
// insert loses when the order already ran that day.
type RunStore interface {
	Claim(ctx context.Context, orderID string, asOf time.Time) (bool, error)
	Complete(ctx context.Context, orderID string, asOf time.Time, transactionRef string) error
	Release(ctx context.Context, orderID string, asOf time.Time) error
}

// Report summarizes one scheduler run.
type Report struct {
	Due     int
	Posted  int
	Failed  int
	Skipped int

	Failures []OrderFailure
}

// OrderFailure records one order that could not be executed during a run.
type OrderFailure struct {
	OrderID string
	Reason  string
}

// Service manages standing orders and executes the ones falling due.
type Service struct {
	orders   OrderRepository
	runs     RunStore
	poster   ledger.Poster
	days     ledger.DayChecker
	resolver ledger.AccountResolver
	logger   *log.Logger
}

// NewService constructs the service.
func NewService(
	orders OrderRepository,
	runs RunStore,
	poster ledger.Poster,
	days ledger.DayChecker,
	resolver ledger.AccountResolver,
	logger *log.Logger,
) (*Service, error) {
	if orders == nil {
		return nil, errors.New("standing order service: nil order repository")
	}
	if runs == nil {
		return nil, errors.New("standing order service: nil run store")
	}
	if poster == nil {
		return nil, errors.New("standing order service: nil poster")
	}
	if days == nil {
		return nil, errors.New("standing order service: nil day checker")
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		orders:   orders,
		runs:     runs,
		poster:   poster,
		days:     days,
		resolver: resolver,
		logger:   logger,
	}, nil
}

// Create validates and stores a new order. External destination accounts are
// resolved up-front so a dead account is caught at creation, not at run time.
func (s *Service) Create(ctx context.Context, order *standingorder.Order) error {
	if order == nil {
		return standingorder.ErrInvalidOrder
	}
	if order.ID == "" {
		order.ID = "so-" + uuid.NewString()
	}
	if err := order.Validate(); err != nil {
		return err
	}
	if order.ExternalAccount && s.resolver != nil {
		exists, err := s.resolver.Resolve(ctx, order.ExternalAccountNo)
		if err != nil {
			return err
		}
		if !exists {
			return standingorder.ErrUnresolvedAccount
		}
	}
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	return s.orders.Create(ctx, order)
}

// Update validates and stores order changes.
func (s *Service) Update(ctx context.Context, order *standingorder.Order) error {
	if order == nil || order.ID == "" {
		return standingorder.ErrInvalidOrder
	}
	if err := order.Validate(); err != nil {
		return err
	}
	order.UpdatedAt = time.Now().UTC()
	return s.orders.Update(ctx, order)
}

// Deactivate switches an order off. Orders are never hard-deleted.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if order == nil {
		return standingorder.ErrOrderNotFound
	}
	order.Active = false
	order.UpdatedAt = time.Now().UTC()
	return s.orders.Update(ctx, order)
}

// Get loads one order.
func (s *Service) Get(ctx context.Context, id string) (*standingorder.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, standingorder.ErrOrderNotFound
	}
	return order, nil
}

// ListByMember lists a member's orders, active and inactive.
func (s *Service) ListByMember(ctx context.Context, memberID string) ([]*standingorder.Order, error) {
	return s.orders.ListByMember(ctx, memberID)
}

// RunDue executes every active order falling due on the date. Each order runs
// at most once per date; a failing order never blocks the rest of the run.
func (s *Service) RunDue(ctx context.Context, asOf time.Time) (Report, error) {
	start := time.Now()
	report, err := s.runDue(ctx, asOf)
	if err != nil {
		metrics.ObserveStandingRun(metrics.ResultError, time.Since(start))
		return report, err
	}
	metrics.ObserveStandingRun(metrics.ResultSuccess, time.Since(start))
	return report, nil
}

func (s *Service) runDue(ctx context.Context, asOf time.Time) (Report, error) {
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	asOf = time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)

	active, err := s.orders.ListActive(ctx)
	if err != nil {
		return Report{}, err
	}

	var due []*standingorder.Order
	for _, order := range active {
		if order.DueOn(asOf) {
			due = append(due, order)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority < due[j].Priority
		}
		return due[i].ID < due[j].ID
	})

	report := Report{Due: len(due)}
	openDays := make(map[string]bool)

	for _, order := range due {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		open, known := openDays[order.BranchID]
		if !known {
			open, err = s.days.IsOpen(ctx, order.BranchID, asOf)
			if err != nil {
				report.fail(order.ID, err.Error())
				continue
			}
			openDays[order.BranchID] = open
		}
		if !open {
			report.Skipped++
			metrics.IncStandingOrderPosting(metrics.PostingSkipped)
			s.logger.Printf("standing orders: order=%s branch=%s day closed, skipped", order.ID, order.BranchID)
			continue
		}
		s.runOrder(ctx, order, asOf, &report)
	}

	s.logger.Printf("standing orders: date=%s due=%d posted=%d failed=%d skipped=%d",
		asOf.Format("2006-01-02"), report.Due, report.Posted, report.Failed, report.Skipped)
	return report, nil
}

func (s *Service) runOrder(ctx context.Context, order *standingorder.Order, asOf time.Time, report *Report) {
	if order.ExternalAccount {
		if s.resolver == nil {
			report.fail(order.ID, standingorder.ErrUnresolvedAccount.Error())
			return
		}
		exists, err := s.resolver.Resolve(ctx, order.ExternalAccountNo)
		if err != nil {
			report.fail(order.ID, err.Error())
			return
		}
		if !exists {
			report.fail(order.ID, standingorder.ErrUnresolvedAccount.Error())
			return
		}
	}

	claimed, err := s.runs.Claim(ctx, order.ID, asOf)
	if err != nil {
		report.fail(order.ID, err.Error())
		return
	}
	if !claimed {
		report.Skipped++
		metrics.IncStandingOrderPosting(metrics.PostingSkipped)
		return
	}

	transactionRef, err := s.poster.Post(ctx, buildOrderRequest(order, asOf))
	if err != nil {
		if releaseErr := s.runs.Release(ctx, order.ID, asOf); releaseErr != nil {
			s.logger.Printf("standing orders: release %s: %v", order.ID, releaseErr)
		}
		report.fail(order.ID, err.Error())
		return
	}
	if err := s.runs.Complete(ctx, order.ID, asOf, transactionRef); err != nil {
		s.logger.Printf("standing orders: record completion %s: %v", order.ID, err)
	}
	report.Posted++
	metrics.IncStandingOrderPosting(metrics.PostingPosted)
}

func (r *Report) fail(orderID, reason string) {
	r.Failed++
	r.Failures = append(r.Failures, OrderFailure{OrderID: orderID, Reason: reason})
	metrics.IncStandingOrderPosting(metrics.PostingFailed)
}

// buildOrderRequest maps an order to a ledger posting. The source id carries
// the date so every (order, date) pair posts under its own idempotency key.
func buildOrderRequest(order *standingorder.Order, asOf time.Time) ledger.PostRequest {
	purpose := order.Purpose
	if purpose == "" {
		purpose = "standing order"
	}
	return ledger.PostRequest{
		SourceID:       fmt.Sprintf("%s:%s", order.ID, asOf.Format("2006-01-02")),
		MemberID:       order.MemberID,
		BranchID:       order.BranchID,
		AccountingDate: asOf,
		Purpose:        purpose,
		Lines: []ledger.PostLine{{
			Category: categoryFor(order),
			Amount:   order.Amount,
		}},
	}
}

func categoryFor(order *standingorder.Order) string {
	if order.ExternalAccount {
		return ledger.CategoryCharges
	}
	switch order.DestinationClass {
	case standingorder.AccountClassSavings:
		return ledger.CategorySavings
	case standingorder.AccountClassShares:
		return ledger.CategoryShares
	default:
		return ledger.CategoryCharges
	}
}
