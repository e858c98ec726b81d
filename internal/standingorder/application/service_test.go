package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"payroll-cloud/internal/ledger"
	standingorder "payroll-cloud/internal/standingorder/domain"
	"payroll-cloud/internal/standingorder/infrastructure/memory"
)

type stubPoster struct {
	mu      sync.Mutex
	calls   int
	sources []string
	failFor map[string]bool
}

func (s *stubPoster) Post(ctx context.Context, req ledger.PostRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.sources = append(s.sources, req.SourceID)
	if s.failFor[req.MemberID] {
		return "", errors.New("ledger rejected posting")
	}
	return fmt.Sprintf("tx-%d", s.calls), nil
}

type stubDayChecker struct {
	closedBranches map[string]bool
	calls          int
}

func (s *stubDayChecker) IsOpen(ctx context.Context, branchID string, date time.Time) (bool, error) {
	s.calls++
	return !s.closedBranches[branchID], nil
}

type stubResolver struct {
	missing map[string]bool
}

func (s *stubResolver) Resolve(ctx context.Context, accountNo string) (bool, error) {
	return !s.missing[accountNo], nil
}

func monthlyOrder(id, member, branch string, startDay int) *standingorder.Order {
	return &standingorder.Order{
		ID:               id,
		MemberID:         member,
		BranchID:         branch,
		SourceClass:      standingorder.AccountClassDeposit,
		DestinationClass: standingorder.AccountClassSavings,
		Amount:           decimal.NewFromInt(5000),
		Frequency:        standingorder.FrequencyMonthly,
		StartDate:        time.Date(2026, time.January, startDay, 0, 0, 0, 0, time.UTC),
		Active:           true,
	}
}

func newTestService(t *testing.T, orders *memory.OrderRepository, runs *memory.RunRepository, poster *stubPoster, days *stubDayChecker, resolver *stubResolver) *Service {
	t.Helper()
	if days == nil {
		days = &stubDayChecker{}
	}
	service, err := NewService(orders, runs, poster, days, resolver, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func TestRunDuePostsDueOrders(t *testing.T) {
	orders := memory.NewOrderRepository()
	runs := memory.NewRunRepository()
	poster := &stubPoster{}
	_ = orders.Create(context.Background(), monthlyOrder("so-1", "M-1", "B1", 15))
	_ = orders.Create(context.Background(), monthlyOrder("so-2", "M-2", "B1", 20))
	service := newTestService(t, orders, runs, poster, nil, nil)

	asOf := time.Date(2026, time.March, 15, 9, 0, 0, 0, time.UTC)
	report, err := service.RunDue(context.Background(), asOf)
	if err != nil {
		t.Fatalf("run due: %v", err)
	}
	if report.Due != 1 || report.Posted != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if poster.calls != 1 {
		t.Fatalf("expected one posting, got %d", poster.calls)
	}
	if poster.sources[0] != "so-1:2026-03-15" {
		t.Fatalf("source id must carry the date, got %s", poster.sources[0])
	}
	if ref, ok := runs.Ref("so-1", asOf); !ok || ref == "" {
		t.Fatalf("expected recorded run, ref=%q ok=%v", ref, ok)
	}
}

func TestRunDueOncePerDay(t *testing.T) {
	orders := memory.NewOrderRepository()
	runs := memory.NewRunRepository()
	poster := &stubPoster{}
	_ = orders.Create(context.Background(), monthlyOrder("so-1", "M-1", "B1", 15))
	service := newTestService(t, orders, runs, poster, nil, nil)

	asOf := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)
	if _, err := service.RunDue(context.Background(), asOf); err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := service.RunDue(context.Background(), asOf)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if poster.calls != 1 {
		t.Fatalf("order must post once per day, got %d posts", poster.calls)
	}
	if second.Skipped != 1 {
		t.Fatalf("expected replayed order skipped, got %+v", second)
	}
}

func TestRunDueFailureIsolation(t *testing.T) {
	orders := memory.NewOrderRepository()
	runs := memory.NewRunRepository()
	poster := &stubPoster{failFor: map[string]bool{"M-1": true}}
	_ = orders.Create(context.Background(), monthlyOrder("so-1", "M-1", "B1", 15))
	_ = orders.Create(context.Background(), monthlyOrder("so-2", "M-2", "B1", 15))
	service := newTestService(t, orders, runs, poster, nil, nil)

	asOf := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)
	report, err := service.RunDue(context.Background(), asOf)
	if err != nil {
		t.Fatalf("run due: %v", err)
	}
	if report.Posted != 1 || report.Failed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	// The failed claim is released, so the next run can retry.
	poster.failFor = nil
	retry, err := service.RunDue(context.Background(), asOf)
	if err != nil {
		t.Fatalf("retry run: %v", err)
	}
	if retry.Posted != 1 || retry.Skipped != 1 {
		t.Fatalf("expected failed order retried and posted one skipped: %+v", retry)
	}
}

func TestRunDueSkipsClosedBranch(t *testing.T) {
	orders := memory.NewOrderRepository()
	runs := memory.NewRunRepository()
	poster := &stubPoster{}
	days := &stubDayChecker{closedBranches: map[string]bool{"B2": true}}
	_ = orders.Create(context.Background(), monthlyOrder("so-1", "M-1", "B1", 15))
	_ = orders.Create(context.Background(), monthlyOrder("so-2", "M-2", "B2", 15))
	service := newTestService(t, orders, runs, poster, days, nil)

	report, err := service.RunDue(context.Background(), time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("run due: %v", err)
	}
	if report.Posted != 1 || report.Skipped != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if poster.calls != 1 {
		t.Fatalf("closed branch must not reach the ledger, got %d posts", poster.calls)
	}
}

func TestRunDueUnresolvedExternalAccount(t *testing.T) {
	orders := memory.NewOrderRepository()
	runs := memory.NewRunRepository()
	poster := &stubPoster{}
	resolver := &stubResolver{missing: map[string]bool{"ACC-404": true}}

	external := monthlyOrder("so-1", "M-1", "B1", 15)
	external.ExternalAccount = true
	external.ExternalAccountNo = "ACC-404"
	external.DestinationClass = ""
	_ = orders.Create(context.Background(), external)
	_ = orders.Create(context.Background(), monthlyOrder("so-2", "M-2", "B1", 15))
	service := newTestService(t, orders, runs, poster, nil, resolver)

	report, err := service.RunDue(context.Background(), time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("run due: %v", err)
	}
	if report.Failed != 1 || report.Posted != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(report.Failures) != 1 || report.Failures[0].OrderID != "so-1" {
		t.Fatalf("expected so-1 failure, got %+v", report.Failures)
	}
}

func TestRunDuePriorityOrder(t *testing.T) {
	orders := memory.NewOrderRepository()
	runs := memory.NewRunRepository()
	poster := &stubPoster{}

	low := monthlyOrder("so-low", "M-1", "B1", 15)
	low.Priority = 5
	high := monthlyOrder("so-high", "M-2", "B1", 15)
	high.Priority = 1
	_ = orders.Create(context.Background(), low)
	_ = orders.Create(context.Background(), high)
	service := newTestService(t, orders, runs, poster, nil, nil)

	if _, err := service.RunDue(context.Background(), time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("run due: %v", err)
	}
	if len(poster.sources) != 2 || poster.sources[0] != "so-high:2026-03-15" {
		t.Fatalf("expected priority order, got %v", poster.sources)
	}
}

func TestCreateRejectsUnresolvedExternalAccount(t *testing.T) {
	orders := memory.NewOrderRepository()
	resolver := &stubResolver{missing: map[string]bool{"ACC-404": true}}
	service := newTestService(t, orders, memory.NewRunRepository(), &stubPoster{}, nil, resolver)

	order := monthlyOrder("", "M-1", "B1", 15)
	order.ExternalAccount = true
	order.ExternalAccountNo = "ACC-404"
	order.DestinationClass = ""
	if err := service.Create(context.Background(), order); !errors.Is(err, standingorder.ErrUnresolvedAccount) {
		t.Fatalf("expected unresolved account error, got %v", err)
	}
}

func TestDeactivateStopsRuns(t *testing.T) {
	orders := memory.NewOrderRepository()
	runs := memory.NewRunRepository()
	poster := &stubPoster{}
	_ = orders.Create(context.Background(), monthlyOrder("so-1", "M-1", "B1", 15))
	service := newTestService(t, orders, runs, poster, nil, nil)

	if err := service.Deactivate(context.Background(), "so-1"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	report, err := service.RunDue(context.Background(), time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("run due: %v", err)
	}
	if report.Due != 0 || poster.calls != 0 {
		t.Fatalf("deactivated order must not run: %+v posts=%d", report, poster.calls)
	}
}
