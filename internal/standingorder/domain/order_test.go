package standingorder

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func activeOrder(frequency string, start, end time.Time) *Order {
	return &Order{
		ID:               "so-1",
		MemberID:         "M-100",
		BranchID:         "B1",
		SourceClass:      AccountClassSalary,
		DestinationClass: AccountClassSavings,
		Amount:           decimal.NewFromInt(5000),
		Frequency:        frequency,
		StartDate:        start,
		EndDate:          end,
		Active:           true,
	}
}

func TestDueOnMonthly(t *testing.T) {
	order := activeOrder(FrequencyMonthly, date(2026, time.January, 15), time.Time{})

	if !order.DueOn(date(2026, time.March, 15)) {
		t.Fatalf("expected due on anchor day")
	}
	if order.DueOn(date(2026, time.March, 14)) {
		t.Fatalf("not due off anchor day")
	}
	if order.DueOn(date(2025, time.December, 15)) {
		t.Fatalf("not due before start")
	}
}

func TestDueOnMonthlyClampsShortMonths(t *testing.T) {
	order := activeOrder(FrequencyMonthly, date(2026, time.January, 31), time.Time{})

	if !order.DueOn(date(2026, time.February, 28)) {
		t.Fatalf("expected clamp to last day of february")
	}
	if order.DueOn(date(2026, time.February, 27)) {
		t.Fatalf("not due before clamped day")
	}
	if !order.DueOn(date(2026, time.March, 31)) {
		t.Fatalf("expected due on real anchor in long months")
	}
}

func TestDueOnWindowAndActive(t *testing.T) {
	order := activeOrder(FrequencyDaily, date(2026, time.January, 1), date(2026, time.June, 30))

	if !order.DueOn(date(2026, time.March, 10)) {
		t.Fatalf("expected due inside window")
	}
	if order.DueOn(date(2026, time.July, 1)) {
		t.Fatalf("not due after end date")
	}
	if !order.Expired(date(2026, time.July, 1)) {
		t.Fatalf("expected expired after end date")
	}

	order.Active = false
	if order.DueOn(date(2026, time.March, 10)) {
		t.Fatalf("inactive order never due")
	}
}

func TestDueOnWeekly(t *testing.T) {
	// 2026-01-05 is a Monday.
	order := activeOrder(FrequencyWeekly, date(2026, time.January, 5), time.Time{})

	if !order.DueOn(date(2026, time.January, 12)) {
		t.Fatalf("expected due the following monday")
	}
	if order.DueOn(date(2026, time.January, 13)) {
		t.Fatalf("not due on tuesday")
	}
}

func TestValidate(t *testing.T) {
	order := activeOrder(FrequencyMonthly, date(2026, time.January, 1), time.Time{})
	if err := order.Validate(); err != nil {
		t.Fatalf("valid order rejected: %v", err)
	}

	broken := *order
	broken.Amount = decimal.Zero
	if err := broken.Validate(); err == nil {
		t.Fatalf("expected error for zero amount")
	}

	broken = *order
	broken.Frequency = "yearly"
	if err := broken.Validate(); err == nil {
		t.Fatalf("expected error for unknown frequency")
	}

	broken = *order
	broken.ExternalAccount = true
	broken.ExternalAccountNo = ""
	if err := broken.Validate(); err == nil {
		t.Fatalf("expected error for missing external account number")
	}

	broken = *order
	broken.EndDate = date(2025, time.December, 31)
	if err := broken.Validate(); err == nil {
		t.Fatalf("expected error for end before start")
	}
}
