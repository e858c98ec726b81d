package standingorder

import (
	"time"

	"github.com/shopspring/decimal"
)

// Recurrence frequencies.
const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
)

// Account classes a standing order can move money between.
const (
	AccountClassSalary  = "salary"
	AccountClassDeposit = "deposit"
	AccountClassSavings = "savings"
	AccountClassShares  = "shares"
)

// Order is a recurring, pre-authorized transfer instruction executed on its
// own schedule, independent of payroll files. Orders are deactivated, never
// hard-deleted.
type Order struct {
	ID                string
	MemberID          string
	BranchID          string
	SourceClass       string
	DestinationClass  string
	Amount            decimal.Decimal
	Purpose           string
	Frequency         string
	StartDate         time.Time
	EndDate           time.Time
	Priority          int
	Active            bool
	ExternalAccount   bool
	ExternalAccountNo string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Validate checks the order fields on create/update.
func (o *Order) Validate() error {
	switch {
	case o == nil:
		return ErrInvalidOrder
	case o.MemberID == "" || o.BranchID == "":
		return ErrInvalidOrder
	case !validClass(o.SourceClass):
		return ErrInvalidOrder
	case !o.ExternalAccount && !validClass(o.DestinationClass):
		return ErrInvalidOrder
	case o.ExternalAccount && o.ExternalAccountNo == "":
		return ErrInvalidOrder
	case !o.Amount.IsPositive():
		return ErrInvalidOrder
	case o.Frequency != FrequencyDaily && o.Frequency != FrequencyWeekly && o.Frequency != FrequencyMonthly:
		return ErrInvalidOrder
	case o.StartDate.IsZero():
		return ErrInvalidOrder
	case !o.EndDate.IsZero() && o.EndDate.Before(o.StartDate):
		return ErrInvalidOrder
	}
	return nil
}

// DueOn reports whether the order's schedule falls due on the given date.
// Monthly orders anchored past the end of a short month fall due on its
// last day.
func (o *Order) DueOn(asOf time.Time) bool {
	if o == nil || !o.Active {
		return false
	}
	day := truncateDay(asOf)
	if day.Before(truncateDay(o.StartDate)) {
		return false
	}
	if !o.EndDate.IsZero() && day.After(truncateDay(o.EndDate)) {
		return false
	}
	switch o.Frequency {
	case FrequencyDaily:
		return true
	case FrequencyWeekly:
		return day.Weekday() == o.StartDate.Weekday()
	case FrequencyMonthly:
		anchor := o.StartDate.Day()
		last := lastDayOfMonth(day)
		if anchor > last {
			anchor = last
		}
		return day.Day() == anchor
	default:
		return false
	}
}

// Expired reports whether the order's window has closed.
func (o *Order) Expired(asOf time.Time) bool {
	return o != nil && !o.EndDate.IsZero() && truncateDay(asOf).After(truncateDay(o.EndDate))
}

func validClass(class string) bool {
	switch class {
	case AccountClassSalary, AccountClassDeposit, AccountClassSavings, AccountClassShares:
		return true
	default:
		return false
	}
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func lastDayOfMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
