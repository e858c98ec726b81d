package allocation

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNegativeInput rejects negative salary, dues or policy values.
var ErrNegativeInput = errors.New("allocation: negative input")

// DueAmounts are the employee's loan amounts due this run, supplied by the
// loan schedule service.
type DueAmounts struct {
	Capital  decimal.Decimal
	Interest decimal.Decimal
	VAT      decimal.Decimal
}

// ContributionPolicy is the branch policy for mandatory contributions.
// SavingsRate is a fraction of net salary; ShareAmount is a flat subscription.
type ContributionPolicy struct {
	SavingsRate decimal.Decimal
	ShareAmount decimal.Decimal
}

// Split is the deduction waterfall outcome for one salary line.
// Capital+Interest+VAT+Savings+Shares+Charges+RemainingSalary == net, exactly.
type Split struct {
	Capital         decimal.Decimal
	Interest        decimal.Decimal
	VAT             decimal.Decimal
	Savings         decimal.Decimal
	Shares          decimal.Decimal
	Charges         decimal.Decimal
	RemainingSalary decimal.Decimal
}

// Allocate distributes net salary across deduction categories in fixed
// priority order: loan capital, loan interest, VAT on interest, savings,
// shares, recurring charges. A category is paid in full when the running
// balance covers it; the first category it cannot cover absorbs the whole
// balance and everything below gets zero. Rounding of the savings
// contribution is absorbed by the remainder, so the sum invariant holds to
// the cent.
func Allocate(netSalary decimal.Decimal, due DueAmounts, policy ContributionPolicy, chargesDue decimal.Decimal) (Split, error) {
	if netSalary.IsNegative() {
		return Split{}, ErrNegativeInput
	}
	for _, amount := range []decimal.Decimal{due.Capital, due.Interest, due.VAT, policy.SavingsRate, policy.ShareAmount, chargesDue} {
		if amount.IsNegative() {
			return Split{}, ErrNegativeInput
		}
	}

	savingsDue := netSalary.Mul(policy.SavingsRate).Round(2)

	remaining := netSalary
	take := func(required decimal.Decimal) decimal.Decimal {
		taken := decimal.Min(remaining, required)
		remaining = remaining.Sub(taken)
		return taken
	}

	split := Split{
		Capital:  take(due.Capital),
		Interest: take(due.Interest),
		VAT:      take(due.VAT),
		Savings:  take(savingsDue),
		Shares:   take(policy.ShareAmount),
		Charges:  take(chargesDue),
	}
	split.RemainingSalary = remaining
	return split, nil
}

// Total sums the split including the remainder.
func (s Split) Total() decimal.Decimal {
	return s.Capital.
		Add(s.Interest).
		Add(s.VAT).
		Add(s.Savings).
		Add(s.Shares).
		Add(s.Charges).
		Add(s.RemainingSalary)
}
