package payroll

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Posting lifecycle of a single salary line. A line moves pending -> posted
// exactly once; posted lines are immutable.
const (
	LineStatusPending = "pending"
	LineStatusPosted  = "posted"
	LineStatusFailed  = "failed"
)

// SalaryLine is one employee row of a payroll extract. The parser fills the
// identity and salary columns; the allocation engine fills the deduction
// split; the orchestrator owns the status.
type SalaryLine struct {
	ID         string
	FileID     string
	RowIndex   int
	Matricule  string
	MemberName string
	BranchID   string
	LoanRef    string

	GrossSalary decimal.Decimal
	NetSalary   decimal.Decimal

	Capital         decimal.Decimal
	Interest        decimal.Decimal
	VAT             decimal.Decimal
	Savings         decimal.Decimal
	Shares          decimal.Decimal
	Charges         decimal.Decimal
	RemainingSalary decimal.Decimal

	Status         string
	FailReason     string
	TransactionRef string
	PostedAt       time.Time
	CreatedAt      time.Time
}

// AllocationTotal sums the deduction split plus the remainder. The invariant
// is AllocationTotal() == NetSalary, exactly.
func (l *SalaryLine) AllocationTotal() decimal.Decimal {
	return l.Capital.
		Add(l.Interest).
		Add(l.VAT).
		Add(l.Savings).
		Add(l.Shares).
		Add(l.Charges).
		Add(l.RemainingSalary)
}

// Terminal reports whether the line needs no further posting work.
func (l *SalaryLine) Terminal() bool {
	return l.Status == LineStatusPosted || l.Status == LineStatusFailed
}

// RowError records a rejected payroll row. Row errors never abort the file.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// Branches returns the sorted set of branches owning lines in the slice.
func Branches(lines []*SalaryLine) []string {
	seen := make(map[string]struct{})
	for _, line := range lines {
		if line == nil || line.BranchID == "" {
			continue
		}
		seen[line.BranchID] = struct{}{}
	}
	branches := make([]string, 0, len(seen))
	for branch := range seen {
		branches = append(branches, branch)
	}
	sort.Strings(branches)
	return branches
}
