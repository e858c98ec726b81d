package execution

import (
	"time"

	"github.com/shopspring/decimal"
)

// Branch run lifecycle. A run is recorded when a branch finishes one
// execution pass; re-triggering a finished run replays the stored summary
// without touching the ledger.
const (
	RunStatusCompleted = "completed"
	RunStatusPartial   = "partial"
)

// BranchRun is the durable record of one branch execution pass over a file.
type BranchRun struct {
	ID       string
	FileID   string
	BranchID string
	Status   string
	Summary  Summary
	RunBy    string
	RunAt    time.Time
}

// Summary aggregates posting outcomes of one branch execution pass.
type Summary struct {
	Lines   int `json:"lines"`
	Posted  int `json:"posted"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`

	TotalCapital  decimal.Decimal `json:"total_capital"`
	TotalInterest decimal.Decimal `json:"total_interest"`
	TotalVAT      decimal.Decimal `json:"total_vat"`
	TotalSavings  decimal.Decimal `json:"total_savings"`
	TotalShares   decimal.Decimal `json:"total_shares"`
	TotalCharges  decimal.Decimal `json:"total_charges"`

	Failures []LineFailure `json:"failures,omitempty"`
}

// LineFailure records one line that could not be posted during the run.
type LineFailure struct {
	LineID string `json:"line_id"`
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// Clean reports whether every line of the run was posted.
func (s Summary) Clean() bool {
	return s.Failed == 0 && s.Skipped == 0
}

// AddPosted accumulates a posted line's deduction totals.
func (s *Summary) AddPosted(capital, interest, vat, savings, shares, charges decimal.Decimal) {
	s.Posted++
	s.TotalCapital = s.TotalCapital.Add(capital)
	s.TotalInterest = s.TotalInterest.Add(interest)
	s.TotalVAT = s.TotalVAT.Add(vat)
	s.TotalSavings = s.TotalSavings.Add(savings)
	s.TotalShares = s.TotalShares.Add(shares)
	s.TotalCharges = s.TotalCharges.Add(charges)
}

// AddFailure records a failed line.
func (s *Summary) AddFailure(lineID string, row int, reason string) {
	s.Failed++
	s.Failures = append(s.Failures, LineFailure{LineID: lineID, Row: row, Reason: reason})
}
