package allocation

import (
	"time"

	"github.com/shopspring/decimal"

	payroll "payroll-cloud/internal/payroll/domain"
)

// Result is the per-file allocation aggregate: arithmetic sums over all
// salary lines plus per-category line counts. It is derived data — the
// line-level records stay authoritative and the aggregate is recomputable
// at any time by re-summing them.
type Result struct {
	FileID    string
	LineCount int

	TotalCapital   decimal.Decimal
	TotalInterest  decimal.Decimal
	TotalVAT       decimal.Decimal
	TotalSavings   decimal.Decimal
	TotalShares    decimal.Decimal
	TotalCharges   decimal.Decimal
	TotalRemaining decimal.Decimal
	TotalNet       decimal.Decimal

	CapitalLines  int
	InterestLines int
	VATLines      int
	SavingsLines  int
	SharesLines   int
	ChargesLines  int

	CreatedAt time.Time
}

// SumLines builds the aggregate from per-line allocations.
func SumLines(fileID string, lines []*payroll.SalaryLine) *Result {
	result := &Result{FileID: fileID, LineCount: len(lines), CreatedAt: time.Now().UTC()}
	for _, line := range lines {
		if line == nil {
			continue
		}
		result.TotalCapital = result.TotalCapital.Add(line.Capital)
		result.TotalInterest = result.TotalInterest.Add(line.Interest)
		result.TotalVAT = result.TotalVAT.Add(line.VAT)
		result.TotalSavings = result.TotalSavings.Add(line.Savings)
		result.TotalShares = result.TotalShares.Add(line.Shares)
		result.TotalCharges = result.TotalCharges.Add(line.Charges)
		result.TotalRemaining = result.TotalRemaining.Add(line.RemainingSalary)
		result.TotalNet = result.TotalNet.Add(line.NetSalary)

		if line.Capital.IsPositive() {
			result.CapitalLines++
		}
		if line.Interest.IsPositive() {
			result.InterestLines++
		}
		if line.VAT.IsPositive() {
			result.VATLines++
		}
		if line.Savings.IsPositive() {
			result.SavingsLines++
		}
		if line.Shares.IsPositive() {
			result.SharesLines++
		}
		if line.Charges.IsPositive() {
			result.ChargesLines++
		}
	}
	return result
}
