package application

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/shopspring/decimal"

	allocation "payroll-cloud/internal/allocation/domain"
	"payroll-cloud/internal/observability/metrics"
	payroll "payroll-cloud/internal/payroll/domain"
)

// LoanScheduleSource resolves the amounts due on a member's loan for the
// current run.
type LoanScheduleSource interface {
	DueAmounts(ctx context.Context, matricule, loanRef string) (allocation.DueAmounts, error)
}

// PolicySource resolves the branch contribution policy.
type PolicySource interface {
	Policy(ctx context.Context, branchID string) (allocation.ContributionPolicy, error)
}

// ChargeSource resolves the recurring charges a member owes from salary.
type ChargeSource interface {
	ChargesDue(ctx context.Context, memberID string) (decimal.Decimal, error)
}

// LineStore persists analyzed salary lines.
type LineStore interface {
	InsertBatch(ctx context.Context, lines []*payroll.SalaryLine) error
}

// FileStore transitions the owning file once analysis completes.
type FileStore interface {
	MarkAnalyzed(ctx context.Context, id string, rowCount, branchesExpected int) error
}

// ResultStore persists the per-file allocation aggregate.
type ResultStore interface {
	Save(ctx context.Context, result *allocation.Result) error
}

// Analyzer runs the deduction waterfall over a parsed payroll file. A lookup
// failure fails only the affected line; the line keeps its full net salary in
// the remainder so the sum invariant holds for failed lines too.
type Analyzer struct {
	loans    LoanScheduleSource
	policies PolicySource
	charges  ChargeSource
	lines    LineStore
	files    FileStore
	results  ResultStore
	logger   *log.Logger
}

// NewAnalyzer constructs the analyzer.
func NewAnalyzer(
	loans LoanScheduleSource,
	policies PolicySource,
	charges ChargeSource,
	lines LineStore,
	files FileStore,
	results ResultStore,
	logger *log.Logger,
) (*Analyzer, error) {
	if loans == nil {
		return nil, errors.New("analyzer: nil loan schedule source")
	}
	if policies == nil {
		return nil, errors.New("analyzer: nil policy source")
	}
	if lines == nil {
		return nil, errors.New("analyzer: nil line store")
	}
	if files == nil {
		return nil, errors.New("analyzer: nil file store")
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Analyzer{
		loans:    loans,
		policies: policies,
		charges:  charges,
		lines:    lines,
		files:    files,
		results:  results,
		logger:   logger,
	}, nil
}

// Analyze computes the deduction split for every parsed line, persists the
// lines and the file aggregate, and moves the file to analyzed. Lines whose
// lookups fail are stored as failed with the full net salary as remainder.
func (a *Analyzer) Analyze(ctx context.Context, fileID string, lines []*payroll.SalaryLine) (*allocation.Result, error) {
	start := time.Now()
	result, err := a.analyze(ctx, fileID, lines)
	if err != nil {
		metrics.ObserveAnalyze(metrics.ResultError, time.Since(start))
		return nil, err
	}
	metrics.ObserveAnalyze(metrics.ResultSuccess, time.Since(start))
	return result, nil
}

func (a *Analyzer) analyze(ctx context.Context, fileID string, lines []*payroll.SalaryLine) (*allocation.Result, error) {
	if fileID == "" {
		return nil, errors.New("analyzer: empty file id")
	}
	if len(lines) == 0 {
		return nil, errors.New("analyzer: no lines to analyze")
	}

	policyCache := make(map[string]allocation.ContributionPolicy)
	failed := 0

	for _, line := range lines {
		if line == nil {
			continue
		}
		if err := a.analyzeLine(ctx, line, policyCache); err != nil {
			failLine(line, err)
			failed++
			a.logger.Printf("analyze: file=%s row=%d member=%s failed: %v", fileID, line.RowIndex, line.Matricule, err)
		}
	}

	if err := a.lines.InsertBatch(ctx, lines); err != nil {
		return nil, err
	}

	result := allocation.SumLines(fileID, lines)
	if a.results != nil {
		if err := a.results.Save(ctx, result); err != nil {
			return nil, err
		}
	}

	branches := payroll.Branches(lines)
	if err := a.files.MarkAnalyzed(ctx, fileID, len(lines), len(branches)); err != nil {
		return nil, err
	}

	a.logger.Printf("analyze: file=%s lines=%d failed=%d branches=%d", fileID, len(lines), failed, len(branches))
	return result, nil
}

func (a *Analyzer) analyzeLine(ctx context.Context, line *payroll.SalaryLine, policyCache map[string]allocation.ContributionPolicy) error {
	var due allocation.DueAmounts
	if line.LoanRef != "" {
		amounts, err := a.loans.DueAmounts(ctx, line.Matricule, line.LoanRef)
		if err != nil {
			return err
		}
		due = amounts
	}

	policy, ok := policyCache[line.BranchID]
	if !ok {
		loaded, err := a.policies.Policy(ctx, line.BranchID)
		if err != nil {
			return err
		}
		policy = loaded
		policyCache[line.BranchID] = policy
	}

	chargesDue := decimal.Zero
	if a.charges != nil {
		owed, err := a.charges.ChargesDue(ctx, line.Matricule)
		if err != nil {
			return err
		}
		chargesDue = owed
	}

	split, err := allocation.Allocate(line.NetSalary, due, policy, chargesDue)
	if err != nil {
		return err
	}

	line.Capital = split.Capital
	line.Interest = split.Interest
	line.VAT = split.VAT
	line.Savings = split.Savings
	line.Shares = split.Shares
	line.Charges = split.Charges
	line.RemainingSalary = split.RemainingSalary
	line.Status = payroll.LineStatusPending
	line.FailReason = ""
	return nil
}

// failLine marks a line unprocessable. The full net salary stays in the
// remainder so aggregates over the file still sum to total net.
func failLine(line *payroll.SalaryLine, cause error) {
	line.Capital = decimal.Zero
	line.Interest = decimal.Zero
	line.VAT = decimal.Zero
	line.Savings = decimal.Zero
	line.Shares = decimal.Zero
	line.Charges = decimal.Zero
	line.RemainingSalary = line.NetSalary
	line.Status = payroll.LineStatusFailed
	line.FailReason = cause.Error()
}
