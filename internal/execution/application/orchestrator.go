package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"payroll-cloud/internal/audit"
	execution "payroll-cloud/internal/execution/domain"
	ingestion "payroll-cloud/internal/ingestion/domain"
	"payroll-cloud/internal/ledger"
	"payroll-cloud/internal/notify"
	"payroll-cloud/internal/observability/metrics"
	payroll "payroll-cloud/internal/payroll/domain"
)

// LineRepository is the salary line store the orchestrator drives.
type LineRepository interface {
	ListByFile(ctx context.Context, fileID string) ([]*payroll.SalaryLine, error)
	ListPending(ctx context.Context, fileID, branchID string) ([]*payroll.SalaryLine, error)
	MarkPosted(ctx context.Context, id, transactionRef string) (bool, error)
	MarkFailed(ctx context.Context, id, reason string) error
	ResetFailed(ctx context.Context, fileID string) (int64, error)
}

// ClaimStore is the durable posting guard. A line whose claim is already held
// was posted (or is being posted) by another pass and must be skipped.
type ClaimStore interface {
	Claim(ctx context.Context, lineID string) (bool, error)
	Release(ctx context.Context, lineID string) error
}

// RunStore persists branch execution runs for replay. Complete stores the run
// only when the branch was not already completed; the returned bool reports
// whether this call made the transition, so concurrent passes over the same
// branch count it toward file completion exactly once.
type RunStore interface {
	Get(ctx context.Context, fileID, branchID string) (*execution.BranchRun, error)
	Save(ctx context.Context, run *execution.BranchRun) error
	Complete(ctx context.Context, run *execution.BranchRun) (bool, error)
}

// FileRepository exposes the file lifecycle the orchestrator advances.
type FileRepository interface {
	GetByID(ctx context.Context, id string) (*ingestion.UploadedFile, error)
	MarkPartiallyExecuted(ctx context.Context, id string) error
	CompleteBranch(ctx context.Context, id string) (completed, expected int, err error)
}

// Options scope one execution trigger.
type Options struct {
	Actor string
	// Members restricts the pass to the listed matricules. Empty means all.
	Members []string
	// Date is the accounting date; zero means today.
	Date time.Time
}

// Orchestrator runs branch execution passes: it claims each pending line,
// posts its deduction split to the ledger and records the outcome. Posting is
// at most once per line; a failed line never blocks the rest of the branch.
type Orchestrator struct {
	files    FileRepository
	lines    LineRepository
	claims   ClaimStore
	runs     RunStore
	poster   ledger.Poster
	days     ledger.DayChecker
	audit    audit.Logger
	notifier notify.Notifier
	logger   *log.Logger
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithNotifier sends an alert whenever a branch pass leaves failed lines.
func WithNotifier(notifier notify.Notifier) Option {
	return func(o *Orchestrator) {
		if notifier != nil {
			o.notifier = notifier
		}
	}
}

// NewOrchestrator constructs the orchestrator.
func NewOrchestrator(
	files FileRepository,
	lines LineRepository,
	claims ClaimStore,
	runs RunStore,
	poster ledger.Poster,
	days ledger.DayChecker,
	auditLog audit.Logger,
	logger *log.Logger,
	opts ...Option,
) (*Orchestrator, error) {
	if files == nil {
		return nil, errors.New("orchestrator: nil file repository")
	}
	if lines == nil {
		return nil, errors.New("orchestrator: nil line repository")
	}
	if claims == nil {
		return nil, errors.New("orchestrator: nil claim store")
	}
	if runs == nil {
		return nil, errors.New("orchestrator: nil run store")
	}
	if poster == nil {
		return nil, errors.New("orchestrator: nil poster")
	}
	if days == nil {
		return nil, errors.New("orchestrator: nil day checker")
	}
	if logger == nil {
		logger = log.Default()
	}

	o := &Orchestrator{
		files:  files,
		lines:  lines,
		claims: claims,
		runs:   runs,
		poster: poster,
		days:   days,
		audit:  auditLog,
		logger: logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Execute runs one posting pass for a branch of an analyzed file.
// Re-triggering a cleanly completed branch replays the stored summary without
// touching the ledger.
func (o *Orchestrator) Execute(ctx context.Context, fileID, branchID string, opts Options) (execution.Summary, error) {
	start := time.Now()
	summary, err := o.execute(ctx, fileID, branchID, opts)
	if err != nil {
		metrics.ObserveBranchExecution(metrics.ResultError, time.Since(start))
		return summary, err
	}
	metrics.ObserveBranchExecution(metrics.ResultSuccess, time.Since(start))
	return summary, nil
}

func (o *Orchestrator) execute(ctx context.Context, fileID, branchID string, opts Options) (execution.Summary, error) {
	if fileID == "" || branchID == "" {
		return execution.Summary{}, errors.New("orchestrator: empty file or branch id")
	}

	file, err := o.files.GetByID(ctx, fileID)
	if err != nil {
		return execution.Summary{}, err
	}
	if file == nil || file.Deleted() {
		return execution.Summary{}, fmt.Errorf("orchestrator: file %s not found", fileID)
	}
	switch file.Status {
	case ingestion.FileStatusAnalyzed, ingestion.FileStatusPartiallyExecuted, ingestion.FileStatusExecuted:
	default:
		return execution.Summary{}, execution.ErrFileNotReady
	}

	prior, err := o.runs.Get(ctx, fileID, branchID)
	if err != nil {
		return execution.Summary{}, err
	}
	if prior != nil && prior.Status == execution.RunStatusCompleted {
		o.logger.Printf("execute: file=%s branch=%s replayed prior run", fileID, branchID)
		return prior.Summary, nil
	}

	date := opts.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}
	open, err := o.days.IsOpen(ctx, branchID, date)
	if err != nil {
		return execution.Summary{}, err
	}
	if !open {
		return execution.Summary{}, ledger.ErrAccountingDayClosed
	}

	pendingAll, err := o.lines.ListPending(ctx, fileID, branchID)
	if err != nil {
		return execution.Summary{}, err
	}
	pending := filterMembers(pendingAll, opts.Members)

	var summary execution.Summary
	aborted := false

	if len(pendingAll) == 0 && prior == nil {
		// First trigger for a branch with nothing pending: either the branch
		// has no lines at all, or earlier processing left every line terminal.
		// Fold the terminal outcomes into the summary so an all-posted branch
		// still counts toward file completion.
		terminal, err := o.branchLines(ctx, fileID, branchID)
		if err != nil {
			return execution.Summary{}, err
		}
		if len(terminal) == 0 {
			return execution.Summary{}, execution.ErrNoBranchLines
		}
		summary.Lines = len(terminal)
		for _, line := range terminal {
			switch line.Status {
			case payroll.LineStatusPosted:
				summary.AddPosted(line.Capital, line.Interest, line.VAT, line.Savings, line.Shares, line.Charges)
			case payroll.LineStatusFailed:
				summary.AddFailure(line.ID, line.RowIndex, line.FailReason)
			}
		}
	} else {
		if len(pending) == 0 && prior == nil {
			return execution.Summary{}, execution.ErrNoBranchLines
		}
		summary.Lines = len(pending)

		for _, line := range pending {
			if err := ctx.Err(); err != nil {
				aborted = true
				break
			}
			outcome, err := o.postLine(ctx, line, date)
			switch {
			case err == nil:
				// outcome already recorded on summary below
			case errors.Is(err, ledger.ErrAccountingDayClosed):
				// The day closed mid-run. Remaining lines stay pending for the
				// next pass.
				summary.AddFailure(line.ID, line.RowIndex, err.Error())
				aborted = true
			default:
				summary.AddFailure(line.ID, line.RowIndex, err.Error())
			}
			switch outcome {
			case outcomePosted:
				summary.AddPosted(line.Capital, line.Interest, line.VAT, line.Savings, line.Shares, line.Charges)
			case outcomeSkipped:
				summary.Skipped++
			}
			if aborted {
				break
			}
		}
	}

	status := execution.RunStatusPartial
	if !aborted && summary.Failed == 0 {
		// A member-filtered pass may leave unselected lines pending; the
		// branch only completes once nothing is left to post.
		remaining, err := o.lines.ListPending(ctx, fileID, branchID)
		if err != nil {
			return summary, err
		}
		if len(remaining) == 0 {
			status = execution.RunStatusCompleted
		}
	}
	run := &execution.BranchRun{
		ID:       "run-" + uuid.NewString(),
		FileID:   fileID,
		BranchID: branchID,
		Status:   status,
		Summary:  summary,
		RunBy:    opts.Actor,
		RunAt:    time.Now().UTC(),
	}
	if status == execution.RunStatusCompleted {
		// Only the pass that transitions the run to completed may advance the
		// file's branch counter; a concurrent pass over the same branch loses
		// the conditional store and must not increment it again.
		won, err := o.runs.Complete(ctx, run)
		if err != nil {
			return summary, err
		}
		if !won {
			o.logger.Printf("execute: file=%s branch=%s completed by a concurrent pass", fileID, branchID)
			return summary, nil
		}
		completed, expected, err := o.files.CompleteBranch(ctx, fileID)
		if err != nil {
			return summary, err
		}
		o.logger.Printf("execute: file=%s branch=%s completed (%d/%d branches)", fileID, branchID, completed, expected)
	} else {
		if err := o.runs.Save(ctx, run); err != nil {
			return summary, err
		}
		if summary.Posted > 0 {
			// A partial pass that reached the ledger leaves the file between
			// analyzed and executed.
			if err := o.files.MarkPartiallyExecuted(ctx, fileID); err != nil {
				return summary, err
			}
		}
		o.logger.Printf("execute: file=%s branch=%s partial posted=%d failed=%d skipped=%d",
			fileID, branchID, summary.Posted, summary.Failed, summary.Skipped)
	}

	if o.notifier != nil && summary.Failed > 0 {
		reason := ""
		if len(summary.Failures) > 0 {
			reason = summary.Failures[0].Reason
		}
		if err := o.notifier.Notify(ctx, notify.AlertMessage{
			FileID:   fileID,
			BranchID: branchID,
			Date:     date.Format("2006-01-02"),
			Failed:   summary.Failed,
			Skipped:  summary.Skipped,
			Reason:   reason,
		}); err != nil {
			o.logger.Printf("execute: notify: %v", err)
		}
	}

	o.recordAudit(ctx, fileID, branchID, opts.Actor, summary)
	return summary, nil
}

type postOutcome int

const (
	outcomeFailed postOutcome = iota
	outcomePosted
	outcomeSkipped
)

// postLine posts a single line under its claim. The claim is released only on
// failure; a posted line keeps its claim forever.
func (o *Orchestrator) postLine(ctx context.Context, line *payroll.SalaryLine, date time.Time) (postOutcome, error) {
	start := time.Now()

	claimed, err := o.claims.Claim(ctx, line.ID)
	if err != nil {
		return outcomeFailed, err
	}
	if !claimed {
		metrics.ObserveLinePosting(metrics.PostingSkipped, time.Since(start))
		return outcomeSkipped, nil
	}

	req := buildPostRequest(line, date)
	transactionRef := ""
	if len(req.Lines) > 0 {
		transactionRef, err = o.poster.Post(ctx, req)
		if err != nil {
			if releaseErr := o.claims.Release(ctx, line.ID); releaseErr != nil {
				o.logger.Printf("execute: release claim %s: %v", line.ID, releaseErr)
			}
			if markErr := o.lines.MarkFailed(ctx, line.ID, err.Error()); markErr != nil {
				o.logger.Printf("execute: mark failed %s: %v", line.ID, markErr)
			}
			metrics.ObserveLinePosting(metrics.PostingFailed, time.Since(start))
			return outcomeFailed, err
		}
	}

	ok, err := o.lines.MarkPosted(ctx, line.ID, transactionRef)
	if err != nil {
		return outcomeFailed, err
	}
	if !ok {
		metrics.ObserveLinePosting(metrics.PostingSkipped, time.Since(start))
		return outcomeSkipped, nil
	}
	metrics.ObserveLinePosting(metrics.PostingPosted, time.Since(start))
	return outcomePosted, nil
}

// buildPostRequest maps a line's positive deduction categories to ledger
// posting lines. The remainder is never posted; it stays with the employer.
func buildPostRequest(line *payroll.SalaryLine, date time.Time) ledger.PostRequest {
	req := ledger.PostRequest{
		SourceID:       line.ID,
		MemberID:       line.Matricule,
		BranchID:       line.BranchID,
		AccountingDate: date,
		Purpose:        "salary deduction",
	}
	add := func(category string, amount decimal.Decimal) {
		if amount.IsPositive() {
			req.Lines = append(req.Lines, ledger.PostLine{Category: category, Amount: amount})
		}
	}
	add(ledger.CategoryCapital, line.Capital)
	add(ledger.CategoryInterest, line.Interest)
	add(ledger.CategoryVAT, line.VAT)
	add(ledger.CategorySavings, line.Savings)
	add(ledger.CategoryShares, line.Shares)
	add(ledger.CategoryCharges, line.Charges)
	return req
}

// ExecuteAll triggers one pass per branch of the file concurrently and
// returns the per-branch summaries.
func (o *Orchestrator) ExecuteAll(ctx context.Context, fileID string, opts Options) (map[string]execution.Summary, error) {
	lines, err := o.lines.ListByFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	branches := payroll.Branches(lines)
	if len(branches) == 0 {
		return nil, execution.ErrNoBranchLines
	}

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		summaries = make(map[string]execution.Summary, len(branches))
		errs      []error
	)
	for _, branch := range branches {
		wg.Add(1)
		go func(branch string) {
			defer wg.Done()
			summary, err := o.Execute(ctx, fileID, branch, opts)
			mu.Lock()
			defer mu.Unlock()
			summaries[branch] = summary
			if err != nil {
				errs = append(errs, fmt.Errorf("branch %s: %w", branch, err))
			}
		}(branch)
	}
	wg.Wait()

	return summaries, errors.Join(errs...)
}

// Retry returns failed lines of a file to pending so a new pass can claim
// them again.
func (o *Orchestrator) Retry(ctx context.Context, fileID string) (int64, error) {
	reset, err := o.lines.ResetFailed(ctx, fileID)
	if err != nil {
		return 0, err
	}
	o.logger.Printf("execute: file=%s reset %d failed lines", fileID, reset)
	return reset, nil
}

func (o *Orchestrator) recordAudit(ctx context.Context, fileID, branchID, actor string, summary execution.Summary) {
	if o.audit == nil {
		return
	}
	meta, _ := json.Marshal(map[string]any{
		"posted":  summary.Posted,
		"failed":  summary.Failed,
		"skipped": summary.Skipped,
	})
	entry := audit.Entry{
		ID:           audit.NewID(),
		Actor:        actor,
		Action:       "branch_execute",
		ResourceType: "payroll_file",
		ResourceID:   fileID,
		BranchID:     branchID,
		Metadata:     meta,
		CreatedAt:    time.Now().UTC(),
	}
	if err := o.audit.Log(ctx, entry); err != nil {
		o.logger.Printf("execute: audit log: %v", err)
	}
}

// branchLines returns every line of the file belonging to the branch.
func (o *Orchestrator) branchLines(ctx context.Context, fileID, branchID string) ([]*payroll.SalaryLine, error) {
	all, err := o.lines.ListByFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	var lines []*payroll.SalaryLine
	for _, line := range all {
		if line != nil && line.BranchID == branchID {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func filterMembers(lines []*payroll.SalaryLine, members []string) []*payroll.SalaryLine {
	if len(members) == 0 {
		return lines
	}
	allowed := make(map[string]struct{}, len(members))
	for _, member := range members {
		allowed[member] = struct{}{}
	}
	filtered := lines[:0:0]
	for _, line := range lines {
		if _, ok := allowed[line.Matricule]; ok {
			filtered = append(filtered, line)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].RowIndex < filtered[j].RowIndex })
	return filtered
}
