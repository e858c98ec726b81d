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

	execution "payroll-cloud/internal/execution/domain"
	"payroll-cloud/internal/execution/infrastructure/memory"
	ingestion "payroll-cloud/internal/ingestion/domain"
	"payroll-cloud/internal/ledger"
	payroll "payroll-cloud/internal/payroll/domain"
)

type stubFileRepo struct {
	mu   sync.Mutex
	file *ingestion.UploadedFile
}

func (s *stubFileRepo) GetByID(ctx context.Context, id string) (*ingestion.UploadedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil || s.file.ID != id {
		return nil, nil
	}
	copied := *s.file
	return &copied, nil
}

func (s *stubFileRepo) CompleteBranch(ctx context.Context, id string) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file.BranchesCompleted < s.file.BranchesExpected {
		s.file.BranchesCompleted++
	}
	if s.file.BranchesCompleted >= s.file.BranchesExpected {
		s.file.Status = ingestion.FileStatusExecuted
	} else {
		s.file.Status = ingestion.FileStatusPartiallyExecuted
	}
	return s.file.BranchesCompleted, s.file.BranchesExpected, nil
}

func (s *stubFileRepo) MarkPartiallyExecuted(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file.Status == ingestion.FileStatusAnalyzed {
		s.file.Status = ingestion.FileStatusPartiallyExecuted
	}
	return nil
}

func (s *stubFileRepo) status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Status
}

func (s *stubFileRepo) completedBranches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.BranchesCompleted
}

type stubLineRepo struct {
	mu    sync.Mutex
	lines []*payroll.SalaryLine
}

func (s *stubLineRepo) ListByFile(ctx context.Context, fileID string) ([]*payroll.SalaryLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*payroll.SalaryLine
	for _, line := range s.lines {
		if line.FileID == fileID {
			copied := *line
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *stubLineRepo) ListPending(ctx context.Context, fileID, branchID string) ([]*payroll.SalaryLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*payroll.SalaryLine
	for _, line := range s.lines {
		if line.FileID == fileID && line.BranchID == branchID && line.Status == payroll.LineStatusPending {
			copied := *line
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *stubLineRepo) MarkPosted(ctx context.Context, id, transactionRef string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, line := range s.lines {
		if line.ID == id && line.Status == payroll.LineStatusPending {
			line.Status = payroll.LineStatusPosted
			line.TransactionRef = transactionRef
			return true, nil
		}
	}
	return false, nil
}

func (s *stubLineRepo) MarkFailed(ctx context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, line := range s.lines {
		if line.ID == id && line.Status == payroll.LineStatusPending {
			line.Status = payroll.LineStatusFailed
			line.FailReason = reason
		}
	}
	return nil
}

func (s *stubLineRepo) ResetFailed(ctx context.Context, fileID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var reset int64
	for _, line := range s.lines {
		if line.FileID == fileID && line.Status == payroll.LineStatusFailed {
			line.Status = payroll.LineStatusPending
			line.FailReason = ""
			reset++
		}
	}
	return reset, nil
}

func (s *stubLineRepo) status(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, line := range s.lines {
		if line.ID == id {
			return line.Status
		}
	}
	return ""
}

type stubPoster struct {
	mu      sync.Mutex
	calls   int
	failFor map[string]bool
}

func (s *stubPoster) Post(ctx context.Context, req ledger.PostRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failFor[req.SourceID] {
		return "", errors.New("ledger rejected posting")
	}
	return fmt.Sprintf("tx-%d", s.calls), nil
}

func (s *stubPoster) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubDayChecker struct {
	closed bool
}

func (s *stubDayChecker) IsOpen(ctx context.Context, branchID string, date time.Time) (bool, error) {
	return !s.closed, nil
}

func pendingLine(id, branch, matricule, capital string) *payroll.SalaryLine {
	net := decimal.RequireFromString("100000")
	cap := decimal.RequireFromString(capital)
	return &payroll.SalaryLine{
		ID:              id,
		FileID:          "file-1",
		Matricule:       matricule,
		BranchID:        branch,
		NetSalary:       net,
		Capital:         cap,
		RemainingSalary: net.Sub(cap),
		Status:          payroll.LineStatusPending,
	}
}

type fixture struct {
	files  *stubFileRepo
	lines  *stubLineRepo
	claims *memory.ClaimRepository
	runs   *memory.RunRepository
	poster *stubPoster
	days   *stubDayChecker
	orch   *Orchestrator
}

func newFixture(t *testing.T, branchesExpected int, lines ...*payroll.SalaryLine) *fixture {
	t.Helper()
	f := &fixture{
		files: &stubFileRepo{file: &ingestion.UploadedFile{
			ID:               "file-1",
			Status:           ingestion.FileStatusAnalyzed,
			BranchesExpected: branchesExpected,
		}},
		lines:  &stubLineRepo{lines: lines},
		claims: memory.NewClaimRepository(),
		runs:   memory.NewRunRepository(),
		poster: &stubPoster{},
		days:   &stubDayChecker{},
	}
	orch, err := NewOrchestrator(f.files, f.lines, f.claims, f.runs, f.poster, f.days, nil, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	f.orch = orch
	return f
}

func TestExecutePostsPendingLines(t *testing.T) {
	f := newFixture(t, 1,
		pendingLine("file-1:r2", "B1", "M-1", "60000"),
		pendingLine("file-1:r3", "B1", "M-2", "40000"),
		pendingLine("file-1:r4", "B1", "M-3", "20000"),
	)

	summary, err := f.orch.Execute(context.Background(), "file-1", "B1", Options{Actor: "ops"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if summary.Posted != 3 || summary.Failed != 0 || summary.Skipped != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if !summary.TotalCapital.Equal(decimal.RequireFromString("120000")) {
		t.Fatalf("capital total: got %s", summary.TotalCapital)
	}
	if f.poster.callCount() != 3 {
		t.Fatalf("expected 3 ledger posts, got %d", f.poster.callCount())
	}
	if got := f.lines.status("file-1:r2"); got != payroll.LineStatusPosted {
		t.Fatalf("line not posted: %s", got)
	}
	if f.files.status() != ingestion.FileStatusExecuted {
		t.Fatalf("single-branch file must be executed, got %s", f.files.status())
	}
}

func TestExecuteReplayDoesNotRepost(t *testing.T) {
	f := newFixture(t, 1,
		pendingLine("file-1:r2", "B1", "M-1", "60000"),
		pendingLine("file-1:r3", "B1", "M-2", "40000"),
	)

	first, err := f.orch.Execute(context.Background(), "file-1", "B1", Options{})
	if err != nil {
		t.Fatalf("first execute: %v", err)
	}
	callsAfterFirst := f.poster.callCount()

	second, err := f.orch.Execute(context.Background(), "file-1", "B1", Options{})
	if err != nil {
		t.Fatalf("replay execute: %v", err)
	}
	if f.poster.callCount() != callsAfterFirst {
		t.Fatalf("replay must not touch the ledger: %d posts", f.poster.callCount()-callsAfterFirst)
	}
	if second.Posted != first.Posted {
		t.Fatalf("replay summary mismatch: %+v vs %+v", second, first)
	}
}

func TestExecutePartialFailureIsolation(t *testing.T) {
	f := newFixture(t, 1,
		pendingLine("file-1:r2", "B1", "M-1", "60000"),
		pendingLine("file-1:r3", "B1", "M-2", "40000"),
		pendingLine("file-1:r4", "B1", "M-3", "20000"),
	)
	f.poster.failFor = map[string]bool{"file-1:r3": true}

	summary, err := f.orch.Execute(context.Background(), "file-1", "B1", Options{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if summary.Posted != 2 || summary.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if got := f.lines.status("file-1:r3"); got != payroll.LineStatusFailed {
		t.Fatalf("expected failed line, got %s", got)
	}
	if got := f.lines.status("file-1:r4"); got != payroll.LineStatusPosted {
		t.Fatalf("failure must not block later lines, got %s", got)
	}
	if f.claims.Held("file-1:r3") {
		t.Fatalf("failed line claim must be released for retry")
	}
	if got := f.files.status(); got != ingestion.FileStatusPartiallyExecuted {
		t.Fatalf("file status after partial pass: got %q, want %q", got, ingestion.FileStatusPartiallyExecuted)
	}

	run, err := f.runs.Get(context.Background(), "file-1", "B1")
	if err != nil || run == nil {
		t.Fatalf("expected stored run, err=%v", err)
	}
	if run.Status != execution.RunStatusPartial {
		t.Fatalf("expected partial run, got %s", run.Status)
	}
}

func TestExecuteRetryAfterFailure(t *testing.T) {
	f := newFixture(t, 1,
		pendingLine("file-1:r2", "B1", "M-1", "60000"),
	)
	f.poster.failFor = map[string]bool{"file-1:r2": true}

	if _, err := f.orch.Execute(context.Background(), "file-1", "B1", Options{}); err != nil {
		t.Fatalf("first execute: %v", err)
	}

	reset, err := f.orch.Retry(context.Background(), "file-1")
	if err != nil || reset != 1 {
		t.Fatalf("retry: reset=%d err=%v", reset, err)
	}
	f.poster.failFor = nil

	summary, err := f.orch.Execute(context.Background(), "file-1", "B1", Options{})
	if err != nil {
		t.Fatalf("second execute: %v", err)
	}
	if summary.Posted != 1 {
		t.Fatalf("expected retried line posted, got %+v", summary)
	}
	if got := f.lines.status("file-1:r2"); got != payroll.LineStatusPosted {
		t.Fatalf("line status after retry: %s", got)
	}
}

func TestExecuteDayClosed(t *testing.T) {
	f := newFixture(t, 1, pendingLine("file-1:r2", "B1", "M-1", "60000"))
	f.days.closed = true

	if _, err := f.orch.Execute(context.Background(), "file-1", "B1", Options{}); !errors.Is(err, ledger.ErrAccountingDayClosed) {
		t.Fatalf("expected closed day error, got %v", err)
	}
	if f.poster.callCount() != 0 {
		t.Fatalf("closed day must not reach the ledger")
	}
	if got := f.lines.status("file-1:r2"); got != payroll.LineStatusPending {
		t.Fatalf("line must stay pending, got %s", got)
	}
}

func TestExecuteSkipsClaimedLines(t *testing.T) {
	f := newFixture(t, 1,
		pendingLine("file-1:r2", "B1", "M-1", "60000"),
		pendingLine("file-1:r3", "B1", "M-2", "40000"),
	)
	if _, err := f.claims.Claim(context.Background(), "file-1:r2"); err != nil {
		t.Fatalf("pre-claim: %v", err)
	}

	summary, err := f.orch.Execute(context.Background(), "file-1", "B1", Options{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if summary.Posted != 1 || summary.Skipped != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if f.poster.callCount() != 1 {
		t.Fatalf("claimed line must not be posted again, got %d posts", f.poster.callCount())
	}
}

func TestExecuteMemberFilter(t *testing.T) {
	f := newFixture(t, 1,
		pendingLine("file-1:r2", "B1", "M-1", "60000"),
		pendingLine("file-1:r3", "B1", "M-2", "40000"),
	)

	summary, err := f.orch.Execute(context.Background(), "file-1", "B1", Options{Members: []string{"M-2"}})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if summary.Posted != 1 {
		t.Fatalf("expected one filtered posting, got %+v", summary)
	}
	if got := f.lines.status("file-1:r2"); got != payroll.LineStatusPending {
		t.Fatalf("unselected member must stay pending, got %s", got)
	}
}

func TestExecuteAllCompletesFile(t *testing.T) {
	f := newFixture(t, 2,
		pendingLine("file-1:r2", "B1", "M-1", "60000"),
		pendingLine("file-1:r3", "B2", "M-2", "40000"),
		pendingLine("file-1:r4", "B2", "M-3", "20000"),
	)

	summaries, err := f.orch.ExecuteAll(context.Background(), "file-1", Options{})
	if err != nil {
		t.Fatalf("execute all: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 branch summaries, got %d", len(summaries))
	}
	if summaries["B1"].Posted != 1 || summaries["B2"].Posted != 2 {
		t.Fatalf("unexpected summaries: %+v", summaries)
	}
	if f.files.status() != ingestion.FileStatusExecuted {
		t.Fatalf("expected executed file, got %s", f.files.status())
	}
}

// lostCompletionRunStore simulates a concurrent pass over the same branch
// winning the completion transition first.
type lostCompletionRunStore struct {
	*memory.RunRepository
}

func (s *lostCompletionRunStore) Complete(ctx context.Context, run *execution.BranchRun) (bool, error) {
	return false, nil
}

func TestExecuteConcurrentCompletionCountsOnce(t *testing.T) {
	f := newFixture(t, 2,
		pendingLine("file-1:r2", "B1", "M-1", "60000"),
		pendingLine("file-1:r3", "B2", "M-2", "40000"),
	)
	runs := &lostCompletionRunStore{RunRepository: f.runs}
	orch, err := NewOrchestrator(f.files, f.lines, f.claims, runs, f.poster, f.days, nil, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}

	summary, err := orch.Execute(context.Background(), "file-1", "B1", Options{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if summary.Posted != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if got := f.files.completedBranches(); got != 0 {
		t.Fatalf("losing pass must not advance the branch counter, got %d", got)
	}
	if f.files.status() == ingestion.FileStatusExecuted {
		t.Fatalf("file must not be executed while branch B2 is pending")
	}
}

func TestExecuteCompletesBranchWithAllLinesPosted(t *testing.T) {
	line := pendingLine("file-1:r2", "B1", "M-1", "60000")
	line.Status = payroll.LineStatusPosted
	f := newFixture(t, 1, line)

	summary, err := f.orch.Execute(context.Background(), "file-1", "B1", Options{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if summary.Posted != 1 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if f.poster.callCount() != 0 {
		t.Fatalf("already-posted lines must not reach the ledger")
	}
	if f.files.status() != ingestion.FileStatusExecuted {
		t.Fatalf("all-posted branch must count toward completion, got %s", f.files.status())
	}
}

func TestExecuteReportsAllFailedBranchWithoutError(t *testing.T) {
	line := pendingLine("file-1:r2", "B1", "M-1", "60000")
	line.Status = payroll.LineStatusFailed
	line.FailReason = "loan schedule lookup failed"
	f := newFixture(t, 1, line)

	summary, err := f.orch.Execute(context.Background(), "file-1", "B1", Options{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if summary.Failed != 1 || summary.Posted != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	run, err := f.runs.Get(context.Background(), "file-1", "B1")
	if err != nil || run == nil {
		t.Fatalf("expected stored run, err=%v", err)
	}
	if run.Status != execution.RunStatusPartial {
		t.Fatalf("expected partial run, got %s", run.Status)
	}
	if f.files.status() != ingestion.FileStatusAnalyzed {
		t.Fatalf("no posting happened, file must stay analyzed, got %s", f.files.status())
	}
}

func TestExecuteRejectsUnknownBranch(t *testing.T) {
	f := newFixture(t, 1, pendingLine("file-1:r2", "B1", "M-1", "60000"))

	if _, err := f.orch.Execute(context.Background(), "file-1", "B9", Options{}); !errors.Is(err, execution.ErrNoBranchLines) {
		t.Fatalf("expected no-branch-lines error, got %v", err)
	}
}

func TestExecuteRejectsUnanalyzedFile(t *testing.T) {
	f := newFixture(t, 1, pendingLine("file-1:r2", "B1", "M-1", "60000"))
	f.files.file.Status = ingestion.FileStatusExtracted

	if _, err := f.orch.Execute(context.Background(), "file-1", "B1", Options{}); !errors.Is(err, execution.ErrFileNotReady) {
		t.Fatalf("expected not-ready error, got %v", err)
	}
}
