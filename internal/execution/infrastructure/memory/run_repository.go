package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	execution "payroll-cloud/internal/execution/domain"
)

// RunRepository is an in-memory branch run store for tests.
type RunRepository struct {
	mu   sync.Mutex
	runs map[string]*execution.BranchRun
}

// NewRunRepository constructs an empty repository.
func NewRunRepository() *RunRepository {
	return &RunRepository{runs: make(map[string]*execution.BranchRun)}
}

func runKey(fileID, branchID string) string {
	return fileID + "|" + branchID
}

// Save upserts the run keyed by (file, branch).
func (r *RunRepository) Save(ctx context.Context, run *execution.BranchRun) error {
	_ = ctx
	if run == nil || run.FileID == "" || run.BranchID == "" {
		return errors.New("run repo: invalid run")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *run
	r.runs[runKey(run.FileID, run.BranchID)] = &copied
	return nil
}

// Complete stores the run only when the branch was not already completed and
// reports whether this call made the transition.
func (r *RunRepository) Complete(ctx context.Context, run *execution.BranchRun) (bool, error) {
	_ = ctx
	if run == nil || run.FileID == "" || run.BranchID == "" {
		return false, errors.New("run repo: invalid run")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.runs[runKey(run.FileID, run.BranchID)]; ok && existing.Status == execution.RunStatusCompleted {
		return false, nil
	}
	copied := *run
	copied.Status = execution.RunStatusCompleted
	r.runs[runKey(run.FileID, run.BranchID)] = &copied
	return true, nil
}

// Get loads the stored run for a (file, branch), nil when none exists.
func (r *RunRepository) Get(ctx context.Context, fileID, branchID string) (*execution.BranchRun, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runKey(fileID, branchID)]
	if !ok {
		return nil, nil
	}
	copied := *run
	return &copied, nil
}

// ListByFile returns all branch runs of a file ordered by branch.
func (r *RunRepository) ListByFile(ctx context.Context, fileID string) ([]*execution.BranchRun, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	var runs []*execution.BranchRun
	for _, run := range r.runs {
		if run.FileID == fileID {
			copied := *run
			runs = append(runs, &copied)
		}
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].BranchID < runs[j].BranchID })
	return runs, nil
}
