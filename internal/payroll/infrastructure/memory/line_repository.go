package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	payroll "payroll-cloud/internal/payroll/domain"
)

// LineRepository is an in-memory repository for salary lines.
type LineRepository struct {
	mu   sync.RWMutex
	data map[string]*payroll.SalaryLine
}

// NewLineRepository constructs a repository.
func NewLineRepository() *LineRepository {
	return &LineRepository{data: make(map[string]*payroll.SalaryLine)}
}

// InsertBatch stores lines, skipping ids already present.
func (r *LineRepository) InsertBatch(ctx context.Context, lines []*payroll.SalaryLine) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, line := range lines {
		if line == nil || line.ID == "" {
			return errors.New("line repo: invalid line")
		}
		if _, exists := r.data[line.ID]; exists {
			continue
		}
		clone := *line
		r.data[line.ID] = &clone
	}
	return nil
}

// ListByFile returns all lines of a file in row order.
func (r *LineRepository) ListByFile(ctx context.Context, fileID string) ([]*payroll.SalaryLine, error) {
	_ = ctx
	return r.filter(func(line *payroll.SalaryLine) bool {
		return line.FileID == fileID
	}), nil
}

// ListByFileBranch returns all branch lines within a file in row order.
func (r *LineRepository) ListByFileBranch(ctx context.Context, fileID, branchID string) ([]*payroll.SalaryLine, error) {
	_ = ctx
	return r.filter(func(line *payroll.SalaryLine) bool {
		return line.FileID == fileID && line.BranchID == branchID
	}), nil
}

// ListPending returns pending branch lines within a file in row order.
func (r *LineRepository) ListPending(ctx context.Context, fileID, branchID string) ([]*payroll.SalaryLine, error) {
	_ = ctx
	return r.filter(func(line *payroll.SalaryLine) bool {
		return line.FileID == fileID && line.BranchID == branchID && line.Status == payroll.LineStatusPending
	}), nil
}

// MarkPosted transitions pending -> posted once; reports whether it happened.
func (r *LineRepository) MarkPosted(ctx context.Context, id, transactionRef string) (bool, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	line := r.data[id]
	if line == nil || line.Status != payroll.LineStatusPending {
		return false, nil
	}
	line.Status = payroll.LineStatusPosted
	line.TransactionRef = transactionRef
	line.FailReason = ""
	line.PostedAt = time.Now().UTC()
	return true, nil
}

// MarkFailed records a posting failure for a pending line.
func (r *LineRepository) MarkFailed(ctx context.Context, id, reason string) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	line := r.data[id]
	if line == nil || line.Status != payroll.LineStatusPending {
		return nil
	}
	line.Status = payroll.LineStatusFailed
	line.FailReason = reason
	return nil
}

// ResetFailed returns failed lines of a file to pending.
func (r *LineRepository) ResetFailed(ctx context.Context, fileID string) (int64, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, line := range r.data {
		if line.FileID == fileID && line.Status == payroll.LineStatusFailed {
			line.Status = payroll.LineStatusPending
			line.FailReason = ""
			count++
		}
	}
	return count, nil
}

func (r *LineRepository) filter(keep func(*payroll.SalaryLine) bool) []*payroll.SalaryLine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var lines []*payroll.SalaryLine
	for _, line := range r.data {
		if keep(line) {
			clone := *line
			lines = append(lines, &clone)
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].RowIndex < lines[j].RowIndex })
	return lines
}
