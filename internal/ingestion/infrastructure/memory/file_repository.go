package memory

import (
	"context"
	"sync"
	"time"

	ingestion "payroll-cloud/internal/ingestion/domain"
)

// FileRepository is an in-memory repository for uploaded files.
type FileRepository struct {
	mu   sync.RWMutex
	data map[string]*ingestion.UploadedFile
}

// NewFileRepository constructs a repository.
func NewFileRepository() *FileRepository {
	return &FileRepository{data: make(map[string]*ingestion.UploadedFile)}
}

// Create inserts a record.
func (r *FileRepository) Create(ctx context.Context, file *ingestion.UploadedFile) error {
	_ = ctx
	if file == nil || file.ID == "" {
		return ingestion.ErrFileNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *file
	r.data[file.ID] = &clone
	return nil
}

// GetByID loads a record.
func (r *FileRepository) GetByID(ctx context.Context, id string) (*ingestion.UploadedFile, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	file := r.data[id]
	if file == nil {
		return nil, nil
	}
	clone := *file
	return &clone, nil
}

// FindByHash returns the live record with the given hash.
func (r *FileRepository) FindByHash(ctx context.Context, hash string) (*ingestion.UploadedFile, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, file := range r.data {
		if file.ContentHash == hash && file.DeletedAt.IsZero() {
			clone := *file
			return &clone, nil
		}
	}
	return nil, nil
}

// UpdateStatus sets status and failure reason.
func (r *FileRepository) UpdateStatus(ctx context.Context, id, status, failReason string) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	file := r.data[id]
	if file == nil {
		return ingestion.ErrFileNotFound
	}
	file.Status = status
	file.FailReason = failReason
	file.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkAnalyzed records counts and moves the file to analyzed.
func (r *FileRepository) MarkAnalyzed(ctx context.Context, id string, rowCount, branchesExpected int) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	file := r.data[id]
	if file == nil {
		return ingestion.ErrFileNotFound
	}
	file.Status = ingestion.FileStatusAnalyzed
	file.RowCount = rowCount
	file.BranchesExpected = branchesExpected
	file.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkPartiallyExecuted moves an analyzed file to partially_executed.
func (r *FileRepository) MarkPartiallyExecuted(ctx context.Context, id string) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	file := r.data[id]
	if file == nil {
		return ingestion.ErrFileNotFound
	}
	if file.Status == ingestion.FileStatusAnalyzed {
		file.Status = ingestion.FileStatusPartiallyExecuted
		file.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// CompleteBranch increments the completed-branch counter under the lock.
func (r *FileRepository) CompleteBranch(ctx context.Context, id string) (completed, expected int, err error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	file := r.data[id]
	if file == nil {
		return 0, 0, ingestion.ErrFileNotFound
	}
	if file.BranchesCompleted < file.BranchesExpected {
		file.BranchesCompleted++
		if file.BranchesCompleted >= file.BranchesExpected {
			file.Status = ingestion.FileStatusExecuted
		} else {
			file.Status = ingestion.FileStatusPartiallyExecuted
		}
		file.UpdatedAt = time.Now().UTC()
	}
	return file.BranchesCompleted, file.BranchesExpected, nil
}

// SoftDelete marks a record deleted.
func (r *FileRepository) SoftDelete(ctx context.Context, id string) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	file := r.data[id]
	if file == nil {
		return ingestion.ErrFileNotFound
	}
	if file.DeletedAt.IsZero() {
		file.DeletedAt = time.Now().UTC()
	}
	return nil
}

// Count returns the number of live records.
func (r *FileRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, file := range r.data {
		if file.DeletedAt.IsZero() {
			count++
		}
	}
	return count
}
