package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	ingestion "payroll-cloud/internal/ingestion/domain"
)

const defaultFileTable = "uploaded_files"

// FileRepository is a Postgres implementation for uploaded payroll files.
type FileRepository struct {
	db    *sql.DB
	table string
}

// NewFileRepository constructs a repository.
func NewFileRepository(db *sql.DB, opts ...FileOption) *FileRepository {
	repo := &FileRepository{db: db, table: defaultFileTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// FileOption configures the repository.
type FileOption func(*FileRepository)

// WithFileTable overrides the table name.
func WithFileTable(table string) FileOption {
	return func(repo *FileRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Create inserts a new uploaded file record.
func (r *FileRepository) Create(ctx context.Context, file *ingestion.UploadedFile) error {
	if r == nil || r.db == nil {
		return errors.New("file repo: nil db")
	}
	if file == nil || file.ID == "" {
		return errors.New("file repo: invalid file")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, name, storage_path, content_hash, category, status, fail_reason,
	row_count, branches_expected, branches_completed, uploaded_by, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`, r.table)
	_, err := r.db.ExecContext(ctx, query,
		file.ID, file.Name, file.StoragePath, file.ContentHash, file.Category, file.Status, file.FailReason,
		file.RowCount, file.BranchesExpected, file.BranchesCompleted, file.UploadedBy, file.CreatedAt, file.UpdatedAt)
	return err
}

// GetByID loads a file by id, deleted files included.
func (r *FileRepository) GetByID(ctx context.Context, id string) (*ingestion.UploadedFile, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("file repo: nil db")
	}
	if id == "" {
		return nil, errors.New("file repo: empty id")
	}
	query := fmt.Sprintf(`
SELECT id, name, storage_path, content_hash, category, status, fail_reason,
	row_count, branches_expected, branches_completed, uploaded_by, created_at, updated_at, deleted_at
FROM %s WHERE id = $1`, r.table)
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// FindByHash loads the live file with the given content hash, if any.
func (r *FileRepository) FindByHash(ctx context.Context, hash string) (*ingestion.UploadedFile, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("file repo: nil db")
	}
	if hash == "" {
		return nil, errors.New("file repo: empty hash")
	}
	query := fmt.Sprintf(`
SELECT id, name, storage_path, content_hash, category, status, fail_reason,
	row_count, branches_expected, branches_completed, uploaded_by, created_at, updated_at, deleted_at
FROM %s WHERE content_hash = $1 AND deleted_at IS NULL
LIMIT 1`, r.table)
	return r.scanOne(r.db.QueryRowContext(ctx, query, hash))
}

// UpdateStatus sets the processing status and optional failure reason.
func (r *FileRepository) UpdateStatus(ctx context.Context, id, status, failReason string) error {
	if r == nil || r.db == nil {
		return errors.New("file repo: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s SET status = $2, fail_reason = $3, updated_at = $4 WHERE id = $1`, r.table)
	_, err := r.db.ExecContext(ctx, query, id, status, failReason, time.Now().UTC())
	return err
}

// MarkAnalyzed records row count and the number of branches present in the file.
func (r *FileRepository) MarkAnalyzed(ctx context.Context, id string, rowCount, branchesExpected int) error {
	if r == nil || r.db == nil {
		return errors.New("file repo: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s SET status = $2, row_count = $3, branches_expected = $4, updated_at = $5
WHERE id = $1`, r.table)
	_, err := r.db.ExecContext(ctx, query, id, ingestion.FileStatusAnalyzed, rowCount, branchesExpected, time.Now().UTC())
	return err
}

// MarkPartiallyExecuted moves an analyzed file to partially_executed once a
// posting pass reached the ledger. Files already past analyzed keep their
// status.
func (r *FileRepository) MarkPartiallyExecuted(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("file repo: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`, r.table)
	_, err := r.db.ExecContext(ctx, query, id,
		ingestion.FileStatusPartiallyExecuted, time.Now().UTC(), ingestion.FileStatusAnalyzed)
	return err
}

// CompleteBranch atomically increments the completed-branch counter, never past
// the expected count, and moves the file status forward. Returns the counter
// values after the update.
func (r *FileRepository) CompleteBranch(ctx context.Context, id string) (completed, expected int, err error) {
	if r == nil || r.db == nil {
		return 0, 0, errors.New("file repo: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s SET
	branches_completed = branches_completed + 1,
	status = CASE WHEN branches_completed + 1 >= branches_expected THEN $2 ELSE $3 END,
	updated_at = $4
WHERE id = $1 AND branches_completed < branches_expected
RETURNING branches_completed, branches_expected`, r.table)
	row := r.db.QueryRowContext(ctx, query, id,
		ingestion.FileStatusExecuted, ingestion.FileStatusPartiallyExecuted, time.Now().UTC())
	if scanErr := row.Scan(&completed, &expected); scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			// Counter already at expected; report current values without moving it.
			current, getErr := r.GetByID(ctx, id)
			if getErr != nil {
				return 0, 0, getErr
			}
			if current == nil {
				return 0, 0, ingestion.ErrFileNotFound
			}
			return current.BranchesCompleted, current.BranchesExpected, nil
		}
		return 0, 0, scanErr
	}
	return completed, expected, nil
}

// SoftDelete marks a file deleted; the hash index ignores deleted files.
func (r *FileRepository) SoftDelete(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("file repo: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`, r.table)
	_, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	return err
}

func (r *FileRepository) scanOne(row *sql.Row) (*ingestion.UploadedFile, error) {
	var file ingestion.UploadedFile
	var deletedAt sql.NullTime
	err := row.Scan(
		&file.ID, &file.Name, &file.StoragePath, &file.ContentHash, &file.Category, &file.Status, &file.FailReason,
		&file.RowCount, &file.BranchesExpected, &file.BranchesCompleted, &file.UploadedBy,
		&file.CreatedAt, &file.UpdatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		file.DeletedAt = deletedAt.Time
	}
	return &file, nil
}
