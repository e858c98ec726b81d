package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"

	ingestion "payroll-cloud/internal/ingestion/domain"
)

// FileRepository persists uploaded file records.
type FileRepository interface {
	Create(ctx context.Context, file *ingestion.UploadedFile) error
	GetByID(ctx context.Context, id string) (*ingestion.UploadedFile, error)
	FindByHash(ctx context.Context, hash string) (*ingestion.UploadedFile, error)
	UpdateStatus(ctx context.Context, id, status, failReason string) error
}

// RawStore persists raw payroll file bytes.
type RawStore interface {
	Save(id, name string, data []byte) (string, error)
}

// Service handles payroll file intake and content deduplication.
type Service struct {
	repo  FileRepository
	store RawStore
}

// NewService constructs an ingestion service.
func NewService(repo FileRepository, store RawStore) (*Service, error) {
	if repo == nil {
		return nil, errors.New("ingestion service: nil repo")
	}
	if store == nil {
		return nil, errors.New("ingestion service: nil store")
	}
	return &Service{repo: repo, store: store}, nil
}

// Ingest hashes the raw content, rejects duplicates of live files, persists
// the raw bytes and creates the file record. The record stays in received
// state until the parser confirms structural validity.
func (s *Service) Ingest(ctx context.Context, name, category string, data []byte, actor string) (*ingestion.UploadedFile, error) {
	if len(data) == 0 {
		return nil, errors.New("ingestion service: empty file")
	}
	if !ingestion.ValidCategory(category) {
		return nil, ingestion.ErrInvalidCategory
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	existing, err := s.repo.FindByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if existing != nil && !existing.Deleted() {
		return nil, &ingestion.DuplicateFileError{Hash: hash, ExistingID: existing.ID}
	}

	id := "file-" + uuid.NewString()
	path, err := s.store.Save(id, name, data)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	file := &ingestion.UploadedFile{
		ID:          id,
		Name:        name,
		StoragePath: path,
		ContentHash: hash,
		Category:    category,
		Status:      ingestion.FileStatusReceived,
		UploadedBy:  actor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, file); err != nil {
		return nil, err
	}
	return file, nil
}

// MarkExtracted confirms structural validity after parsing.
func (s *Service) MarkExtracted(ctx context.Context, id string) error {
	return s.repo.UpdateStatus(ctx, id, ingestion.FileStatusExtracted, "")
}

// MarkFailed moves a structurally unusable file to the terminal failed state.
func (s *Service) MarkFailed(ctx context.Context, id, reason string) error {
	return s.repo.UpdateStatus(ctx, id, ingestion.FileStatusFailed, reason)
}
