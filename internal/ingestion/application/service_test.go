package application

import (
	"context"
	"errors"
	"testing"

	ingestion "payroll-cloud/internal/ingestion/domain"
	"payroll-cloud/internal/ingestion/infrastructure/memory"
	"payroll-cloud/internal/ingestion/infrastructure/storage"
)

func TestIngestDuplicateRejected(t *testing.T) {
	repo := memory.NewFileRepository()
	store, err := storage.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("new disk store: %v", err)
	}
	svc, err := NewService(repo, store)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	content := []byte("matricule,branch,net\nM-1,B1,100000")
	first, err := svc.Ingest(context.Background(), "payroll-march.xlsx", ingestion.CategoryNormal, content, "user-1")
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if first.Status != ingestion.FileStatusReceived {
		t.Fatalf("expected received status, got %s", first.Status)
	}

	_, err = svc.Ingest(context.Background(), "payroll-march-copy.xlsx", ingestion.CategoryNormal, content, "user-2")
	if !errors.Is(err, ingestion.ErrDuplicateFile) {
		t.Fatalf("expected duplicate file error, got %v", err)
	}
	var dup *ingestion.DuplicateFileError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateFileError, got %T", err)
	}
	if dup.ExistingID != first.ID {
		t.Fatalf("expected existing id %s, got %s", first.ID, dup.ExistingID)
	}
	if repo.Count() != 1 {
		t.Fatalf("expected 1 live file, got %d", repo.Count())
	}
}

func TestIngestDifferentContentAccepted(t *testing.T) {
	repo := memory.NewFileRepository()
	store, err := storage.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("new disk store: %v", err)
	}
	svc, err := NewService(repo, store)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := svc.Ingest(context.Background(), "a.xlsx", ingestion.CategoryNormal, []byte("march"), "u"); err != nil {
		t.Fatalf("ingest a: %v", err)
	}
	if _, err := svc.Ingest(context.Background(), "b.xlsx", ingestion.CategoryNormal, []byte("april"), "u"); err != nil {
		t.Fatalf("ingest b: %v", err)
	}
	if repo.Count() != 2 {
		t.Fatalf("expected 2 files, got %d", repo.Count())
	}
}

func TestIngestRejectsUnknownCategory(t *testing.T) {
	repo := memory.NewFileRepository()
	store, err := storage.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("new disk store: %v", err)
	}
	svc, err := NewService(repo, store)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.Ingest(context.Background(), "a.xlsx", "bonus", []byte("data"), "u")
	if !errors.Is(err, ingestion.ErrInvalidCategory) {
		t.Fatalf("expected invalid category error, got %v", err)
	}
}
