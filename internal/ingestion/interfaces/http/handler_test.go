package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	allocation "payroll-cloud/internal/allocation/domain"
	ingestapp "payroll-cloud/internal/ingestion/application"
	ingestion "payroll-cloud/internal/ingestion/domain"
	"payroll-cloud/internal/ingestion/infrastructure/memory"
	payroll "payroll-cloud/internal/payroll/domain"
)

type stubRawStore struct{}

func (stubRawStore) Save(id, name string, data []byte) (string, error) {
	return "var/test/" + id, nil
}

type stubAnalyzer struct {
	calls int
}

func (s *stubAnalyzer) Analyze(ctx context.Context, fileID string, lines []*payroll.SalaryLine) (*allocation.Result, error) {
	s.calls++
	return &allocation.Result{FileID: fileID, LineCount: len(lines)}, nil
}

type uploadFixture struct {
	repo     *memory.FileRepository
	analyzer *stubAnalyzer
	handler  *Handler
}

func newUploadFixture(t *testing.T, parse Parser) *uploadFixture {
	t.Helper()
	repo := memory.NewFileRepository()
	service, err := ingestapp.NewService(repo, stubRawStore{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	analyzer := &stubAnalyzer{}
	handler, err := NewHandler(service, parse, analyzer, repo, nil, nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return &uploadFixture{repo: repo, analyzer: analyzer, handler: handler}
}

func newUploadRequest(t *testing.T, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "payroll.xlsx")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payroll/files", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestUploadAcceptsFileWithOnlyRowErrors(t *testing.T) {
	parse := func(fileID string, data []byte) ([]*payroll.SalaryLine, []payroll.RowError, error) {
		return nil, []payroll.RowError{
			{Row: 2, Reason: "missing matricule"},
			{Row: 3, Reason: "net_salary: not a number"},
		}, nil
	}
	f := newUploadFixture(t, parse)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, newUploadRequest(t, []byte("workbook")))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp uploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != ingestion.FileStatusExtracted {
		t.Fatalf("response status = %q, want %q", resp.Status, ingestion.FileStatusExtracted)
	}
	if len(resp.RowErrors) != 2 {
		t.Fatalf("expected 2 row errors, got %+v", resp.RowErrors)
	}
	if f.analyzer.calls != 0 {
		t.Fatalf("analyzer must not run on an empty batch")
	}
	file, err := f.repo.GetByID(context.Background(), resp.FileID)
	if err != nil || file == nil {
		t.Fatalf("stored file: %v", err)
	}
	if file.Status != ingestion.FileStatusExtracted {
		t.Fatalf("stored status = %q, want %q", file.Status, ingestion.FileStatusExtracted)
	}
}

func TestUploadRejectsWorkbookWithoutDataRows(t *testing.T) {
	parse := func(fileID string, data []byte) ([]*payroll.SalaryLine, []payroll.RowError, error) {
		return nil, nil, nil
	}
	f := newUploadFixture(t, parse)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, newUploadRequest(t, []byte("workbook")))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if f.analyzer.calls != 0 {
		t.Fatalf("analyzer must not run without lines")
	}
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	parse := func(fileID string, data []byte) ([]*payroll.SalaryLine, []payroll.RowError, error) {
		t.Fatal("oversized upload must not be parsed")
		return nil, nil, nil
	}
	f := newUploadFixture(t, parse)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, newUploadRequest(t, bytes.Repeat([]byte("x"), maxUploadBytes+1)))

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	if f.repo.Count() != 0 {
		t.Fatalf("oversized upload must not create a file record")
	}
}

func TestUploadAnalyzesParsedLines(t *testing.T) {
	net := decimal.RequireFromString("100000")
	parse := func(fileID string, data []byte) ([]*payroll.SalaryLine, []payroll.RowError, error) {
		return []*payroll.SalaryLine{{
			ID:        fileID + ":r2",
			FileID:    fileID,
			RowIndex:  2,
			Matricule: "M-1",
			BranchID:  "B1",
			NetSalary: net,
		}}, nil, nil
	}
	f := newUploadFixture(t, parse)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, newUploadRequest(t, []byte("workbook")))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp uploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != ingestion.FileStatusAnalyzed {
		t.Fatalf("response status = %q, want %q", resp.Status, ingestion.FileStatusAnalyzed)
	}
	if resp.Rows != 1 || len(resp.Branches) != 1 || resp.Branches[0] != "B1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if f.analyzer.calls != 1 {
		t.Fatalf("analyzer calls = %d, want 1", f.analyzer.calls)
	}
}
