package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	allocation "payroll-cloud/internal/allocation/domain"
	"payroll-cloud/internal/audit"
	"payroll-cloud/internal/auth"
	ingestapp "payroll-cloud/internal/ingestion/application"
	ingestion "payroll-cloud/internal/ingestion/domain"
	"payroll-cloud/internal/observability/metrics"
	payroll "payroll-cloud/internal/payroll/domain"
)

const maxUploadBytes = 32 << 20

// Parser turns raw workbook bytes into salary lines.
type Parser func(fileID string, data []byte) ([]*payroll.SalaryLine, []payroll.RowError, error)

// Analyzer runs the allocation waterfall over parsed lines.
type Analyzer interface {
	Analyze(ctx context.Context, fileID string, lines []*payroll.SalaryLine) (*allocation.Result, error)
}

// FileReader loads and soft-deletes file records.
type FileReader interface {
	GetByID(ctx context.Context, id string) (*ingestion.UploadedFile, error)
	SoftDelete(ctx context.Context, id string) error
}

// ResultReader loads per-file allocation aggregates.
type ResultReader interface {
	GetByFile(ctx context.Context, fileID string) (*allocation.Result, error)
}

// Handler provides payroll file HTTP endpoints: upload, status, delete.
type Handler struct {
	service     *ingestapp.Service
	parse       Parser
	analyzer    Analyzer
	files       FileReader
	results     ResultReader
	auditLogger audit.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *ingestapp.Service, parse Parser, analyzer Analyzer, files FileReader, results ResultReader, auditLogger audit.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("payroll files handler: nil service")
	}
	if parse == nil {
		return nil, errors.New("payroll files handler: nil parser")
	}
	if analyzer == nil {
		return nil, errors.New("payroll files handler: nil analyzer")
	}
	if files == nil {
		return nil, errors.New("payroll files handler: nil file reader")
	}
	return &Handler{
		service:     service,
		parse:       parse,
		analyzer:    analyzer,
		files:       files,
		results:     results,
		auditLogger: auditLogger,
	}, nil
}

// ServeHTTP handles /api/v1/payroll/files and /api/v1/payroll/files/{id}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/payroll/files"), "/")
	switch {
	case r.Method == http.MethodPost && id == "":
		h.handleUpload(w, r)
	case r.Method == http.MethodGet && id != "":
		h.handleGet(w, r, id)
	case r.Method == http.MethodDelete && id != "":
		h.handleDelete(w, r, id)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type uploadResponse struct {
	FileID    string             `json:"file_id"`
	Status    string             `json:"status"`
	Rows      int                `json:"rows"`
	Branches  []string           `json:"branches"`
	RowErrors []payroll.RowError `json:"row_errors,omitempty"`
	Totals    *totals            `json:"totals,omitempty"`
}

type totals struct {
	Capital   string `json:"capital"`
	Interest  string `json:"interest"`
	VAT       string `json:"vat"`
	Savings   string `json:"savings"`
	Shares    string `json:"shares"`
	Charges   string `json:"charges"`
	Remaining string `json:"remaining"`
	Net       string `json:"net"`
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	part, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file part required", http.StatusBadRequest)
		return
	}
	defer part.Close()
	data, err := io.ReadAll(io.LimitReader(part, maxUploadBytes+1))
	if err != nil {
		http.Error(w, "read file error", http.StatusBadRequest)
		return
	}
	if len(data) > maxUploadBytes {
		http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
		return
	}
	category := r.FormValue("category")
	if category == "" {
		category = ingestion.CategoryNormal
	}
	actor := auth.SubjectFromContext(r.Context())

	file, err := h.service.Ingest(r.Context(), header.Filename, category, data, actor)
	if err != nil {
		metrics.ObserveIngest(metrics.ResultError, time.Since(start))
		respondIngestError(w, err)
		return
	}

	lines, rowErrors, err := h.parse(file.ID, data)
	metrics.AddRowErrors(len(rowErrors))
	if err != nil {
		_ = h.service.MarkFailed(r.Context(), file.ID, err.Error())
		metrics.ObserveIngest(metrics.ResultError, time.Since(start))
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if len(lines) == 0 && len(rowErrors) == 0 {
		_ = h.service.MarkFailed(r.Context(), file.ID, "no data rows")
		metrics.ObserveIngest(metrics.ResultError, time.Since(start))
		http.Error(w, "no data rows", http.StatusUnprocessableEntity)
		return
	}
	if err := h.service.MarkExtracted(r.Context(), file.ID); err != nil {
		metrics.ObserveIngest(metrics.ResultError, time.Since(start))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if len(lines) == 0 {
		// Every data row was rejected. The upload is still accepted: the file
		// stays extracted and the caller gets the collected row errors.
		metrics.ObserveIngest(metrics.ResultSuccess, time.Since(start))
		h.logAudit(r, "file.upload", file.ID, map[string]any{
			"name":       file.Name,
			"category":   file.Category,
			"rows":       0,
			"row_errors": len(rowErrors),
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(uploadResponse{
			FileID:    file.ID,
			Status:    ingestion.FileStatusExtracted,
			Branches:  []string{},
			RowErrors: rowErrors,
		})
		return
	}

	result, err := h.analyzer.Analyze(r.Context(), file.ID, lines)
	if err != nil {
		metrics.ObserveIngest(metrics.ResultError, time.Since(start))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	metrics.ObserveIngest(metrics.ResultSuccess, time.Since(start))

	h.logAudit(r, "file.upload", file.ID, map[string]any{
		"name":       file.Name,
		"category":   file.Category,
		"rows":       len(lines),
		"row_errors": len(rowErrors),
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(uploadResponse{
		FileID:    file.ID,
		Status:    ingestion.FileStatusAnalyzed,
		Rows:      len(lines),
		Branches:  payroll.Branches(lines),
		RowErrors: rowErrors,
		Totals:    buildTotals(result),
	})
}

type fileResponse struct {
	FileID            string  `json:"file_id"`
	Name              string  `json:"name"`
	Category          string  `json:"category"`
	Status            string  `json:"status"`
	FailReason        string  `json:"fail_reason,omitempty"`
	Rows              int     `json:"rows"`
	BranchesExpected  int     `json:"branches_expected"`
	BranchesCompleted int     `json:"branches_completed"`
	UploadedBy        string  `json:"uploaded_by"`
	CreatedAt         string  `json:"created_at"`
	Totals            *totals `json:"totals,omitempty"`
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	file, err := h.files.GetByID(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if file == nil || file.Deleted() {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	resp := fileResponse{
		FileID:            file.ID,
		Name:              file.Name,
		Category:          file.Category,
		Status:            file.Status,
		FailReason:        file.FailReason,
		Rows:              file.RowCount,
		BranchesExpected:  file.BranchesExpected,
		BranchesCompleted: file.BranchesCompleted,
		UploadedBy:        file.UploadedBy,
		CreatedAt:         file.CreatedAt.Format(time.RFC3339),
	}
	if h.results != nil {
		if result, err := h.results.GetByFile(r.Context(), id); err == nil && result != nil {
			resp.Totals = buildTotals(result)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, id string) {
	file, err := h.files.GetByID(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if file == nil || file.Deleted() {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err := h.files.SoftDelete(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.logAudit(r, "file.delete", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) logAudit(r *http.Request, action, fileID string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	payload, _ := json.Marshal(meta)
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		ID:           audit.NewID(),
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "payroll_file",
		ResourceID:   fileID,
		BranchID:     auth.BranchIDFromContext(r.Context()),
		Metadata:     payload,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
		CreatedAt:    time.Now().UTC(),
	})
}

func buildTotals(result *allocation.Result) *totals {
	if result == nil {
		return nil
	}
	return &totals{
		Capital:   result.TotalCapital.StringFixed(2),
		Interest:  result.TotalInterest.StringFixed(2),
		VAT:       result.TotalVAT.StringFixed(2),
		Savings:   result.TotalSavings.StringFixed(2),
		Shares:    result.TotalShares.StringFixed(2),
		Charges:   result.TotalCharges.StringFixed(2),
		Remaining: result.TotalRemaining.StringFixed(2),
		Net:       result.TotalNet.StringFixed(2),
	}
}

func respondIngestError(w http.ResponseWriter, err error) {
	var duplicate *ingestion.DuplicateFileError
	if errors.As(err, &duplicate) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":       "duplicate file",
			"existing_id": duplicate.ExistingID,
		})
		return
	}
	if errors.Is(err, ingestion.ErrInvalidCategory) {
		http.Error(w, "unknown category", http.StatusBadRequest)
		return
	}
	http.Error(w, err.Error(), http.StatusBadRequest)
}
