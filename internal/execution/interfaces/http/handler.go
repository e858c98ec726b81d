package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"payroll-cloud/internal/auth"
	executionapp "payroll-cloud/internal/execution/application"
	execution "payroll-cloud/internal/execution/domain"
	ingestion "payroll-cloud/internal/ingestion/domain"
	"payroll-cloud/internal/ledger"
	"payroll-cloud/internal/observability/metrics"

	"payroll-cloud/internal/execution/interfaces"
)

// RunReader lists stored branch runs for summary exports.
type RunReader interface {
	ListByFile(ctx context.Context, fileID string) ([]*execution.BranchRun, error)
}

// FileReader loads file records for summary exports.
type FileReader interface {
	GetByID(ctx context.Context, id string) (*ingestion.UploadedFile, error)
}

// Handler provides execution HTTP endpoints under /api/v1/payroll/files/{id}.
type Handler struct {
	orchestrator *executionapp.Orchestrator
	runs         RunReader
	files        FileReader
}

// NewHandler constructs a handler.
func NewHandler(orchestrator *executionapp.Orchestrator, runs RunReader, files FileReader) (*Handler, error) {
	if orchestrator == nil {
		return nil, errors.New("execution handler: nil orchestrator")
	}
	if runs == nil {
		return nil, errors.New("execution handler: nil run reader")
	}
	if files == nil {
		return nil, errors.New("execution handler: nil file reader")
	}
	return &Handler{orchestrator: orchestrator, runs: runs, files: files}, nil
}

// Routes reports whether the handler owns the request path.
func Routes(path string) bool {
	return strings.HasSuffix(path, "/execute") ||
		strings.HasSuffix(path, "/retry") ||
		strings.HasSuffix(path, "/summary")
}

// ServeHTTP handles execute, retry and summary for one file.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/payroll/files"), "/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	fileID, action := parts[0], parts[1]

	switch {
	case r.Method == http.MethodPost && action == "execute":
		h.handleExecute(w, r, fileID)
	case r.Method == http.MethodPost && action == "retry":
		h.handleRetry(w, r, fileID)
	case r.Method == http.MethodGet && action == "summary":
		h.handleSummary(w, r, fileID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type executeRequest struct {
	BranchID string   `json:"branch_id"`
	Members  []string `json:"members"`
	Date     string   `json:"date"`
}

func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request, fileID string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	// An empty body means "execute every branch".
	var req executeRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}

	var date time.Time
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		date = parsed
	}
	opts := executionapp.Options{
		Actor:   auth.SubjectFromContext(r.Context()),
		Members: req.Members,
		Date:    date,
	}

	if req.BranchID != "" {
		if !auth.CanActOnBranch(r.Context(), req.BranchID) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		summary, err := h.orchestrator.Execute(r.Context(), fileID, req.BranchID, opts)
		if err != nil {
			respondExecuteError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]execution.Summary{req.BranchID: summary})
		return
	}

	if auth.RoleFromContext(r.Context()) != auth.RoleAdmin {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	summaries, err := h.orchestrator.ExecuteAll(r.Context(), fileID, opts)
	if err != nil && len(summaries) == 0 {
		respondExecuteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(summaries)
}

func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request, fileID string) {
	reset, err := h.orchestrator.Retry(r.Context(), fileID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int64{"reset": reset})
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request, fileID string) {
	start := time.Now()
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "xlsx"
	}

	file, err := h.files.GetByID(r.Context(), fileID)
	if err != nil {
		metrics.ObserveSummaryExport(format, metrics.ResultError, time.Since(start))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if file == nil || file.Deleted() {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	runs, err := h.runs.ListByFile(r.Context(), fileID)
	if err != nil {
		metrics.ObserveSummaryExport(format, metrics.ResultError, time.Since(start))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var data []byte
	var contentType, ext string
	switch format {
	case "xlsx":
		data, err = interfaces.BuildSummaryXLSX(file, runs)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		ext = "xlsx"
	case "pdf":
		data, err = interfaces.BuildSummaryPDF(file, runs)
		contentType = "application/pdf"
		ext = "pdf"
	default:
		http.Error(w, "format must be xlsx or pdf", http.StatusBadRequest)
		return
	}
	if err != nil {
		metrics.ObserveSummaryExport(format, metrics.ResultError, time.Since(start))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	metrics.ObserveSummaryExport(format, metrics.ResultSuccess, time.Since(start))

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s-summary.%s", fileID, ext))
	_, _ = w.Write(data)
}

func respondExecuteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, execution.ErrFileNotReady):
		http.Error(w, "file not analyzed", http.StatusConflict)
	case errors.Is(err, execution.ErrNoBranchLines):
		http.Error(w, "no lines for branch", http.StatusNotFound)
	case errors.Is(err, ledger.ErrAccountingDayClosed):
		http.Error(w, "accounting day closed", http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
