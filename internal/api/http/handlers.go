package apihttp

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"payroll-cloud/internal/auth"
)

const timeLayout = time.RFC3339

// LinesHandler serves salary line queries for a file.
type LinesHandler struct {
	db *sql.DB
}

// NewLinesHandler constructs a LinesHandler.
func NewLinesHandler(db *sql.DB) *LinesHandler {
	return &LinesHandler{db: db}
}

// ServeHTTP handles GET /api/v1/payroll/lines.
func (h *LinesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.db == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	fileID := r.URL.Query().Get("file_id")
	if fileID == "" {
		http.Error(w, "file_id is required", http.StatusBadRequest)
		return
	}
	branchID := r.URL.Query().Get("branch_id")
	if branchID != "" && !auth.CanActOnBranch(r.Context(), branchID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	status, err := resolveStatus(r.URL.Query().Get("status"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	lines, err := queryLines(r.Context(), h.db, fileID, branchID, status)
	if err != nil {
		http.Error(w, "query lines error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(lines)
}

// ExportLinesCSVHandler serves salary line CSV exports.
type ExportLinesCSVHandler struct {
	db *sql.DB
}

// NewExportLinesCSVHandler constructs a ExportLinesCSVHandler.
func NewExportLinesCSVHandler(db *sql.DB) *ExportLinesCSVHandler {
	return &ExportLinesCSVHandler{db: db}
}

// ServeHTTP handles GET /api/v1/exports/lines.csv.
func (h *ExportLinesCSVHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.db == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	fileID := r.URL.Query().Get("file_id")
	if fileID == "" {
		http.Error(w, "file_id is required", http.StatusBadRequest)
		return
	}
	branchID := r.URL.Query().Get("branch_id")
	if branchID != "" && !auth.CanActOnBranch(r.Context(), branchID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	lines, err := queryLines(r.Context(), h.db, fileID, branchID, "")
	if err != nil {
		http.Error(w, "query lines error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{
		"file_id",
		"row",
		"matricule",
		"member_name",
		"branch_id",
		"loan_ref",
		"gross_salary",
		"net_salary",
		"capital",
		"interest",
		"vat",
		"savings",
		"shares",
		"charges",
		"remaining_salary",
		"status",
		"fail_reason",
		"transaction_ref",
		"posted_at",
	})
	for _, line := range lines {
		_ = writer.Write([]string{
			line.FileID,
			strconv.Itoa(line.RowIndex),
			line.Matricule,
			line.MemberName,
			line.BranchID,
			line.LoanRef,
			line.GrossSalary,
			line.NetSalary,
			line.Capital,
			line.Interest,
			line.VAT,
			line.Savings,
			line.Shares,
			line.Charges,
			line.RemainingSalary,
			line.Status,
			line.FailReason,
			line.TransactionRef,
			formatTime(line.PostedAt),
		})
	}
	writer.Flush()
}

type lineRow struct {
	ID              string     `json:"id"`
	FileID          string     `json:"file_id"`
	RowIndex        int        `json:"row"`
	Matricule       string     `json:"matricule"`
	MemberName      string     `json:"member_name"`
	BranchID        string     `json:"branch_id"`
	LoanRef         string     `json:"loan_ref,omitempty"`
	GrossSalary     string     `json:"gross_salary"`
	NetSalary       string     `json:"net_salary"`
	Capital         string     `json:"capital"`
	Interest        string     `json:"interest"`
	VAT             string     `json:"vat"`
	Savings         string     `json:"savings"`
	Shares          string     `json:"shares"`
	Charges         string     `json:"charges"`
	RemainingSalary string     `json:"remaining_salary"`
	Status          string     `json:"status"`
	FailReason      string     `json:"fail_reason,omitempty"`
	TransactionRef  string     `json:"transaction_ref,omitempty"`
	PostedAt        *time.Time `json:"posted_at,omitempty"`
}

func queryLines(ctx context.Context, db *sql.DB, fileID, branchID, status string) ([]lineRow, error) {
	query := `
SELECT
	id,
	file_id,
	row_index,
	matricule,
	member_name,
	branch_id,
	loan_ref,
	gross_salary,
	net_salary,
	capital,
	interest,
	vat,
	savings,
	shares,
	charges,
	remaining_salary,
	status,
	fail_reason,
	transaction_ref,
	posted_at
FROM salary_lines
WHERE file_id = $1`
	args := []any{fileID}
	if branchID != "" {
		args = append(args, branchID)
		query += " AND branch_id = $" + strconv.Itoa(len(args))
	}
	if status != "" {
		args = append(args, status)
		query += " AND status = $" + strconv.Itoa(len(args))
	}
	query += " ORDER BY row_index ASC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []lineRow
	for rows.Next() {
		var row lineRow
		var postedAt sql.NullTime
		if err := rows.Scan(
			&row.ID,
			&row.FileID,
			&row.RowIndex,
			&row.Matricule,
			&row.MemberName,
			&row.BranchID,
			&row.LoanRef,
			&row.GrossSalary,
			&row.NetSalary,
			&row.Capital,
			&row.Interest,
			&row.VAT,
			&row.Savings,
			&row.Shares,
			&row.Charges,
			&row.RemainingSalary,
			&row.Status,
			&row.FailReason,
			&row.TransactionRef,
			&postedAt,
		); err != nil {
			return nil, err
		}
		if postedAt.Valid {
			t := postedAt.Time.UTC()
			row.PostedAt = &t
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func resolveStatus(status string) (string, error) {
	switch status {
	case "", "pending", "posted", "failed":
		return status, nil
	default:
		return "", errors.New("status must be pending, posted or failed")
	}
}

func formatTime(value *time.Time) string {
	if value == nil {
		return ""
	}
	return value.UTC().Format(timeLayout)
}
