package application

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	payroll "payroll-cloud/internal/payroll/domain"
)

// Required payroll extract columns; matching is case-insensitive on the
// normalized header (spaces collapsed to underscores).
const (
	columnMatricule  = "matricule"
	columnMemberName = "member_name"
	columnBranch     = "branch"
	columnGross      = "gross_salary"
	columnNet        = "net_salary"
	columnLoanRef    = "loan_ref"
)

// ErrEmptyWorkbook indicates a workbook without a data sheet.
var ErrEmptyWorkbook = errors.New("parser: empty workbook")

// ParseWorkbook converts the raw XLSX payload into salary lines, preserving
// row order. Rows that fail to parse are collected as RowErrors; only a
// structurally unusable workbook returns an error.
func ParseWorkbook(fileID string, data []byte) ([]*payroll.SalaryLine, []payroll.RowError, error) {
	workbook, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("parser: open workbook: %w", err)
	}
	defer workbook.Close()

	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, ErrEmptyWorkbook
	}
	rows, err := workbook.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("parser: read rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, nil, ErrEmptyWorkbook
	}

	columns, err := mapHeader(rows[0])
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	var lines []*payroll.SalaryLine
	var rowErrors []payroll.RowError
	for i, row := range rows[1:] {
		rowNo := i + 2
		if blankRow(row) {
			continue
		}
		line, reason := parseRow(fileID, rowNo, row, columns)
		if reason != "" {
			rowErrors = append(rowErrors, payroll.RowError{Row: rowNo, Reason: reason})
			continue
		}
		line.CreatedAt = now
		lines = append(lines, line)
	}
	return lines, rowErrors, nil
}

func mapHeader(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, cell := range header {
		name := normalizeHeader(cell)
		if name != "" {
			columns[name] = i
		}
	}
	for _, required := range []string{columnMatricule, columnMemberName, columnBranch, columnGross, columnNet} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("parser: missing column %q", required)
		}
	}
	return columns, nil
}

func parseRow(fileID string, rowNo int, row []string, columns map[string]int) (*payroll.SalaryLine, string) {
	matricule := cell(row, columns, columnMatricule)
	if matricule == "" {
		return nil, "missing matricule"
	}
	branch := cell(row, columns, columnBranch)
	if branch == "" {
		return nil, "missing branch"
	}
	gross, err := parseAmount(cell(row, columns, columnGross))
	if err != nil {
		return nil, "gross_salary: " + err.Error()
	}
	net, err := parseAmount(cell(row, columns, columnNet))
	if err != nil {
		return nil, "net_salary: " + err.Error()
	}
	if net.GreaterThan(gross) {
		return nil, "net_salary exceeds gross_salary"
	}

	return &payroll.SalaryLine{
		ID:          fmt.Sprintf("%s:r%d", fileID, rowNo),
		FileID:      fileID,
		RowIndex:    rowNo,
		Matricule:   matricule,
		MemberName:  cell(row, columns, columnMemberName),
		BranchID:    branch,
		LoanRef:     cell(row, columns, columnLoanRef),
		GrossSalary: gross,
		NetSalary:   net,
		Status:      payroll.LineStatusPending,
	}, ""
}

// parseAmount parses a money cell: non-negative, at most two decimal places.
func parseAmount(value string) (decimal.Decimal, error) {
	value = strings.ReplaceAll(strings.TrimSpace(value), ",", "")
	if value == "" {
		return decimal.Zero, errors.New("empty amount")
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, errors.New("not a number")
	}
	if amount.IsNegative() {
		return decimal.Zero, errors.New("negative amount")
	}
	if amount.Exponent() < -2 {
		return decimal.Zero, errors.New("more than two decimal places")
	}
	return amount, nil
}

func cell(row []string, columns map[string]int, name string) string {
	idx, ok := columns[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func normalizeHeader(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	return strings.ReplaceAll(value, " ", "_")
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
