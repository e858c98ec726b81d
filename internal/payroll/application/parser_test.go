package application

import (
	"bytes"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	payroll "payroll-cloud/internal/payroll/domain"
)

func buildWorkbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	for i, row := range rows {
		for j, value := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := f.SetCellValue("Sheet1", cell, value); err != nil {
				t.Fatalf("set cell: %v", err)
			}
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func TestParseWorkbook(t *testing.T) {
	data := buildWorkbook(t, [][]any{
		{"Matricule", "Member Name", "Branch", "Gross Salary", "Net Salary", "Loan Ref"},
		{"M-100", "A. Ndongo", "B1", "120000", "100000", "LN-7"},
		{"M-200", "F. Biya", "B2", "90000.50", "80000.25", ""},
	})

	lines, rowErrors, err := ParseWorkbook("file-1", data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rowErrors) != 0 {
		t.Fatalf("expected no row errors, got %v", rowErrors)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].Matricule != "M-100" || lines[0].BranchID != "B1" {
		t.Fatalf("unexpected first line: %+v", lines[0])
	}
	if lines[0].RowIndex != 2 || lines[1].RowIndex != 3 {
		t.Fatalf("row order not preserved: %d, %d", lines[0].RowIndex, lines[1].RowIndex)
	}
	if !lines[1].NetSalary.Equal(mustDecimal(t, "80000.25")) {
		t.Fatalf("expected net 80000.25, got %s", lines[1].NetSalary)
	}
	if lines[0].Status != payroll.LineStatusPending {
		t.Fatalf("expected pending status, got %s", lines[0].Status)
	}
	branches := payroll.Branches(lines)
	if len(branches) != 2 || branches[0] != "B1" || branches[1] != "B2" {
		t.Fatalf("unexpected branches: %v", branches)
	}
}

func TestParseWorkbookCollectsRowErrors(t *testing.T) {
	data := buildWorkbook(t, [][]any{
		{"matricule", "member_name", "branch", "gross_salary", "net_salary"},
		{"M-1", "One", "B1", "100000", "90000"},
		{"M-2", "Two", "B1", "100000", "not-a-number"},
		{"", "Three", "B1", "100000", "90000"},
		{"M-4", "Four", "B1", "100000", "90000.123"},
		{"M-5", "Five", "B1", "80000", "90000"},
	})

	lines, rowErrors, err := ParseWorkbook("file-1", data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected 1 valid line, got %d", len(lines))
	}
	if len(rowErrors) != 4 {
		t.Fatalf("expected 4 row errors, got %d: %v", len(rowErrors), rowErrors)
	}
	for _, rowError := range rowErrors {
		if rowError.Row < 3 || rowError.Row > 6 {
			t.Fatalf("unexpected row index %d", rowError.Row)
		}
	}
}

func TestParseWorkbookMissingColumn(t *testing.T) {
	data := buildWorkbook(t, [][]any{
		{"matricule", "member_name", "gross_salary", "net_salary"},
		{"M-1", "One", "100000", "90000"},
	})

	_, _, err := ParseWorkbook("file-1", data)
	if err == nil {
		t.Fatalf("expected structural error for missing branch column")
	}
}

func TestParseWorkbookEmpty(t *testing.T) {
	data := buildWorkbook(t, [][]any{
		{"matricule", "member_name", "branch", "gross_salary", "net_salary"},
	})

	_, _, err := ParseWorkbook("file-1", data)
	if !errors.Is(err, ErrEmptyWorkbook) {
		t.Fatalf("expected ErrEmptyWorkbook, got %v", err)
	}
}

func mustDecimal(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		t.Fatalf("parse %s: %v", value, err)
	}
	return parsed
}
