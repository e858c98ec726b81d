package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	execution "payroll-cloud/internal/execution/domain"
	ingestion "payroll-cloud/internal/ingestion/domain"
)

// BuildSummaryPDF renders a posting summary PDF for a file's branch runs.
func BuildSummaryPDF(file *ingestion.UploadedFile, runs []*execution.BranchRun) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Salary Deduction Summary")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("File: %s", file.Name))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Category: %s", file.Category))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Status: %s", file.Status))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Rows: %d", file.RowCount))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Branches: %d/%d completed", file.BranchesCompleted, file.BranchesExpected))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", time.Now().UTC().Format(time.RFC3339)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(25, 6, "Branch", "1", 0, "C", false, 0, "")
	pdf.CellFormat(18, 6, "Posted", "1", 0, "C", false, 0, "")
	pdf.CellFormat(18, 6, "Failed", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Capital", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Interest", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Savings", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Shares", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, run := range runs {
		pdf.CellFormat(25, 6, run.BranchID, "1", 0, "C", false, 0, "")
		pdf.CellFormat(18, 6, fmt.Sprintf("%d", run.Summary.Posted), "1", 0, "R", false, 0, "")
		pdf.CellFormat(18, 6, fmt.Sprintf("%d", run.Summary.Failed), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, run.Summary.TotalCapital.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, run.Summary.TotalInterest.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, run.Summary.TotalSavings.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, run.Summary.TotalShares.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildSummaryXLSX renders a posting summary workbook for a file's branch runs.
func BuildSummaryXLSX(file *ingestion.UploadedFile, runs []*execution.BranchRun) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	branchSheet := "branches"
	failureSheet := "failures"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(branchSheet)
	f.NewSheet(failureSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Salary Deduction Summary")
	_ = f.SetCellValue(summarySheet, "A3", "File")
	_ = f.SetCellValue(summarySheet, "B3", file.Name)
	_ = f.SetCellValue(summarySheet, "A4", "Category")
	_ = f.SetCellValue(summarySheet, "B4", file.Category)
	_ = f.SetCellValue(summarySheet, "A5", "Status")
	_ = f.SetCellValue(summarySheet, "B5", file.Status)
	_ = f.SetCellValue(summarySheet, "A6", "Rows")
	_ = f.SetCellValue(summarySheet, "B6", file.RowCount)
	_ = f.SetCellValue(summarySheet, "A7", "Branches Completed")
	_ = f.SetCellValue(summarySheet, "B7", fmt.Sprintf("%d/%d", file.BranchesCompleted, file.BranchesExpected))

	headers := []string{"Branch", "Status", "Lines", "Posted", "Failed", "Skipped",
		"Capital", "Interest", "VAT", "Savings", "Shares", "Charges"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(branchSheet, cell, header)
	}
	for i, run := range runs {
		row := i + 2
		values := []any{
			run.BranchID, run.Status, run.Summary.Lines, run.Summary.Posted,
			run.Summary.Failed, run.Summary.Skipped,
			run.Summary.TotalCapital.StringFixed(2), run.Summary.TotalInterest.StringFixed(2),
			run.Summary.TotalVAT.StringFixed(2), run.Summary.TotalSavings.StringFixed(2),
			run.Summary.TotalShares.StringFixed(2), run.Summary.TotalCharges.StringFixed(2),
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(branchSheet, cell, value)
		}
	}

	_ = f.SetCellValue(failureSheet, "A1", "Branch")
	_ = f.SetCellValue(failureSheet, "B1", "Row")
	_ = f.SetCellValue(failureSheet, "C1", "Line")
	_ = f.SetCellValue(failureSheet, "D1", "Reason")
	row := 2
	for _, run := range runs {
		for _, failure := range run.Summary.Failures {
			_ = f.SetCellValue(failureSheet, fmt.Sprintf("A%d", row), run.BranchID)
			_ = f.SetCellValue(failureSheet, fmt.Sprintf("B%d", row), failure.Row)
			_ = f.SetCellValue(failureSheet, fmt.Sprintf("C%d", row), failure.LineID)
			_ = f.SetCellValue(failureSheet, fmt.Sprintf("D%d", row), failure.Reason)
			row++
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
