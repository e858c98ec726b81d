package ingestion

import "time"

// File processing lifecycle. A file is extracted once its structure parsed,
// analyzed once every line carries an allocation, and executed once every
// branch present in the file has completed posting.
const (
	FileStatusReceived          = "received"
	FileStatusExtracted         = "extracted"
	FileStatusAnalyzed          = "analyzed"
	FileStatusPartiallyExecuted = "partially_executed"
	FileStatusExecuted          = "executed"
	FileStatusFailed            = "failed"
)

// Declared payroll file categories.
const (
	CategoryNormal         = "normal"
	CategoryLoanFeePayment = "loan_fee_payment"
	CategoryDisbursement   = "disbursement"
	CategoryLoanRepayment  = "loan_repayment"
)

// UploadedFile represents one ingested payroll extract. The content hash is
// unique across live files; duplicates are rejected before parsing. Files are
// soft-deleted, never removed.
type UploadedFile struct {
	ID                string
	Name              string
	StoragePath       string
	ContentHash       string
	Category          string
	Status            string
	FailReason        string
	RowCount          int
	BranchesExpected  int
	BranchesCompleted int
	UploadedBy        string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         time.Time
}

// ValidCategory reports whether the declared category is known.
func ValidCategory(category string) bool {
	switch category {
	case CategoryNormal, CategoryLoanFeePayment, CategoryDisbursement, CategoryLoanRepayment:
		return true
	default:
		return false
	}
}

// Deleted reports whether the file was soft-deleted.
func (f *UploadedFile) Deleted() bool {
	return f != nil && !f.DeletedAt.IsZero()
}
