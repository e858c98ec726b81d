// Package ledger holds the outbound interfaces to the core banking ledger:
// the transaction poster and the accounting day service. Both are external
// systems reached over REST; this subsystem never posts entries itself.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Deduction categories understood by the poster.
const (
	CategoryCapital  = "loan_capital"
	CategoryInterest = "loan_interest"
	CategoryVAT      = "vat_on_interest"
	CategorySavings  = "savings"
	CategoryShares   = "shares"
	CategoryCharges  = "charges"
)

// ErrAccountingDayClosed is returned when the branch's posting day is closed.
// The poster is the final authority; callers re-check the day before each
// post but must still handle this error.
var ErrAccountingDayClosed = errors.New("ledger: accounting day closed")

// PostLine is one category split inside a posting request.
type PostLine struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// PostRequest carries one employee deduction (or one standing order transfer)
// to the ledger. SourceID is the caller-side idempotency key.
type PostRequest struct {
	SourceID       string     `json:"source_id"`
	MemberID       string     `json:"member_id"`
	BranchID       string     `json:"branch_id"`
	AccountingDate time.Time  `json:"accounting_date"`
	Purpose        string     `json:"purpose"`
	Lines          []PostLine `json:"lines"`
}

// Poster posts deduction splits to the ledger and returns a transaction reference.
type Poster interface {
	Post(ctx context.Context, req PostRequest) (string, error)
}

// DayChecker reports whether a branch's accounting day is open for a date.
type DayChecker interface {
	IsOpen(ctx context.Context, branchID string, date time.Time) (bool, error)
}

// AccountResolver resolves destination accounts held outside the book.
type AccountResolver interface {
	Resolve(ctx context.Context, accountNo string) (bool, error)
}
