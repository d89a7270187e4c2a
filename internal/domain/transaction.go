package domain

import (
	"fmt"
	"time"
)

// TransactionSource records which extraction path produced a transaction.
type TransactionSource string

const (
	SourceModel   TransactionSource = "MODEL"
	SourcePattern TransactionSource = "PATTERN"
)

// InstallmentRef carries the N/M marker attached to a single purchase line
// ("PARC 3/6") when the line belongs to an installment plan.
type InstallmentRef struct {
	Number int
	Total  int
}

// Transaction represents one normalized transaction produced by extraction,
// before reconciliation. Sign convention depends on the document kind:
//   - bank statement: money out is negative, money in is positive
//   - credit card:    a purchase is positive (balance grows) and a payment
//     is negative (balance shrinks)
//
// The downstream ledger writer owns persistence and deduplication; this
// struct only needs to carry a stable natural key for that.
type Transaction struct {
	Date        time.Time
	Description string
	Amount      float64
	Currency    string

	Category    string // empty when the extractor could not categorize
	Installment *InstallmentRef

	Confidence float64 // 0..1, per extraction path
	Source     TransactionSource
}

// NaturalKey is the stable identity used by the downstream writer to
// deduplicate against already-imported transactions.
func (t Transaction) NaturalKey() string {
	return fmt.Sprintf("%s|%s|%.2f", t.Date.Format("2006-01-02"), t.Description, t.Amount)
}
