package ledger

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
)

// TransactionRow is the BigQuery shape of one imported transaction.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED

	DocumentID string `bigquery:"document_id"` // REQUIRED
	RunID      string `bigquery:"run_id"`      // REQUIRED

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED

	Amount   *big.Rat `bigquery:"amount"`   // REQUIRED NUMERIC
	Currency string   `bigquery:"currency"` // REQUIRED

	Description string              `bigquery:"description"` // REQUIRED
	Category    bigquery.NullString `bigquery:"category"`    // NULLABLE

	InstallmentNumber bigquery.NullInt64 `bigquery:"installment_number"` // NULLABLE
	InstallmentTotal  bigquery.NullInt64 `bigquery:"installment_total"`  // NULLABLE

	Confidence float64 `bigquery:"confidence"`
	Source     string  `bigquery:"source"` // MODEL or PATTERN

	ImportedTS time.Time `bigquery:"imported_ts"`
}

// CardHolderRow is the BigQuery shape of one card holder record.
type CardHolderRow struct {
	DocumentID string `bigquery:"document_id"`
	RunID      string `bigquery:"run_id"`

	CardNumberMasked string `bigquery:"card_number_masked"`
	HolderName       string `bigquery:"holder_name"`
	IsDependent      bool   `bigquery:"is_dependent"`

	SharedCreditLimit *big.Rat `bigquery:"shared_credit_limit"` // NULLABLE NUMERIC

	ImportedTS time.Time `bigquery:"imported_ts"`
}

// InstallmentPlanRow is the BigQuery shape of an installment plan. The plan
// row is keyed by reference_id alone so later periods replace earlier state.
type InstallmentPlanRow struct {
	ReferenceID string `bigquery:"reference_id"` // REQUIRED

	MerchantName      string   `bigquery:"merchant_name"`
	OriginalAmount    *big.Rat `bigquery:"original_amount"`      // NUMERIC
	TotalInstallments int64    `bigquery:"total_installments"`

	PerInstallmentAmount *big.Rat `bigquery:"per_installment_amount"` // NUMERIC
	InterestRate         *big.Rat `bigquery:"interest_rate"`          // NULLABLE NUMERIC

	InstallmentsSeen []InstallmentEntryRow `bigquery:"installments_seen"` // REPEATED RECORD

	FirstSeenTS time.Time `bigquery:"first_seen_ts"`
	UpdatedTS   time.Time `bigquery:"updated_ts"`
}

// InstallmentEntryRow is one seen installment nested under a plan row.
type InstallmentEntryRow struct {
	Number int64      `bigquery:"number"`
	Date   civil.Date `bigquery:"date"`
	Amount *big.Rat   `bigquery:"amount"` // NUMERIC
}

// RunRow records one pipeline run for auditing.
type RunRow struct {
	RunID      string `bigquery:"run_id"` // REQUIRED
	DocumentID string `bigquery:"document_id"`

	DocumentKind string `bigquery:"document_kind"`
	Institution  string `bigquery:"institution"`

	Partial                  bool  `bigquery:"partial"`
	TransactionCount         int64 `bigquery:"transaction_count"`
	CardCount                int64 `bigquery:"card_count"`
	InstallmentPlanCount     int64 `bigquery:"installment_plan_count"`
	DroppedInstallmentBlocks int64 `bigquery:"dropped_installment_blocks"`

	ImportedTS time.Time `bigquery:"imported_ts"`
}
