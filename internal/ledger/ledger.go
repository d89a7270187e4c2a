// Package ledger persists the output of an ingestion run: transactions,
// card holder records, and reconstructed installment plans.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/avcarvalho/statement-ingest/internal/domain"
)

// ImportPayload is everything one pipeline run produced for one document.
type ImportPayload struct {
	DocumentID   string
	RunID        string
	DocumentKind domain.DocumentKind
	Institution  string

	Transactions []domain.Transaction
	Cards        []domain.CardHolderRecord
	Installments map[string]*domain.InstallmentPlan

	// Partial marks runs that hit the extraction time budget before
	// covering every chunk.
	Partial bool

	// DroppedInstallmentBlocks counts candidate installment blocks that
	// could not be attributed to a reference.
	DroppedInstallmentBlocks int

	ImportedAt time.Time
}

// Writer persists an import payload. Implementations must be idempotent
// for repeated imports of the same document and run.
type Writer interface {
	WriteImport(ctx context.Context, payload ImportPayload) error
}

// transactionNamespace scopes deterministic transaction IDs.
var transactionNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// TransactionID derives a stable ID from the document and the
// transaction's natural key, so re-imports overwrite rather than
// duplicate.
func TransactionID(documentID string, t domain.Transaction) string {
	return uuid.NewSHA1(transactionNamespace, []byte(documentID+"|"+t.NaturalKey())).String()
}
