// Package extract turns one chunk of normalized statement text into
// transactions. The primary path delegates to a Gemini model under a strict
// output contract; a deterministic regex scanner covers the model being
// unavailable, over quota, or returning something that is not the contract.
package extract

import (
	"context"
	"errors"

	"github.com/avcarvalho/statement-ingest/internal/chunker"
	"github.com/avcarvalho/statement-ingest/internal/domain"
)

// ErrSchemaViolation marks a model response that does not match the
// required output contract. The response is discarded, never guess-repaired;
// the caller falls back to the pattern path for that chunk only.
var ErrSchemaViolation = errors.New("model output violates extraction contract")

// ChunkExtractor extracts transactions from a single chunk. The document
// classification selects the prompt or pattern set and the sign convention.
type ChunkExtractor interface {
	ExtractChunk(ctx context.Context, chunk chunker.Chunk, class domain.DocumentClassification) ([]domain.Transaction, error)
}
