// Package ocr turns uploaded document bytes into plain text. The pipeline
// depends on the TextExtractor interface only; implementations cover the
// digital-PDF case locally and delegate scanned documents to a vision model.
package ocr

import (
	"context"
	"fmt"

	"github.com/avcarvalho/statement-ingest/internal/domain"
)

// TextExtractor is the document-understanding collaborator. An empty Text
// in the result means extraction failed for this document; implementations
// do not retry internally.
type TextExtractor interface {
	ExtractText(ctx context.Context, doc domain.RawDocument) (domain.ExtractedText, error)
}

// ErrUnsupportedMIME is returned when an extractor cannot handle the
// declared document type.
var ErrUnsupportedMIME = fmt.Errorf("unsupported document MIME type")
