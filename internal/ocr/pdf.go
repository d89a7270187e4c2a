package ocr

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/avcarvalho/statement-ingest/internal/domain"
)

// PDFExtractor reads the text layer of a digital PDF locally. Scanned PDFs
// have no text layer and come back empty; callers fall through to a vision
// extractor for those.
type PDFExtractor struct{}

// NewPDFExtractor creates a local PDF text extractor.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// ExtractText implements TextExtractor.
func (e *PDFExtractor) ExtractText(ctx context.Context, doc domain.RawDocument) (domain.ExtractedText, error) {
	if doc.MIMEType != "application/pdf" {
		return domain.ExtractedText{}, fmt.Errorf("pdf extractor: %w: %s", ErrUnsupportedMIME, doc.MIMEType)
	}

	reader, err := pdf.NewReader(bytes.NewReader(doc.Data), int64(len(doc.Data)))
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("pdf extractor: open document: %w", err)
	}

	var b strings.Builder
	pageCount := reader.NumPage()
	for i := 1; i <= pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return domain.ExtractedText{}, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single undecodable page should not void the rest.
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}

	return domain.ExtractedText{
		Text:      b.String(),
		PageCount: pageCount,
	}, nil
}
