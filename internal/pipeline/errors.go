package pipeline

import "errors"

var (
	// ErrEmptyDocument is returned when OCR produced no usable text.
	// Nothing downstream can run without text, so the document fails.
	ErrEmptyDocument = errors.New("document produced no text")

	// ErrExtractionUnavailable is returned when no extraction path could
	// produce transactions for any chunk.
	ErrExtractionUnavailable = errors.New("no extraction path available")
)
