package domain

// RawDocument is the immutable upload input: the file bytes plus the MIME
// type declared by the uploader. It is consumed once by text extraction and
// never persisted by this module.
type RawDocument struct {
	Data     []byte
	MIMEType string
}

// ExtractedText is the plain-text view of a document produced by the OCR /
// document-understanding collaborator. Text may be empty when extraction
// failed; the pipeline treats that as a hard failure for the document.
type ExtractedText struct {
	Text      string
	PageCount int
}

// DocumentKind is the detected document type.
type DocumentKind string

const (
	KindCreditCardStatement DocumentKind = "CREDIT_CARD_STATEMENT"
	KindBankStatement       DocumentKind = "BANK_STATEMENT"
	KindReceipt             DocumentKind = "RECEIPT"
)

// Confidence grades how strongly a classification matched.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// InstitutionUnknown is used when no known-institution signature matched.
const InstitutionUnknown = "UNKNOWN"

// DocumentClassification is derived once per document and never mutated.
type DocumentClassification struct {
	Kind        DocumentKind
	Institution string // institution code, or InstitutionUnknown
	Confidence  Confidence
}
