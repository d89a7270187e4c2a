// Package classify decides what kind of financial document a block of OCR
// text represents and which institution issued it. Institution detection is
// table-driven: one ordered list of signatures, first match wins, so adding
// a bank means appending a row instead of writing another parser file.
package classify

import (
	"regexp"
	"strings"

	"github.com/avcarvalho/statement-ingest/internal/domain"
)

// Signature ties an institution to the lexical pattern that identifies it
// and the document kind its matched documents default to. Entries are
// evaluated in order; the first match wins.
type Signature struct {
	Institution string
	Pattern     *regexp.Regexp
	// KindHint is the document kind this signature implies when the
	// vocabulary scan itself is inconclusive.
	KindHint domain.DocumentKind
}

// institutionTable lists the known Brazilian issuers. More specific
// signatures go first: "banco inter" must win over a stray "inter" inside a
// merchant name, so every pattern anchors on the full brand vocabulary.
var institutionTable = []Signature{
	{"NUBANK", regexp.MustCompile(`(?i)\bnu\s?bank\b|\bnu\s+pagamentos\b`), domain.KindCreditCardStatement},
	{"ITAU", regexp.MustCompile(`(?i)\bita[uú]|itaucard`), domain.KindCreditCardStatement},
	{"BRADESCO", regexp.MustCompile(`(?i)\bbradesco\b`), domain.KindBankStatement},
	{"SANTANDER", regexp.MustCompile(`(?i)\bsantander\b`), domain.KindBankStatement},
	{"BANCO_DO_BRASIL", regexp.MustCompile(`(?i)banco do brasil|\bbb\.com\.br\b|ourocard`), domain.KindBankStatement},
	{"CAIXA", regexp.MustCompile(`(?i)caixa econ[oô]mica|\bcaixa\s+federal\b`), domain.KindBankStatement},
	{"INTER", regexp.MustCompile(`(?i)banco inter\b`), domain.KindBankStatement},
	{"C6", regexp.MustCompile(`(?i)\bc6 bank\b|\bbanco c6\b`), domain.KindCreditCardStatement},
	{"BTG", regexp.MustCompile(`(?i)btg pactual`), domain.KindBankStatement},
}

// Credit-card statements carry invoice and installment vocabulary that
// never appears on a current-account extrato.
var creditCardMarkers = []string{
	"fatura",
	"cartão de crédito",
	"cartao de credito",
	"limite de crédito",
	"limite de credito",
	"pagamento mínimo",
	"pagamento minimo",
	"parcelamento",
	"melhor dia de compra",
	"lançamentos do cartão",
	"final do cartão",
}

var bankStatementMarkers = []string{
	"extrato",
	"conta corrente",
	"saldo anterior",
	"saldo disponível",
	"saldo disponivel",
	"ted ",
	"doc ",
	"pix ",
	"transferência",
	"transferencia",
}

var receiptMarkers = []string{
	"cupom fiscal",
	"nota fiscal",
	"recibo",
	"comprovante de pagamento",
}

// Classify derives the document classification from normalized text. It
// never fails: when nothing matches, the result is a low-confidence bank
// statement, which downstream handles as the generic default.
func Classify(text string) domain.DocumentClassification {
	lower := strings.ToLower(text)

	institution := domain.InstitutionUnknown
	var hint domain.DocumentKind
	for _, sig := range institutionTable {
		if sig.Pattern.MatchString(text) {
			institution = sig.Institution
			hint = sig.KindHint
			break
		}
	}

	kind, kindMatched := detectKind(lower)
	if !kindMatched && hint != "" {
		kind = hint
		kindMatched = true
	}

	confidence := domain.ConfidenceLow
	switch {
	case institution != domain.InstitutionUnknown:
		confidence = domain.ConfidenceHigh
	case kindMatched:
		confidence = domain.ConfidenceMedium
	}

	return domain.DocumentClassification{
		Kind:        kind,
		Institution: institution,
		Confidence:  confidence,
	}
}

// detectKind scores the document vocabulary. A false negative on "credit
// card" only downgrades to the generic bank-statement path, which is safer
// than refusing to process, so ties break toward bank statement.
func detectKind(lower string) (domain.DocumentKind, bool) {
	cardScore := countMarkers(lower, creditCardMarkers)
	bankScore := countMarkers(lower, bankStatementMarkers)
	receiptScore := countMarkers(lower, receiptMarkers)

	switch {
	case receiptScore > cardScore && receiptScore > bankScore:
		return domain.KindReceipt, true
	case cardScore > bankScore:
		return domain.KindCreditCardStatement, true
	case bankScore > 0:
		return domain.KindBankStatement, true
	default:
		return domain.KindBankStatement, false
	}
}

func countMarkers(lower string, markers []string) int {
	n := 0
	for _, m := range markers {
		if strings.Contains(lower, m) {
			n++
		}
	}
	return n
}
