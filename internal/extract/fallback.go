package extract

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/avcarvalho/statement-ingest/internal/chunker"
	"github.com/avcarvalho/statement-ingest/internal/domain"
)

var (
	// transactionLine: date, free-form description, amount at the end with
	// an optional trailing sign or D/C marker.
	transactionLine = regexp.MustCompile(`^(\d{2}/\d{2}(?:/\d{2,4})?)\s+(.+?)\s+(-?\s?[\d.]*\d,\d{2})\s*(-|[DC])?$`)

	installmentMarker = regexp.MustCompile(`(?i)\bPARC\.?\s*(\d{1,2})\s*/\s*(\d{1,2})\b|\bparcela\s*(\d{1,2})\s*de\s*(\d{1,2})\b`)
)

// Keywords deciding the money direction when the line carries no explicit
// sign. On a credit-card statement these mark the payment/refund side; on a
// bank statement they mark money out.
var (
	cardCreditKeywords = []string{"pagamento", "estorno", "credito", "crédito", "ajuste a credito"}
	bankDebitKeywords  = []string{"pix enviado", "ted enviada", "saque", "tarifa", "compra", "pagamento", "debito", "débito"}
	bankCreditKeywords = []string{"pix recebido", "ted recebida", "deposito", "depósito", "salario", "salário", "credito", "crédito", "rendimento"}
)

// PatternExtractor is the deterministic fallback path: line-oriented regex
// scanning for date / description / amount triples with a static category
// table. Matches are exact, so the confidence is high.
type PatternExtractor struct {
	currency string
	now      func() time.Time
}

// NewPatternExtractor creates the fallback extraction path.
func NewPatternExtractor(currency string) *PatternExtractor {
	return &PatternExtractor{currency: currency, now: time.Now}
}

// ExtractChunk implements ChunkExtractor. It never fails: lines that do not
// look like transactions are skipped.
func (p *PatternExtractor) ExtractChunk(ctx context.Context, chunk chunker.Chunk, class domain.DocumentClassification) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	for _, line := range strings.Split(chunk.Text, "\n") {
		line = strings.TrimSpace(line)
		m := transactionLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		date, ok := parseLineDate(m[1], p.now())
		if !ok {
			continue
		}
		amount, err := domain.ParseAmount(m[3])
		if err != nil {
			continue
		}

		desc := strings.TrimSpace(m[2])
		marker := m[4]

		signed := applySign(amount.InexactFloat64(), desc, marker, class.Kind)

		tx := domain.Transaction{
			Date:        date,
			Description: desc,
			Amount:      signed,
			Currency:    p.currency,
			Category:    lookupCategory(desc),
			Confidence:  0.95,
			Source:      domain.SourcePattern,
		}
		if im := installmentMarker.FindStringSubmatch(desc); im != nil {
			number, total := pickPair(im)
			if number > 0 && total > 0 {
				tx.Installment = &domain.InstallmentRef{Number: number, Total: total}
			}
		}

		txs = append(txs, tx)
	}
	return txs, nil
}

// applySign enforces the per-kind sign convention on the parsed magnitude.
//
// Bank statement: money out negative, money in positive. Credit card:
// purchases positive (balance grows), payments and refunds negative. The
// same real-world event gets opposite signs depending on the document kind,
// and both extraction paths must reproduce that.
func applySign(amount float64, desc, marker string, kind domain.DocumentKind) float64 {
	abs := amount
	if abs < 0 {
		abs = -abs
	}
	explicitNegative := amount < 0 || marker == "-" || marker == "D"
	explicitPositive := marker == "C"
	lower := strings.ToLower(desc)

	if kind == domain.KindCreditCardStatement {
		if explicitNegative || containsAny(lower, cardCreditKeywords) {
			return -abs
		}
		return abs
	}

	switch {
	case explicitNegative:
		return -abs
	case explicitPositive:
		return abs
	case containsAny(lower, bankCreditKeywords):
		return abs
	case containsAny(lower, bankDebitKeywords):
		return -abs
	default:
		// No signal at all: bank lines overwhelmingly list spending.
		return -abs
	}
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// parseLineDate resolves DD/MM and DD/MM/YYYY dates; a missing year comes
// from the reference time.
func parseLineDate(s string, ref time.Time) (time.Time, bool) {
	for _, layout := range []string{"02/01/2006", "02/01/06"} {
		if d, err := time.Parse(layout, s); err == nil {
			return d, true
		}
	}
	if d, err := time.Parse("02/01", s); err == nil {
		return time.Date(ref.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

func pickPair(m []string) (int, int) {
	if m[1] != "" {
		return atoi(m[1]), atoi(m[2])
	}
	return atoi(m[3]), atoi(m[4])
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
