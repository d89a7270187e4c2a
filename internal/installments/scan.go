// Package installments reconstructs parcelamento plans from the fragmented
// "payment in installments" blocks a credit-card statement prints. A plan is
// identified by the reference number repeated on every statement period, so
// fragments from different card sections and different uploads all fold into
// one plan.
package installments

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avcarvalho/statement-ingest/internal/domain"
)

var (
	blockAnchor = regexp.MustCompile(`(?i)parcelamento|compra parcelada|parcelado em`)

	// referenceNumber is label-anchored first; a bare 8-digit run inside
	// the block is accepted as a weaker second chance.
	referenceNumber     = regexp.MustCompile(`(?i)(?:refer[êe]ncia|ref\.?|contrato)\s*:?\s*(\d{6,})`)
	bareReferenceNumber = regexp.MustCompile(`\b(\d{8})\b`)

	// installmentCounter requires the parcela vocabulary: a bare N/M also
	// matches dates, which sit in every block.
	installmentCounter = regexp.MustCompile(`(?i)(?:parcela|parc\.?)\s*(\d{1,2})\s*(?:de|/)\s*(\d{1,2})`)

	amountValue  = regexp.MustCompile(`[\d.]*\d,\d{2}`)
	totalAmount  = regexp.MustCompile(`(?i)(?:valor\s+total|total\s+(?:da\s+)?compra)\s*:?\s*(?:R\$)?\s*([\d.]*\d,\d{2})`)
	interestRate = regexp.MustCompile(`(?i)juros(?:\s+de)?\s*:?\s*([\d.]*\d(?:,\d+)?)\s*%`)
	blockDate    = regexp.MustCompile(`\b(\d{2}/\d{2}(?:/\d{2,4})?)\b`)

	merchantWord = regexp.MustCompile(`^[A-ZÀ-Ú][A-ZÀ-Ú0-9.&-]*$`)
)

// merchantStopwords are statement vocabulary that shows up in upper case
// inside installment blocks and must not leak into the merchant name.
var merchantStopwords = map[string]struct{}{
	"PARCELAMENTO": {}, "PARCELA": {}, "PARC": {}, "PARCELADO": {},
	"COMPRA": {}, "PARCELADA": {}, "REFERÊNCIA": {}, "REFERENCIA": {},
	"REF": {}, "CONTRATO": {}, "JUROS": {}, "VALOR": {}, "TOTAL": {},
	"EM": {}, "DE": {}, "DA": {}, "DO": {}, "R$": {},
}

// Sighting is one parsed installment block: a single installment of a plan
// as printed on one statement.
type Sighting struct {
	ReferenceID  string
	Merchant     string
	Number       int
	Total        int
	Amount       decimal.Decimal
	Date         time.Time
	TotalAmount  *decimal.Decimal
	InterestRate *decimal.Decimal
}

// ScanResult carries the parsed sightings plus the count of blocks that
// matched the anchor but could not be parsed. Dropped blocks are a known
// recall loss, surfaced for diagnostics only.
type ScanResult struct {
	Sightings     []Sighting
	DroppedBlocks int
}

// Scan finds every installment block in normalized statement text.
// refDate supplies the year for dates printed as DD/MM.
//
// A block without a reference number is unidentifiable and dropped; a block
// without the parcela N/M counter is likewise dropped. Both cases count
// toward DroppedBlocks.
func Scan(text string, refDate time.Time) ScanResult {
	var result ScanResult
	for _, block := range splitBlocks(text) {
		s, ok := parseBlock(block, refDate)
		if !ok {
			result.DroppedBlocks++
			continue
		}
		result.Sightings = append(result.Sightings, s)
	}
	return result
}

// splitBlocks cuts the text into one fragment per anchor, each running from
// its anchor line to the line before the next anchor or the next blank line.
func splitBlocks(text string) []string {
	lines := strings.Split(text, "\n")
	var blocks []string
	var current []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case blockAnchor.MatchString(trimmed):
			if len(current) > 0 {
				blocks = append(blocks, strings.Join(current, "\n"))
			}
			current = []string{trimmed}
		case len(current) > 0 && trimmed == "":
			blocks = append(blocks, strings.Join(current, "\n"))
			current = nil
		case len(current) > 0:
			current = append(current, trimmed)
		}
	}
	if len(current) > 0 {
		blocks = append(blocks, strings.Join(current, "\n"))
	}
	return blocks
}

func parseBlock(block string, refDate time.Time) (Sighting, bool) {
	var s Sighting

	if m := referenceNumber.FindStringSubmatch(block); m != nil {
		s.ReferenceID = m[1]
	} else if m := bareReferenceNumber.FindStringSubmatch(block); m != nil {
		s.ReferenceID = m[1]
	} else {
		return Sighting{}, false
	}

	m := installmentCounter.FindStringSubmatch(block)
	if m == nil {
		return Sighting{}, false
	}
	s.Number = atoi(m[1])
	s.Total = atoi(m[2])
	if s.Number <= 0 || s.Total <= 0 || s.Number > s.Total {
		return Sighting{}, false
	}

	if amt, ok := blockAmount(block); ok {
		s.Amount = amt
	} else {
		return Sighting{}, false
	}

	if m := totalAmount.FindStringSubmatch(block); m != nil {
		if d, err := domain.ParseAmount(m[1]); err == nil {
			s.TotalAmount = &d
		}
	}
	if m := interestRate.FindStringSubmatch(block); m != nil {
		if d, err := domain.ParseAmount(m[1]); err == nil {
			s.InterestRate = &d
		}
	}
	if m := blockDate.FindStringSubmatch(block); m != nil {
		s.Date = parseDate(m[1], refDate)
	}
	s.Merchant = merchantName(block)

	return s, true
}

// blockAmount prefers the amount printed on the counter's own line, falling
// back to the first amount anywhere in the block.
func blockAmount(block string) (decimal.Decimal, bool) {
	for _, line := range strings.Split(block, "\n") {
		if !installmentCounter.MatchString(line) {
			continue
		}
		if m := amountValue.FindString(line); m != "" {
			if d, err := domain.ParseAmount(m); err == nil {
				return d, true
			}
		}
	}
	if m := amountValue.FindString(block); m != "" {
		if d, err := domain.ParseAmount(m); err == nil {
			return d, true
		}
	}
	return decimal.Zero, false
}

// merchantName collects the leading run of upper-case words that is not
// statement vocabulary. Best effort: an empty merchant is acceptable, a
// wrong one is not.
func merchantName(block string) string {
	for _, line := range strings.Split(block, "\n") {
		var words []string
		for _, word := range strings.Fields(line) {
			clean := strings.TrimRight(word, ".:,-")
			if !merchantWord.MatchString(clean) {
				if len(words) > 0 {
					break
				}
				continue
			}
			if _, stop := merchantStopwords[clean]; stop {
				if len(words) > 0 {
					break
				}
				continue
			}
			words = append(words, clean)
		}
		if len(words) > 0 {
			return strings.Join(words, " ")
		}
	}
	return ""
}

func parseDate(s string, refDate time.Time) time.Time {
	for _, layout := range []string{"02/01/2006", "02/01/06"} {
		if d, err := time.Parse(layout, s); err == nil {
			return d
		}
	}
	if d, err := time.Parse("02/01", s); err == nil {
		return time.Date(refDate.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	}
	return time.Time{}
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
