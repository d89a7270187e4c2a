// Package cards finds every card listed on a credit-card statement and the
// holder it belongs to. Statements for one account frequently carry the
// primary holder's card plus dependent (adicional) cards that share the
// account's credit limit.
package cards

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/avcarvalho/statement-ingest/internal/domain"
)

var (
	// tableAnchor marks the structured card table some issuers print: one
	// row per card with masked number, plan nickname and holder name.
	tableAnchor = regexp.MustCompile(`(?i)rela[çc][ãa]o de cart[õo]es|cart[õo]es (?:da conta|adicionais)|demonstrativo por cart[ãa]o`)

	// maskedNumber matches the masked forms issuers print: a leading BIN
	// followed by masked groups, or masked groups followed by the last four
	// digits ("5502 **** **** 1234", "**** 1234", "XXXX.XXXX.XXXX.9081").
	maskedNumber = regexp.MustCompile(`\d{4}[ .-](?:[*xX•]{4}[ .-]){2}\d{4}|(?:[*xX•]{4}[ .-]){1,3}\d{4}`)

	// tableRow is the strict per-row pattern inside the card table:
	// masked number, plan nickname, then an upper-case holder name.
	tableRow = regexp.MustCompile(`^(\d{4}[ .-](?:[*xX•]{4}[ .-]){2}\d{4}|(?:[*xX•]{4}[ .-]){1,3}\d{4})\s+(.+?)\s+([A-ZÀ-Ú][A-ZÀ-Ú. ]{3,})$`)

	// candidateName accepts an all-caps multi-word line as a possible
	// holder name when no card table exists.
	candidateName = regexp.MustCompile(`^[A-ZÀ-Ú]{2,}(?: [A-ZÀ-Ú.]+)+$`)

	// creditLimit is label-anchored: the number near the account's
	// credit-limit vocabulary. The limit is shared by all cards.
	creditLimit = regexp.MustCompile(`(?i)limite (?:de cr[eé]dito|total)(?: da conta)?\s*:?\s*(?:R\$)?\s*([\d.]+,\d{2}|[\d.]+)`)
)

// nonNameTokens disqualify an all-caps line from being a holder name:
// issuer brands, section headers and statement vocabulary also appear in
// upper case.
var nonNameTokens = map[string]struct{}{
	"LIMITE": {}, "TOTAL": {}, "FATURA": {}, "CARTÃO": {}, "CARTAO": {},
	"PAGAMENTO": {}, "SALDO": {}, "VENCIMENTO": {}, "PARCELAMENTO": {},
	"LANÇAMENTOS": {}, "LANCAMENTOS": {}, "COMPRAS": {}, "RESUMO": {},
	"NUBANK": {}, "ITAU": {}, "ITAÚ": {}, "BRADESCO": {}, "SANTANDER": {},
	"BANCO": {}, "BRASIL": {}, "CAIXA": {}, "INTER": {}, "VISA": {},
	"MASTERCARD": {}, "ELO": {}, "AMEX": {}, "PIX": {}, "CUPOM": {},
}

// Extract returns the cards found on a credit-card statement, in statement
// order, primary holder first. An empty result means the text carried no
// masked card number at all; callers treat that as a degraded read, not an
// error.
func Extract(text string) []domain.CardHolderRecord {
	records := fromTable(text)
	if len(records) == 0 {
		records = fromLooseText(text)
	}

	if limit := sharedLimit(text); limit != nil {
		for i := range records {
			records[i].SharedCreditLimit = limit
		}
	}
	return records
}

// fromTable parses the structured card table when the statement has one.
// Rows are strict: format drift makes the row pattern miss, and the caller
// falls back to positional pairing instead of guessing here.
func fromTable(text string) []domain.CardHolderRecord {
	loc := tableAnchor.FindStringIndex(text)
	if loc == nil {
		return nil
	}

	var records []domain.CardHolderRecord
	lines := strings.Split(text[loc[1]:], "\n")
	started := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if started {
				break
			}
			continue
		}
		m := tableRow.FindStringSubmatch(line)
		if m == nil {
			if started {
				break
			}
			// Tolerate a header line between anchor and first row.
			continue
		}
		started = true
		records = append(records, domain.CardHolderRecord{
			CardNumberMasked: m[1],
			HolderName:       strings.TrimSpace(m[3]),
			IsDependent:      len(records) > 0,
		})
	}
	return records
}

// fromLooseText is the positional fallback: OCR often tears the number
// table and the name table into disjoint regions, so the i-th masked number
// is paired with the i-th candidate name. When names run short the first
// candidate is repeated; a best-effort holder beats an unset one.
func fromLooseText(text string) []domain.CardHolderRecord {
	numbers := dedupe(maskedNumber.FindAllString(text, -1))
	if len(numbers) == 0 {
		return nil
	}

	var names []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !candidateName.MatchString(line) {
			continue
		}
		if containsNonNameToken(line) {
			continue
		}
		names = append(names, line)
	}

	records := make([]domain.CardHolderRecord, 0, len(numbers))
	for i, num := range numbers {
		name := ""
		switch {
		case i < len(names):
			name = names[i]
		case len(names) > 0:
			name = names[0]
		}
		records = append(records, domain.CardHolderRecord{
			CardNumberMasked: num,
			HolderName:       name,
			IsDependent:      i > 0,
		})
	}
	return records
}

func sharedLimit(text string) *decimal.Decimal {
	m := creditLimit.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	d, err := domain.ParseAmount(m[1])
	if err != nil {
		return nil
	}
	return &d
}

func containsNonNameToken(line string) bool {
	for _, word := range strings.Fields(line) {
		if _, ok := nonNameTokens[strings.TrimRight(word, ".:")]; ok {
			return true
		}
	}
	return false
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
