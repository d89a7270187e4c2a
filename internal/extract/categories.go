package extract

import "strings"

// categoryRule maps a merchant keyword to a category. Rules are evaluated
// in order and the first match wins, so more specific keywords ("mercado
// livre") sit above the generic ones ("mercado") they contain.
type categoryRule struct {
	keyword  string
	category string
}

// categoryRules is the static merchant→category table used by the pattern
// path, which has no model to classify for it. Keywords are matched
// case-insensitively against the transaction description.
var categoryRules = []categoryRule{
	// Shopping (specific names before the generic food keywords below)
	{"mercado livre", "Compras"},
	{"mercadolivre", "Compras"},
	{"magazine luiza", "Compras"},
	{"magalu", "Compras"},
	{"lojas americanas", "Compras"},
	{"amazon prime", "Assinaturas"},
	{"amazon", "Compras"},
	{"shein", "Compras"},

	// Food
	{"ifood", "Alimentação"},
	{"supermercado", "Alimentação"},
	{"mercado", "Alimentação"},
	{"padaria", "Alimentação"},
	{"restaurante", "Alimentação"},
	{"lanchonete", "Alimentação"},
	{"mcdonalds", "Alimentação"},
	{"burger king", "Alimentação"},

	// Transport
	{"uber", "Transporte"},
	{"99app", "Transporte"},
	{"posto", "Transporte"},
	{"combustivel", "Transporte"},
	{"estacionamento", "Transporte"},
	{"metrô", "Transporte"},

	// Subscriptions / entertainment
	{"netflix", "Assinaturas"},
	{"spotify", "Assinaturas"},
	{"disney", "Assinaturas"},
	{"cinema", "Lazer"},

	// Health
	{"farmácia", "Saúde"},
	{"farmacia", "Saúde"},
	{"drogaria", "Saúde"},
	{"hospital", "Saúde"},

	// Housing / utilities
	{"energia", "Moradia"},
	{"enel", "Moradia"},
	{"sabesp", "Moradia"},
	{"condominio", "Moradia"},
	{"aluguel", "Moradia"},
	{"internet", "Moradia"},

	// Transfers and fees
	{"pix", "Transferências"},
	{"ted", "Transferências"},
	{"doc ", "Transferências"},
	{"tarifa", "Tarifas"},
	{"anuidade", "Tarifas"},
	{"juros", "Tarifas"},
	{"iof", "Tarifas"},
}

// lookupCategory returns the category for a description, or "" when no
// keyword matches.
func lookupCategory(description string) string {
	lower := strings.ToLower(description)
	for _, rule := range categoryRules {
		if strings.Contains(lower, rule.keyword) {
			return rule.category
		}
	}
	return ""
}
