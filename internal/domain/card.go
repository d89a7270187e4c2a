package domain

import "github.com/shopspring/decimal"

// CardHolderRecord describes one card found on a credit-card statement.
// The statement's first card belongs to the primary holder; every other card
// is a dependent. The credit limit is shared by every card on one statement,
// so the same value is attached to every record of a document.
type CardHolderRecord struct {
	CardNumberMasked  string
	HolderName        string
	IsDependent       bool
	SharedCreditLimit *decimal.Decimal // nil when the statement shows no limit
}
