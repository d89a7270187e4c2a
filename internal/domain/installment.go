package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// InstallmentEntry is one sighting of an installment inside a statement:
// installment number N of the plan, the statement date it appeared under and
// the charged amount.
type InstallmentEntry struct {
	Number int
	Date   time.Time
	Amount decimal.Decimal
}

// InstallmentPlan reconstructs a parcelamento: a purchase split into
// TotalInstallments equal charges tied together by the reference number
// printed on each statement. A plan outlives a single document: it is
// created on the first sighting of its reference and grows as later
// statement periods repeat it.
//
// InstallmentsSeen is kept ordered by Number and unique by Number.
type InstallmentPlan struct {
	ReferenceID         string
	MerchantName        string
	OriginalAmount      decimal.Decimal
	TotalInstallments   int
	PerInstallmentAmount decimal.Decimal
	InterestRate        *decimal.Decimal // nil when the statement states none

	InstallmentsSeen []InstallmentEntry

	FirstSeen time.Time
	UpdatedAt time.Time
}

// Upsert records a sighting, deduplicating by installment number. A repeated
// number overwrites the stored entry: the newest statement read is assumed
// more authoritative than a prior partial one.
func (p *InstallmentPlan) Upsert(e InstallmentEntry) {
	for i, seen := range p.InstallmentsSeen {
		if seen.Number == e.Number {
			p.InstallmentsSeen[i] = e
			return
		}
	}
	p.InstallmentsSeen = append(p.InstallmentsSeen, e)
	sort.Slice(p.InstallmentsSeen, func(i, j int) bool {
		return p.InstallmentsSeen[i].Number < p.InstallmentsSeen[j].Number
	})
}

// SeenTotal sums the amounts of every installment seen so far.
func (p *InstallmentPlan) SeenTotal() decimal.Decimal {
	total := decimal.Zero
	for _, e := range p.InstallmentsSeen {
		total = total.Add(e.Amount)
	}
	return total
}

// RemainingAmount is the original amount minus everything already seen.
func (p *InstallmentPlan) RemainingAmount() decimal.Decimal {
	return p.OriginalAmount.Sub(p.SeenTotal())
}
