package installments

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/avcarvalho/statement-ingest/internal/domain"
)

// Merge folds one sighting into an existing plan, or starts a plan when
// existing is nil. Pure: callers own locking and persistence.
//
// Rules: installmentsSeen stays unique by installment number with the newer
// amount winning; per-installment amount and counters follow the newest
// statement; originalAmount is per-installment × total unless the statement
// states the total separately.
func Merge(existing *domain.InstallmentPlan, s Sighting, now time.Time) *domain.InstallmentPlan {
	plan := existing
	if plan == nil {
		plan = &domain.InstallmentPlan{
			ReferenceID: s.ReferenceID,
			FirstSeen:   now,
		}
	}

	if s.Merchant != "" {
		plan.MerchantName = s.Merchant
	}
	if s.Total > 0 {
		plan.TotalInstallments = s.Total
	}
	if !s.Amount.IsZero() {
		plan.PerInstallmentAmount = s.Amount
	}
	if s.InterestRate != nil {
		plan.InterestRate = s.InterestRate
	}

	plan.Upsert(domain.InstallmentEntry{
		Number: s.Number,
		Date:   s.Date,
		Amount: s.Amount,
	})

	switch {
	case s.TotalAmount != nil:
		plan.OriginalAmount = *s.TotalAmount
	case plan.TotalInstallments > 0 && !plan.PerInstallmentAmount.IsZero():
		plan.OriginalAmount = plan.PerInstallmentAmount.Mul(decimal.NewFromInt(int64(plan.TotalInstallments)))
	}

	plan.UpdatedAt = now
	return plan
}
