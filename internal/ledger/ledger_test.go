package ledger

import (
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avcarvalho/statement-ingest/internal/domain"
)

func TestTransactionIDIsStable(t *testing.T) {
	tx := domain.Transaction{
		Date:        time.Date(2025, 5, 12, 0, 0, 0, 0, time.UTC),
		Description: "LOJAS AMERICANAS PARC 3/6",
		Amount:      120.00,
	}

	first := TransactionID("doc-1", tx)
	second := TransactionID("doc-1", tx)
	assert.Equal(t, first, second)

	otherDoc := TransactionID("doc-2", tx)
	assert.NotEqual(t, first, otherDoc)

	tx.Amount = 120.01
	assert.NotEqual(t, first, TransactionID("doc-1", tx))
}

func TestTransactionRowMapping(t *testing.T) {
	payload := ImportPayload{DocumentID: "doc-1", RunID: "run-1"}
	importedAt := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	tx := domain.Transaction{
		Date:        time.Date(2025, 5, 12, 0, 0, 0, 0, time.UTC),
		Description: "LOJAS AMERICANAS PARC 3/6",
		Amount:      120.00,
		Currency:    "BRL",
		Category:    "shopping",
		Installment: &domain.InstallmentRef{Number: 3, Total: 6},
		Confidence:  0.95,
		Source:      domain.SourcePattern,
	}

	row := transactionRow(payload, tx, importedAt)

	assert.Equal(t, "doc-1", row.DocumentID)
	assert.Equal(t, "run-1", row.RunID)
	assert.Equal(t, civil.Date{Year: 2025, Month: 5, Day: 12}, row.TransactionDate)
	assert.Equal(t, "BRL", row.Currency)
	assert.Equal(t, "PATTERN", row.Source)

	require.NotNil(t, row.Amount)
	f, _ := row.Amount.Float64()
	assert.InDelta(t, 120.00, f, 0.001)

	require.True(t, row.Category.Valid)
	assert.Equal(t, "shopping", row.Category.StringVal)
	require.True(t, row.InstallmentNumber.Valid)
	assert.Equal(t, int64(3), row.InstallmentNumber.Int64)
	require.True(t, row.InstallmentTotal.Valid)
	assert.Equal(t, int64(6), row.InstallmentTotal.Int64)
}

func TestTransactionRowOmitsEmptyOptionals(t *testing.T) {
	payload := ImportPayload{DocumentID: "doc-1", RunID: "run-1"}
	tx := domain.Transaction{
		Date:        time.Date(2025, 5, 3, 0, 0, 0, 0, time.UTC),
		Description: "PIX RECEBIDO",
		Amount:      250.00,
		Currency:    "BRL",
		Source:      domain.SourceModel,
	}

	row := transactionRow(payload, tx, time.Now().UTC())

	assert.False(t, row.Category.Valid)
	assert.False(t, row.InstallmentNumber.Valid)
	assert.False(t, row.InstallmentTotal.Valid)
}

func TestCardHolderRowMapping(t *testing.T) {
	payload := ImportPayload{DocumentID: "doc-1", RunID: "run-1"}
	limit := decimal.RequireFromString("12500.00")

	row := cardHolderRow(payload, domain.CardHolderRecord{
		CardNumberMasked:  "5502 **** **** 1234",
		HolderName:        "ANA VITORIA CARVALHO",
		IsDependent:       false,
		SharedCreditLimit: &limit,
	}, time.Now().UTC())

	assert.Equal(t, "5502 **** **** 1234", row.CardNumberMasked)
	assert.Equal(t, "ANA VITORIA CARVALHO", row.HolderName)
	require.NotNil(t, row.SharedCreditLimit)
	assert.Equal(t, 0, row.SharedCreditLimit.Cmp(new(big.Rat).SetInt64(12500)))

	noLimit := cardHolderRow(payload, domain.CardHolderRecord{
		CardNumberMasked: "**** 5678",
		HolderName:       "JOAO PEDRO CARVALHO",
		IsDependent:      true,
	}, time.Now().UTC())
	assert.Nil(t, noLimit.SharedCreditLimit)
	assert.True(t, noLimit.IsDependent)
}

func TestInstallmentPlanRowRoundTrip(t *testing.T) {
	rate := decimal.RequireFromString("2.99")
	plan := &domain.InstallmentPlan{
		ReferenceID:          "00122905",
		MerchantName:         "LOJAS AMERICANAS",
		OriginalAmount:       decimal.RequireFromString("720.00"),
		TotalInstallments:    6,
		PerInstallmentAmount: decimal.RequireFromString("120.00"),
		InterestRate:         &rate,
		FirstSeen:            time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:            time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	plan.Upsert(domain.InstallmentEntry{
		Number: 3,
		Date:   time.Date(2025, 5, 12, 0, 0, 0, 0, time.UTC),
		Amount: decimal.RequireFromString("120.00"),
	})

	row := installmentPlanRow(plan)
	back := planFromRow(row)

	assert.Equal(t, "00122905", back.ReferenceID)
	assert.Equal(t, "LOJAS AMERICANAS", back.MerchantName)
	assert.Equal(t, 6, back.TotalInstallments)
	assert.True(t, back.OriginalAmount.Equal(plan.OriginalAmount), "original amount: %s", back.OriginalAmount)
	assert.True(t, back.PerInstallmentAmount.Equal(plan.PerInstallmentAmount))
	require.NotNil(t, back.InterestRate)
	assert.True(t, back.InterestRate.Equal(rate))

	require.Len(t, back.InstallmentsSeen, 1)
	entry := back.InstallmentsSeen[0]
	assert.Equal(t, 3, entry.Number)
	assert.Equal(t, time.Date(2025, 5, 12, 0, 0, 0, 0, time.UTC), entry.Date)
	assert.True(t, entry.Amount.Equal(decimal.RequireFromString("120.00")))
}
