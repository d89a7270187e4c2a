package installments

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avcarvalho/statement-ingest/internal/domain"
)

var refDate = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

const sampleBlock = `PARCELAMENTO LOJAS AMERICANAS
Referência 00122905
12/05 PARC 3/6 120,00
Valor total R$ 720,00
Juros de 2,99%`

func TestScanParsesBlock(t *testing.T) {
	result := Scan(sampleBlock, refDate)
	require.Len(t, result.Sightings, 1)
	assert.Zero(t, result.DroppedBlocks)

	s := result.Sightings[0]
	assert.Equal(t, "00122905", s.ReferenceID)
	assert.Equal(t, "LOJAS AMERICANAS", s.Merchant)
	assert.Equal(t, 3, s.Number)
	assert.Equal(t, 6, s.Total)
	assert.Equal(t, "120", s.Amount.String())
	require.NotNil(t, s.TotalAmount)
	assert.Equal(t, "720", s.TotalAmount.String())
	require.NotNil(t, s.InterestRate)
	assert.Equal(t, "2.99", s.InterestRate.String())
	assert.Equal(t, time.Date(2024, 5, 12, 0, 0, 0, 0, time.UTC), s.Date)
}

func TestScanDropsBlockWithoutReference(t *testing.T) {
	text := `COMPRA PARCELADA MAGAZINE LUIZA
15/05 PARC 2/4 85,50`

	result := Scan(text, refDate)
	assert.Empty(t, result.Sightings)
	assert.Equal(t, 1, result.DroppedBlocks)
}

func TestScanDropsBlockWithoutCounter(t *testing.T) {
	text := `PARCELAMENTO CASAS BAHIA
Referência 99880011
15/05 199,90`

	result := Scan(text, refDate)
	assert.Empty(t, result.Sightings)
	assert.Equal(t, 1, result.DroppedBlocks)
}

func TestScanGroupsAcrossCardSections(t *testing.T) {
	// The same reference appearing under two card sections is two
	// sightings of one plan.
	text := `PARCELAMENTO LOJAS AMERICANAS
Referência 00122905
12/05 PARC 3/6 120,00

lançamentos diversos

PARCELAMENTO LOJAS AMERICANAS
Referência 00122905
12/06 PARC 4/6 120,00`

	result := Scan(text, refDate)
	require.Len(t, result.Sightings, 2)
	assert.Equal(t, result.Sightings[0].ReferenceID, result.Sightings[1].ReferenceID)
}

func TestMergeBuildsPlan(t *testing.T) {
	now := time.Now()
	result := Scan(sampleBlock, refDate)
	require.Len(t, result.Sightings, 1)

	plan := Merge(nil, result.Sightings[0], now)
	assert.Equal(t, "00122905", plan.ReferenceID)
	assert.Equal(t, 6, plan.TotalInstallments)
	assert.Equal(t, "120", plan.PerInstallmentAmount.String())
	assert.Equal(t, "720", plan.OriginalAmount.String())
	require.Len(t, plan.InstallmentsSeen, 1)
	assert.Equal(t, 3, plan.InstallmentsSeen[0].Number)
	assert.Equal(t, "600", plan.RemainingAmount().String())
}

func TestMergeDerivesOriginalAmount(t *testing.T) {
	s := Scan(`PARCELAMENTO NETSHOES
Referência 55443322
10/05 PARC 1/10 55,00`, refDate)
	require.Len(t, s.Sightings, 1)

	plan := Merge(nil, s.Sightings[0], time.Now())
	// No stated total: derived as per-installment × total.
	assert.Equal(t, "550", plan.OriginalAmount.String())
}

func TestMergeIdempotentForRepeatedBlock(t *testing.T) {
	now := time.Now()
	result := Scan(sampleBlock, refDate)
	require.Len(t, result.Sightings, 1)

	plan := Merge(nil, result.Sightings[0], now)
	plan = Merge(plan, result.Sightings[0], now)

	// Re-processing the same statement must not duplicate the entry.
	require.Len(t, plan.InstallmentsSeen, 1)
	assert.Equal(t, 3, plan.InstallmentsSeen[0].Number)
}

func TestMergeNewerAmountWins(t *testing.T) {
	now := time.Now()
	first := Scan(sampleBlock, refDate).Sightings[0]
	plan := Merge(nil, first, now)

	corrected := first
	corrected.Amount = mustAmount(t, "125,00")
	plan = Merge(plan, corrected, now.Add(time.Hour))

	require.Len(t, plan.InstallmentsSeen, 1)
	assert.Equal(t, "125", plan.InstallmentsSeen[0].Amount.String())
	assert.Equal(t, "125", plan.PerInstallmentAmount.String())
}

func TestMergeOrdersInstallments(t *testing.T) {
	now := time.Now()
	later := Scan(`PARCELAMENTO LOJAS AMERICANAS
Referência 00122905
12/06 PARC 4/6 120,00`, refDate).Sightings[0]
	earlier := Scan(sampleBlock, refDate).Sightings[0]

	plan := Merge(nil, later, now)
	plan = Merge(plan, earlier, now)

	require.Len(t, plan.InstallmentsSeen, 2)
	assert.Equal(t, 3, plan.InstallmentsSeen[0].Number)
	assert.Equal(t, 4, plan.InstallmentsSeen[1].Number)
}

func TestReconcileAgainstStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	first := Scan(sampleBlock, refDate)
	plans, err := Reconcile(ctx, store, first.Sightings, now)
	require.NoError(t, err)
	require.Len(t, plans, 1)

	// A later statement period appends installment 4.
	second := Scan(`PARCELAMENTO LOJAS AMERICANAS
Referência 00122905
12/06 PARC 4/6 120,00`, refDate)
	plans, err = Reconcile(ctx, store, second.Sightings, now.Add(time.Hour))
	require.NoError(t, err)

	plan := plans["00122905"]
	require.NotNil(t, plan)
	require.Len(t, plan.InstallmentsSeen, 2)
	assert.Equal(t, "480", plan.RemainingAmount().String())
}

func TestMemoryStoreNoLostUpdates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	// Two concurrent statements carry different installments of the same
	// plan; under the documented merge semantics both must survive.
	blocks := []string{
		"PARCELAMENTO LOJAS AMERICANAS\nReferência 00122905\n12/05 PARC 3/6 120,00",
		"PARCELAMENTO LOJAS AMERICANAS\nReferência 00122905\n12/06 PARC 4/6 120,00",
	}

	var wg sync.WaitGroup
	for _, block := range blocks {
		wg.Add(1)
		go func(b string) {
			defer wg.Done()
			result := Scan(b, refDate)
			_, err := Reconcile(ctx, store, result.Sightings, now)
			assert.NoError(t, err)
		}(block)
	}
	wg.Wait()

	plan, err := store.Get(ctx, "00122905")
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Len(t, plan.InstallmentsSeen, 2)
}

func TestMemoryStoreCopiesOnRead(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	result := Scan(sampleBlock, refDate)
	_, err := Reconcile(ctx, store, result.Sightings, time.Now())
	require.NoError(t, err)

	plan, err := store.Get(ctx, "00122905")
	require.NoError(t, err)
	plan.InstallmentsSeen[0].Number = 99

	again, err := store.Get(ctx, "00122905")
	require.NoError(t, err)
	assert.Equal(t, 3, again.InstallmentsSeen[0].Number)
}

func mustAmount(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	v, err := domain.ParseAmount(s)
	require.NoError(t, err)
	return v
}
