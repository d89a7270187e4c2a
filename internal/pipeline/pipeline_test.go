package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avcarvalho/statement-ingest/internal/chunker"
	"github.com/avcarvalho/statement-ingest/internal/config"
	"github.com/avcarvalho/statement-ingest/internal/domain"
	"github.com/avcarvalho/statement-ingest/internal/extract"
	"github.com/avcarvalho/statement-ingest/internal/installments"
	"github.com/avcarvalho/statement-ingest/internal/ledger"
	"github.com/avcarvalho/statement-ingest/internal/quota"
)

const faturaText = `ITAUCARD MASTERCARD
Fatura de maio de 2025

Relação de cartões da conta
5502 **** **** 1234 PLATINUM ANA VITORIA CARVALHO
4321 **** **** 5678 PLATINUM JOAO PEDRO CARVALHO
Limite total: R$ 12.500,00

Lançamentos do cartão final 1234
12/05/2025 LOJAS AMERICANAS PARC 3/6 120,00
14/05/2025 RESTAURANTE FASANO SP 250,00
20/05/2025 PAGAMENTO RECEBIDO 1.500,00-

COMPRAS PARCELADAS
PARCELAMENTO LOJAS AMERICANAS
Referência 00122905
PARC 3/6 de 12/05, valor da parcela 120,00
Valor total R$ 720,00
Juros de 2,99%
`

type stubFetch struct{}

func (stubFetch) fetch(_ context.Context, _ string) (domain.RawDocument, error) {
	return domain.RawDocument{Data: []byte("%PDF-1.4"), MIMEType: "application/pdf"}, nil
}

type stubOCR struct {
	text string
	err  error
}

func (s *stubOCR) ExtractText(_ context.Context, _ domain.RawDocument) (domain.ExtractedText, error) {
	if s.err != nil {
		return domain.ExtractedText{}, s.err
	}
	return domain.ExtractedText{Text: s.text, PageCount: 1}, nil
}

type captureWriter struct {
	mu       sync.Mutex
	payloads []ledger.ImportPayload
}

func (w *captureWriter) WriteImport(_ context.Context, payload ledger.ImportPayload) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.payloads = append(w.payloads, payload)
	return nil
}

func (w *captureWriter) last(t *testing.T) ledger.ImportPayload {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()
	require.NotEmpty(t, w.payloads)
	return w.payloads[len(w.payloads)-1]
}

type stubModel struct {
	txs   []domain.Transaction
	err   error
	calls int
}

func (m *stubModel) ExtractChunk(_ context.Context, _ chunker.Chunk, _ domain.DocumentClassification) ([]domain.Transaction, error) {
	m.calls++
	return m.txs, m.err
}

// denyQuota refuses one resource and allows everything else.
type denyQuota struct {
	blocked quota.Resource
}

func (d denyQuota) Allow(_ context.Context, r quota.Resource) error {
	if r == d.blocked {
		return fmt.Errorf("%s: %w", r, quota.ErrExhausted)
	}
	return nil
}

// fakeClock lets extraction tests spend the time budget without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// slowExtractor advances the fake clock on every call, emitting one
// transaction per chunk so coverage is countable.
type slowExtractor struct {
	clock *fakeClock
	step  time.Duration
	calls int
}

func (s *slowExtractor) ExtractChunk(_ context.Context, chunk chunker.Chunk, _ domain.DocumentClassification) ([]domain.Transaction, error) {
	s.calls++
	s.clock.Advance(s.step)
	return []domain.Transaction{{
		Date:        time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC),
		Description: "CHUNK " + chunk.Label,
		Amount:      -10,
		Currency:    "BRL",
		Source:      domain.SourcePattern,
	}}, nil
}

func testDeps(ocrText string, writer *captureWriter) Deps {
	return Deps{
		Fetch:      stubFetch{}.fetch,
		OCR:        &stubOCR{text: ocrText},
		Fallback:   extract.NewPatternExtractor("BRL"),
		Plans:      installments.NewMemoryStore(),
		Ledger:     writer,
		Extraction: config.Default().Extraction,
		Logger:     zerolog.Nop(),
		Now:        func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func TestIngestCreditCardStatement(t *testing.T) {
	writer := &captureWriter{}
	ing, err := NewIngestor(testDeps(faturaText, writer))
	require.NoError(t, err)

	payload, err := ing.Run(context.Background(), "gs://statements/fatura-maio.pdf", "doc-fatura", "application/pdf")
	require.NoError(t, err)
	require.NotNil(t, payload)

	assert.Equal(t, "doc-fatura", payload.DocumentID)
	assert.NotEmpty(t, payload.RunID)
	assert.Equal(t, domain.KindCreditCardStatement, payload.DocumentKind)
	assert.Equal(t, "ITAU", payload.Institution)
	assert.False(t, payload.Partial)
	assert.Zero(t, payload.DroppedInstallmentBlocks)

	// Cards keep statement order: primary first, dependents after.
	require.Len(t, payload.Cards, 2)
	assert.Equal(t, "5502 **** **** 1234", payload.Cards[0].CardNumberMasked)
	assert.Equal(t, "ANA VITORIA CARVALHO", payload.Cards[0].HolderName)
	assert.False(t, payload.Cards[0].IsDependent)
	assert.Equal(t, "4321 **** **** 5678", payload.Cards[1].CardNumberMasked)
	assert.Equal(t, "JOAO PEDRO CARVALHO", payload.Cards[1].HolderName)
	assert.True(t, payload.Cards[1].IsDependent)
	require.NotNil(t, payload.Cards[0].SharedCreditLimit)
	assert.True(t, payload.Cards[0].SharedCreditLimit.Equal(decimal.RequireFromString("12500")))

	// Purchases positive, the payment negative.
	require.Len(t, payload.Transactions, 3)
	assert.Equal(t, 120.0, payload.Transactions[0].Amount)
	require.NotNil(t, payload.Transactions[0].Installment)
	assert.Equal(t, 3, payload.Transactions[0].Installment.Number)
	assert.Equal(t, 6, payload.Transactions[0].Installment.Total)
	assert.Equal(t, 250.0, payload.Transactions[1].Amount)
	assert.Equal(t, -1500.0, payload.Transactions[2].Amount)

	require.Contains(t, payload.Installments, "00122905")
	plan := payload.Installments["00122905"]
	assert.Equal(t, "LOJAS AMERICANAS", plan.MerchantName)
	assert.Equal(t, 6, plan.TotalInstallments)
	assert.True(t, plan.PerInstallmentAmount.Equal(decimal.RequireFromString("120")))
	assert.True(t, plan.OriginalAmount.Equal(decimal.RequireFromString("720")))
	require.NotNil(t, plan.InterestRate)
	assert.True(t, plan.InterestRate.Equal(decimal.RequireFromString("2.99")))
	require.Len(t, plan.InstallmentsSeen, 1)
	assert.Equal(t, 3, plan.InstallmentsSeen[0].Number)

	written := writer.last(t)
	assert.Equal(t, payload.RunID, written.RunID)
	assert.Len(t, written.Transactions, 3)
}

func TestIngestDerivesDocumentID(t *testing.T) {
	writer := &captureWriter{}
	ing, err := NewIngestor(testDeps(faturaText, writer))
	require.NoError(t, err)

	first, err := ing.Run(context.Background(), "gs://statements/fatura-maio.pdf", "", "application/pdf")
	require.NoError(t, err)
	second, err := ing.Run(context.Background(), "gs://statements/fatura-maio.pdf", "", "application/pdf")
	require.NoError(t, err)

	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestIngestEmptyDocumentFails(t *testing.T) {
	writer := &captureWriter{}
	deps := testDeps("   \n\n  ", writer)
	ing, err := NewIngestor(deps)
	require.NoError(t, err)

	_, err = ing.Run(context.Background(), "gs://statements/blank.pdf", "doc-blank", "application/pdf")
	require.ErrorIs(t, err, ErrEmptyDocument)
	assert.Empty(t, writer.payloads)
}

func TestIngestOCRQuotaExhausted(t *testing.T) {
	writer := &captureWriter{}
	deps := testDeps(faturaText, writer)
	deps.Quota = denyQuota{blocked: quota.ResourceOCR}
	ing, err := NewIngestor(deps)
	require.NoError(t, err)

	_, err = ing.Run(context.Background(), "gs://statements/fatura-maio.pdf", "doc-fatura", "application/pdf")
	require.ErrorIs(t, err, quota.ErrExhausted)
	assert.Empty(t, writer.payloads)
}

func TestModelOutputUsedWhenValid(t *testing.T) {
	writer := &captureWriter{}
	deps := testDeps(faturaText, writer)
	model := &stubModel{txs: []domain.Transaction{{
		Date:        time.Date(2025, 5, 12, 0, 0, 0, 0, time.UTC),
		Description: "LOJAS AMERICANAS PARC 3/6",
		Amount:      120,
		Currency:    "BRL",
		Confidence:  0.9,
		Source:      domain.SourceModel,
	}}}
	deps.Model = model
	ing, err := NewIngestor(deps)
	require.NoError(t, err)

	payload, err := ing.Run(context.Background(), "gs://statements/fatura-maio.pdf", "doc-fatura", "application/pdf")
	require.NoError(t, err)

	require.Len(t, payload.Transactions, 1)
	assert.Equal(t, domain.SourceModel, payload.Transactions[0].Source)
	assert.Equal(t, 1, model.calls)
}

func TestSchemaViolationFallsBackToPatterns(t *testing.T) {
	writer := &captureWriter{}
	deps := testDeps(faturaText, writer)
	deps.Model = &stubModel{err: extract.ErrSchemaViolation}
	ing, err := NewIngestor(deps)
	require.NoError(t, err)

	payload, err := ing.Run(context.Background(), "gs://statements/fatura-maio.pdf", "doc-fatura", "application/pdf")
	require.NoError(t, err)

	require.Len(t, payload.Transactions, 3)
	for _, tx := range payload.Transactions {
		assert.Equal(t, domain.SourcePattern, tx.Source)
	}
}

func TestModelQuotaExhaustedFallsBackToPatterns(t *testing.T) {
	writer := &captureWriter{}
	deps := testDeps(faturaText, writer)
	model := &stubModel{}
	deps.Model = model
	deps.Quota = denyQuota{blocked: quota.ResourceModel}
	ing, err := NewIngestor(deps)
	require.NoError(t, err)

	payload, err := ing.Run(context.Background(), "gs://statements/fatura-maio.pdf", "doc-fatura", "application/pdf")
	require.NoError(t, err)

	assert.Zero(t, model.calls)
	require.Len(t, payload.Transactions, 3)
	for _, tx := range payload.Transactions {
		assert.Equal(t, domain.SourcePattern, tx.Source)
	}
}

func TestExtractionTimeBudgetProducesPartialImport(t *testing.T) {
	var lines []string
	lines = append(lines, "Extrato de conta corrente")
	for i := 0; i < 40; i++ {
		lines = append(lines, "02/05/2025 PIX ENVIADO SUPERMERCADO GUANABARA 45,90")
	}
	statement := strings.Join(lines, "\n")

	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	slow := &slowExtractor{clock: clock, step: 6 * time.Second}

	writer := &captureWriter{}
	deps := testDeps(statement, writer)
	deps.Fallback = slow
	deps.Now = clock.Now
	deps.Extraction.ChunkBudgetChars = 500
	deps.Extraction.TimeBudgetSeconds = 10
	ing, err := NewIngestor(deps)
	require.NoError(t, err)

	payload, err := ing.Run(context.Background(), "gs://statements/extrato.pdf", "doc-extrato", "application/pdf")
	require.NoError(t, err)

	totalChunks := len(chunker.Split(statement, nil, 500))
	require.Greater(t, totalChunks, 2)

	// Two chunks fit in the ten second budget; the rest are skipped and
	// the completed results are imported with the partial flag.
	assert.Equal(t, 2, slow.calls)
	assert.True(t, payload.Partial)
	assert.Len(t, payload.Transactions, 2)

	written := writer.last(t)
	assert.True(t, written.Partial)
}

func TestInstallmentPlansAccumulateAcrossRuns(t *testing.T) {
	juneText := strings.Replace(faturaText, "PARC 3/6 de 12/05, valor da parcela 120,00",
		"PARC 4/6 de 12/06, valor da parcela 120,00", 1)
	juneText = strings.Replace(juneText, "12/05/2025 LOJAS AMERICANAS PARC 3/6 120,00",
		"12/06/2025 LOJAS AMERICANAS PARC 4/6 120,00", 1)

	writer := &captureWriter{}
	deps := testDeps(faturaText, writer)
	store := installments.NewMemoryStore()
	deps.Plans = store
	ing, err := NewIngestor(deps)
	require.NoError(t, err)

	_, err = ing.Run(context.Background(), "gs://statements/fatura-maio.pdf", "doc-maio", "application/pdf")
	require.NoError(t, err)

	deps2 := testDeps(juneText, writer)
	deps2.Plans = store
	ing2, err := NewIngestor(deps2)
	require.NoError(t, err)

	payload, err := ing2.Run(context.Background(), "gs://statements/fatura-junho.pdf", "doc-junho", "application/pdf")
	require.NoError(t, err)

	plan := payload.Installments["00122905"]
	require.NotNil(t, plan)
	require.Len(t, plan.InstallmentsSeen, 2)
	assert.Equal(t, 3, plan.InstallmentsSeen[0].Number)
	assert.Equal(t, 4, plan.InstallmentsSeen[1].Number)
	assert.True(t, plan.RemainingAmount().Equal(decimal.RequireFromString("480")))
}
