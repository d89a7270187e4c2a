package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"

	"github.com/avcarvalho/statement-ingest/internal/domain"
)

const (
	transactionsTable     = "transactions"
	cardHoldersTable      = "card_holders"
	installmentPlansTable = "installment_plans"
	runsTable             = "ingestion_runs"
)

// BigQueryWriter persists import payloads into a BigQuery dataset.
type BigQueryWriter struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	logger    zerolog.Logger
}

// NewBigQueryWriter creates a writer with its own client.
func NewBigQueryWriter(ctx context.Context, projectID, datasetID string, logger zerolog.Logger) (*BigQueryWriter, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryWriter: bigquery client: %w", err)
	}
	return NewBigQueryWriterWithClient(client, projectID, datasetID, logger), nil
}

// NewBigQueryWriterWithClient creates a writer around an existing client.
// The caller keeps ownership of the client.
func NewBigQueryWriterWithClient(client *bigquery.Client, projectID, datasetID string, logger zerolog.Logger) *BigQueryWriter {
	return &BigQueryWriter{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
		logger:    logger.With().Str("component", "ledger").Logger(),
	}
}

// Close releases the underlying client.
func (w *BigQueryWriter) Close() error {
	return w.client.Close()
}

func (w *BigQueryWriter) table(name string) *bigquery.Table {
	return w.client.DatasetInProject(w.projectID, w.datasetID).Table(name)
}

// WriteImport implements Writer.
func (w *BigQueryWriter) WriteImport(ctx context.Context, payload ImportPayload) error {
	importedAt := payload.ImportedAt
	if importedAt.IsZero() {
		importedAt = time.Now().UTC()
	}

	if len(payload.Transactions) > 0 {
		rows := make([]*TransactionRow, 0, len(payload.Transactions))
		for _, t := range payload.Transactions {
			rows = append(rows, transactionRow(payload, t, importedAt))
		}
		if err := w.table(transactionsTable).Inserter().Put(ctx, rows); err != nil {
			return fmt.Errorf("WriteImport: inserting transactions: %w", err)
		}
	}

	if len(payload.Cards) > 0 {
		rows := make([]*CardHolderRow, 0, len(payload.Cards))
		for _, c := range payload.Cards {
			rows = append(rows, cardHolderRow(payload, c, importedAt))
		}
		if err := w.table(cardHoldersTable).Inserter().Put(ctx, rows); err != nil {
			return fmt.Errorf("WriteImport: inserting card holders: %w", err)
		}
	}

	if len(payload.Installments) > 0 {
		rows := make([]*InstallmentPlanRow, 0, len(payload.Installments))
		refs := make([]string, 0, len(payload.Installments))
		for ref := range payload.Installments {
			refs = append(refs, ref)
		}
		sort.Strings(refs)
		for _, ref := range refs {
			rows = append(rows, installmentPlanRow(payload.Installments[ref]))
		}
		if err := w.table(installmentPlansTable).Inserter().Put(ctx, rows); err != nil {
			return fmt.Errorf("WriteImport: inserting installment plans: %w", err)
		}
	}

	run := &RunRow{
		RunID:                    payload.RunID,
		DocumentID:               payload.DocumentID,
		DocumentKind:             string(payload.DocumentKind),
		Institution:              payload.Institution,
		Partial:                  payload.Partial,
		TransactionCount:         int64(len(payload.Transactions)),
		CardCount:                int64(len(payload.Cards)),
		InstallmentPlanCount:     int64(len(payload.Installments)),
		DroppedInstallmentBlocks: int64(payload.DroppedInstallmentBlocks),
		ImportedTS:               importedAt,
	}
	if err := w.table(runsTable).Inserter().Put(ctx, run); err != nil {
		return fmt.Errorf("WriteImport: inserting run record: %w", err)
	}

	w.logger.Info().
		Str("document_id", payload.DocumentID).
		Str("run_id", payload.RunID).
		Int("transactions", len(payload.Transactions)).
		Int("cards", len(payload.Cards)).
		Int("installment_plans", len(payload.Installments)).
		Bool("partial", payload.Partial).
		Msg("import written")
	return nil
}

// QueryTransactionsByDateRange returns imported transactions between the two
// dates inclusive, ordered by transaction date.
func (w *BigQueryWriter) QueryTransactionsByDateRange(ctx context.Context, startDate, endDate time.Time) ([]*TransactionRow, error) {
	q := w.client.Query(fmt.Sprintf(`
		SELECT
			transaction_id,
			document_id,
			run_id,
			transaction_date,
			amount,
			currency,
			description,
			category,
			installment_number,
			installment_total,
			confidence,
			source,
			imported_ts
		FROM `+"`%s.%s.%s`"+`
		WHERE transaction_date >= @start_date
		  AND transaction_date <= @end_date
		ORDER BY transaction_date, imported_ts
	`, w.projectID, w.datasetID, transactionsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "start_date", Value: startDate.Format("2006-01-02")},
		{Name: "end_date", Value: endDate.Format("2006-01-02")},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryTransactionsByDateRange: query read: %w", err)
	}

	var rows []*TransactionRow
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryTransactionsByDateRange: iter next: %w", err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}

func transactionRow(payload ImportPayload, t domain.Transaction, importedAt time.Time) *TransactionRow {
	row := &TransactionRow{
		TransactionID:   TransactionID(payload.DocumentID, t),
		DocumentID:      payload.DocumentID,
		RunID:           payload.RunID,
		TransactionDate: civil.DateOf(t.Date),
		Amount:          new(big.Rat).SetFloat64(t.Amount),
		Currency:        t.Currency,
		Description:     t.Description,
		Confidence:      t.Confidence,
		Source:          string(t.Source),
		ImportedTS:      importedAt,
	}
	if t.Category != "" {
		row.Category = bigquery.NullString{StringVal: t.Category, Valid: true}
	}
	if t.Installment != nil {
		row.InstallmentNumber = bigquery.NullInt64{Int64: int64(t.Installment.Number), Valid: true}
		row.InstallmentTotal = bigquery.NullInt64{Int64: int64(t.Installment.Total), Valid: true}
	}
	return row
}

func cardHolderRow(payload ImportPayload, c domain.CardHolderRecord, importedAt time.Time) *CardHolderRow {
	row := &CardHolderRow{
		DocumentID:       payload.DocumentID,
		RunID:            payload.RunID,
		CardNumberMasked: c.CardNumberMasked,
		HolderName:       c.HolderName,
		IsDependent:      c.IsDependent,
		ImportedTS:       importedAt,
	}
	if c.SharedCreditLimit != nil {
		row.SharedCreditLimit = c.SharedCreditLimit.Rat()
	}
	return row
}

func installmentPlanRow(p *domain.InstallmentPlan) *InstallmentPlanRow {
	row := &InstallmentPlanRow{
		ReferenceID:          p.ReferenceID,
		MerchantName:         p.MerchantName,
		OriginalAmount:       p.OriginalAmount.Rat(),
		TotalInstallments:    int64(p.TotalInstallments),
		PerInstallmentAmount: p.PerInstallmentAmount.Rat(),
		FirstSeenTS:          p.FirstSeen,
		UpdatedTS:            p.UpdatedAt,
	}
	if p.InterestRate != nil {
		row.InterestRate = p.InterestRate.Rat()
	}
	for _, e := range p.InstallmentsSeen {
		row.InstallmentsSeen = append(row.InstallmentsSeen, InstallmentEntryRow{
			Number: int64(e.Number),
			Date:   civil.DateOf(e.Date),
			Amount: e.Amount.Rat(),
		})
	}
	return row
}
