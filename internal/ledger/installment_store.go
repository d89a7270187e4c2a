package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"

	"github.com/avcarvalho/statement-ingest/internal/domain"
)

// ratScale is the decimal precision used when reading NUMERIC columns back.
const ratScale = 6

// InstallmentStore is a BigQuery-backed installments.Store. Reads query the
// latest row per reference; writes append a new row, so the plan's history
// across statement periods stays queryable.
//
// Update serialization is per-process: each reference takes a dedicated
// mutex for the read-merge-write cycle. Multi-instance deployments need a
// single worker per reference upstream.
type InstallmentStore struct {
	client    *bigquery.Client
	projectID string
	datasetID string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewInstallmentStore creates a store around an existing client. The caller
// keeps ownership of the client.
func NewInstallmentStore(client *bigquery.Client, projectID, datasetID string) *InstallmentStore {
	return &InstallmentStore{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (s *InstallmentStore) refLock(ref string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[ref]
	if !ok {
		l = &sync.Mutex{}
		s.locks[ref] = l
	}
	return l
}

// Get returns the latest stored plan for ref, or nil when none exists.
func (s *InstallmentStore) Get(ctx context.Context, ref string) (*domain.InstallmentPlan, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT
			reference_id,
			merchant_name,
			original_amount,
			total_installments,
			per_installment_amount,
			interest_rate,
			installments_seen,
			first_seen_ts,
			updated_ts
		FROM `+"`%s.%s.%s`"+`
		WHERE reference_id = @reference_id
		ORDER BY updated_ts DESC
		LIMIT 1
	`, s.projectID, s.datasetID, installmentPlansTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "reference_id", Value: ref},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("InstallmentStore.Get: query read: %w", err)
	}

	var row InstallmentPlanRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("InstallmentStore.Get: reading row: %w", err)
	}
	return planFromRow(&row), nil
}

// Update applies fn to the latest stored plan for ref and appends the
// result as a new row.
func (s *InstallmentStore) Update(ctx context.Context, ref string, fn func(existing *domain.InstallmentPlan) (*domain.InstallmentPlan, error)) (*domain.InstallmentPlan, error) {
	l := s.refLock(ref)
	l.Lock()
	defer l.Unlock()

	existing, err := s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}

	updated, err := fn(existing)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, nil
	}
	if updated.UpdatedAt.IsZero() {
		updated.UpdatedAt = time.Now().UTC()
	}

	row := installmentPlanRow(updated)
	table := s.client.DatasetInProject(s.projectID, s.datasetID).Table(installmentPlansTable)
	if err := table.Inserter().Put(ctx, row); err != nil {
		return nil, fmt.Errorf("InstallmentStore.Update: inserting plan: %w", err)
	}
	return updated, nil
}

// List returns the latest stored row for every reference.
func (s *InstallmentStore) List(ctx context.Context) ([]*domain.InstallmentPlan, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT
			reference_id,
			merchant_name,
			original_amount,
			total_installments,
			per_installment_amount,
			interest_rate,
			installments_seen,
			first_seen_ts,
			updated_ts
		FROM `+"`%s.%s.%s`"+`
		QUALIFY ROW_NUMBER() OVER (PARTITION BY reference_id ORDER BY updated_ts DESC) = 1
		ORDER BY reference_id
	`, s.projectID, s.datasetID, installmentPlansTable))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("InstallmentStore.List: query read: %w", err)
	}

	var plans []*domain.InstallmentPlan
	for {
		var row InstallmentPlanRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("InstallmentStore.List: iter next: %w", err)
		}
		plans = append(plans, planFromRow(&row))
	}
	return plans, nil
}

func planFromRow(row *InstallmentPlanRow) *domain.InstallmentPlan {
	plan := &domain.InstallmentPlan{
		ReferenceID:       row.ReferenceID,
		MerchantName:      row.MerchantName,
		TotalInstallments: int(row.TotalInstallments),
		FirstSeen:         row.FirstSeenTS,
		UpdatedAt:         row.UpdatedTS,
	}
	if row.OriginalAmount != nil {
		plan.OriginalAmount = decimal.NewFromBigRat(row.OriginalAmount, ratScale)
	}
	if row.PerInstallmentAmount != nil {
		plan.PerInstallmentAmount = decimal.NewFromBigRat(row.PerInstallmentAmount, ratScale)
	}
	if row.InterestRate != nil {
		rate := decimal.NewFromBigRat(row.InterestRate, ratScale)
		plan.InterestRate = &rate
	}
	for _, e := range row.InstallmentsSeen {
		entry := domain.InstallmentEntry{
			Number: int(e.Number),
			Date:   e.Date.In(time.UTC),
		}
		if e.Amount != nil {
			entry.Amount = decimal.NewFromBigRat(e.Amount, ratScale)
		}
		plan.InstallmentsSeen = append(plan.InstallmentsSeen, entry)
	}
	return plan
}
