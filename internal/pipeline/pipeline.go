// Package pipeline orchestrates the ingestion of one financial document:
// fetch, OCR, normalization, classification, card and installment
// extraction, chunking, transaction extraction and the ledger write.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/avcarvalho/statement-ingest/internal/chunker"
	"github.com/avcarvalho/statement-ingest/internal/config"
	"github.com/avcarvalho/statement-ingest/internal/domain"
	"github.com/avcarvalho/statement-ingest/internal/extract"
	"github.com/avcarvalho/statement-ingest/internal/gcs"
	"github.com/avcarvalho/statement-ingest/internal/installments"
	"github.com/avcarvalho/statement-ingest/internal/ledger"
	"github.com/avcarvalho/statement-ingest/internal/ocr"
	"github.com/avcarvalho/statement-ingest/internal/quota"
)

// PipelineStep represents a single step in the ingestion pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	GCSURI     string
	DocumentID string
	RunID      string
	MIMEType   string

	Raw       domain.RawDocument
	Text      string
	PageCount int

	Classification domain.DocumentClassification

	Cards                    []domain.CardHolderRecord
	Plans                    map[string]*domain.InstallmentPlan
	DroppedInstallmentBlocks int

	Chunks       []chunker.Chunk
	Transactions []domain.Transaction

	// Partial is set when the extraction time budget ran out before every
	// chunk was covered. Completed chunks are still imported.
	Partial bool
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// Deps wires the collaborators one ingestion run needs. Fetch, Now and
// Model may be left nil; NewIngestor fills in defaults.
type Deps struct {
	// Fetch loads the raw document bytes. Defaults to gcs.Fetch.
	Fetch func(ctx context.Context, uri string) (domain.RawDocument, error)

	// OCR turns raw bytes into text.
	OCR ocr.TextExtractor

	// Quota is consulted before every OCR and model call.
	Quota quota.Checker

	// Model is the primary chunk extractor; nil forces the fallback.
	Model extract.ChunkExtractor

	// Fallback is the deterministic pattern extractor.
	Fallback extract.ChunkExtractor

	// Plans persists installment plans across statement periods.
	Plans installments.Store

	// Ledger receives the finished import payload.
	Ledger ledger.Writer

	Extraction config.ExtractionConfig

	Logger zerolog.Logger

	// Now is the clock used for the extraction time budget and reference
	// dates. Defaults to time.Now.
	Now func() time.Time
}

// Ingestor runs the full ingestion pipeline for single documents.
type Ingestor struct {
	deps Deps
}

// NewIngestor validates and defaults the dependency set.
func NewIngestor(deps Deps) (*Ingestor, error) {
	if deps.OCR == nil {
		return nil, fmt.Errorf("NewIngestor: OCR extractor is required")
	}
	if deps.Fallback == nil {
		return nil, fmt.Errorf("NewIngestor: fallback extractor is required")
	}
	if deps.Plans == nil {
		return nil, fmt.Errorf("NewIngestor: installment store is required")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("NewIngestor: ledger writer is required")
	}
	if deps.Fetch == nil {
		deps.Fetch = gcs.Fetch
	}
	if deps.Quota == nil {
		deps.Quota = quota.Unlimited{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Ingestor{deps: deps}, nil
}

// Run ingests one document and returns the written payload. documentID may
// be empty, in which case a stable ID is derived from the GCS URI.
func (ing *Ingestor) Run(ctx context.Context, gcsURI, documentID, mimeType string) (*ledger.ImportPayload, error) {
	if documentID == "" {
		documentID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(gcsURI)).String()
	}

	state := &PipelineState{
		GCSURI:     gcsURI,
		DocumentID: documentID,
		RunID:      uuid.NewString(),
		MIMEType:   mimeType,
	}

	log := ing.deps.Logger.With().
		Str("document_id", state.DocumentID).
		Str("run_id", state.RunID).
		Logger()
	log.Info().Str("gcs_uri", gcsURI).Msg("ingestion started")

	p := NewPipeline(
		&FetchStep{deps: &ing.deps},
		&OCRStep{deps: &ing.deps},
		&NormalizeStep{},
		&ClassifyStep{deps: &ing.deps},
		&CardsStep{},
		&InstallmentsStep{deps: &ing.deps},
		&ChunkStep{deps: &ing.deps},
		&ExtractStep{deps: &ing.deps},
	)
	if err := p.Execute(ctx, state); err != nil {
		log.Error().Err(err).Msg("ingestion failed")
		return nil, err
	}

	payload := ledger.ImportPayload{
		DocumentID:               state.DocumentID,
		RunID:                    state.RunID,
		DocumentKind:             state.Classification.Kind,
		Institution:              state.Classification.Institution,
		Transactions:             state.Transactions,
		Cards:                    state.Cards,
		Installments:             state.Plans,
		Partial:                  state.Partial,
		DroppedInstallmentBlocks: state.DroppedInstallmentBlocks,
		ImportedAt:               ing.deps.Now().UTC(),
	}
	if err := ing.deps.Ledger.WriteImport(ctx, payload); err != nil {
		log.Error().Err(err).Msg("ledger write failed")
		return nil, err
	}

	log.Info().
		Int("transactions", len(payload.Transactions)).
		Int("cards", len(payload.Cards)).
		Int("installment_plans", len(payload.Installments)).
		Bool("partial", payload.Partial).
		Msg("ingestion finished")
	return &payload, nil
}
