package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/avcarvalho/statement-ingest/internal/cards"
	"github.com/avcarvalho/statement-ingest/internal/chunker"
	"github.com/avcarvalho/statement-ingest/internal/classify"
	"github.com/avcarvalho/statement-ingest/internal/domain"
	"github.com/avcarvalho/statement-ingest/internal/extract"
	"github.com/avcarvalho/statement-ingest/internal/installments"
	"github.com/avcarvalho/statement-ingest/internal/normalize"
	"github.com/avcarvalho/statement-ingest/internal/quota"
)

// Step 1: FetchStep loads the raw document bytes.
type FetchStep struct {
	deps *Deps
}

func (s *FetchStep) Execute(ctx context.Context, state *PipelineState) error {
	raw, err := s.deps.Fetch(ctx, state.GCSURI)
	if err != nil {
		return fmt.Errorf("fetching document: %w", err)
	}
	if state.MIMEType != "" {
		raw.MIMEType = state.MIMEType
	}
	state.Raw = raw
	return nil
}

// Step 2: OCRStep turns the raw bytes into text. An empty result is a
// document-level failure: nothing downstream can run without text.
type OCRStep struct {
	deps *Deps
}

func (s *OCRStep) Execute(ctx context.Context, state *PipelineState) error {
	if err := s.deps.Quota.Allow(ctx, quota.ResourceOCR); err != nil {
		return fmt.Errorf("ocr quota: %w", err)
	}
	extracted, err := s.deps.OCR.ExtractText(ctx, state.Raw)
	if err != nil {
		return fmt.Errorf("extracting text: %w", err)
	}
	if strings.TrimSpace(extracted.Text) == "" {
		return ErrEmptyDocument
	}
	state.Text = extracted.Text
	state.PageCount = extracted.PageCount
	return nil
}

// Step 3: NormalizeStep canonicalizes whitespace and encoding.
type NormalizeStep struct{}

func (s *NormalizeStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Text = normalize.Text(state.Text)
	if state.Text == "" {
		return ErrEmptyDocument
	}
	return nil
}

// Step 4: ClassifyStep detects the document kind and institution.
type ClassifyStep struct {
	deps *Deps
}

func (s *ClassifyStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Classification = classify.Classify(state.Text)
	s.deps.Logger.Debug().
		Str("kind", string(state.Classification.Kind)).
		Str("institution", state.Classification.Institution).
		Str("confidence", string(state.Classification.Confidence)).
		Msg("document classified")
	return nil
}

// Step 5: CardsStep extracts card holder records. Only credit card
// statements carry a card relation.
type CardsStep struct{}

func (s *CardsStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.Classification.Kind != domain.KindCreditCardStatement {
		return nil
	}
	state.Cards = cards.Extract(state.Text)
	return nil
}

// Step 6: InstallmentsStep scans for parcelamento blocks and reconciles
// them into the plan store.
type InstallmentsStep struct {
	deps *Deps
}

func (s *InstallmentsStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.Classification.Kind != domain.KindCreditCardStatement {
		return nil
	}
	scan := installments.Scan(state.Text, s.deps.Now().UTC())
	state.DroppedInstallmentBlocks = scan.DroppedBlocks
	if scan.DroppedBlocks > 0 {
		s.deps.Logger.Warn().
			Str("document_id", state.DocumentID).
			Int("dropped_blocks", scan.DroppedBlocks).
			Msg("installment blocks without reference or counter were dropped")
	}
	if len(scan.Sightings) == 0 {
		return nil
	}
	plans, err := installments.Reconcile(ctx, s.deps.Plans, scan.Sightings, s.deps.Now().UTC())
	if err != nil {
		return fmt.Errorf("reconciling installments: %w", err)
	}
	state.Plans = plans
	return nil
}

// Step 7: ChunkStep splits the text into extraction chunks.
type ChunkStep struct {
	deps *Deps
}

func (s *ChunkStep) Execute(ctx context.Context, state *PipelineState) error {
	sections := chunker.Sections(state.Text, state.Classification.Kind)
	state.Chunks = chunker.Split(state.Text, sections, s.deps.Extraction.ChunkBudgetChars)
	return nil
}

// Step 8: ExtractStep runs transaction extraction chunk by chunk under the
// aggregate time budget. Chunks finished before the budget ran out are kept
// and the run is flagged partial.
type ExtractStep struct {
	deps *Deps
}

func (s *ExtractStep) Execute(ctx context.Context, state *PipelineState) error {
	budget := s.deps.Extraction.TimeBudget()
	start := s.deps.Now()

	var txs []domain.Transaction
	failedChunks := 0
	covered := 0

	for _, chunk := range state.Chunks {
		if budget > 0 && s.deps.Now().Sub(start) >= budget {
			state.Partial = true
			s.deps.Logger.Warn().
				Str("document_id", state.DocumentID).
				Int("covered", covered).
				Int("total", len(state.Chunks)).
				Msg("extraction time budget exhausted")
			break
		}

		chunkTxs, err := s.extractChunk(ctx, chunk, state.Classification)
		if err != nil {
			failedChunks++
			s.deps.Logger.Error().Err(err).
				Str("chunk", chunk.Label).
				Msg("chunk extraction failed")
			continue
		}
		covered++
		txs = append(txs, chunkTxs...)
	}

	if covered == 0 && failedChunks > 0 {
		return fmt.Errorf("%w: all %d chunks failed", ErrExtractionUnavailable, failedChunks)
	}

	state.Transactions = txs
	return nil
}

// extractChunk tries the model first and falls back to pattern extraction
// on schema violations, model errors, or an exhausted model quota.
func (s *ExtractStep) extractChunk(ctx context.Context, chunk chunker.Chunk, class domain.DocumentClassification) ([]domain.Transaction, error) {
	if s.deps.Model != nil && !s.deps.Extraction.DisableModel {
		if err := s.deps.Quota.Allow(ctx, quota.ResourceModel); err != nil {
			if !errors.Is(err, quota.ErrExhausted) {
				return nil, err
			}
			s.deps.Logger.Warn().Str("chunk", chunk.Label).Msg("model quota exhausted, using pattern fallback")
		} else {
			txs, err := s.deps.Model.ExtractChunk(ctx, chunk, class)
			if err == nil {
				return txs, nil
			}
			if errors.Is(err, extract.ErrSchemaViolation) {
				s.deps.Logger.Warn().Str("chunk", chunk.Label).Msg("model output rejected, using pattern fallback")
			} else {
				s.deps.Logger.Warn().Err(err).Str("chunk", chunk.Label).Msg("model call failed, using pattern fallback")
			}
		}
	}
	return s.deps.Fallback.ExtractChunk(ctx, chunk, class)
}
