package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/avcarvalho/statement-ingest/internal/config"
	"github.com/avcarvalho/statement-ingest/internal/extract"
	"github.com/avcarvalho/statement-ingest/internal/gcs"
	"github.com/avcarvalho/statement-ingest/internal/jobs"
	"github.com/avcarvalho/statement-ingest/internal/jobs/inmemory"
	"github.com/avcarvalho/statement-ingest/internal/ledger"
	"github.com/avcarvalho/statement-ingest/internal/logger"
	"github.com/avcarvalho/statement-ingest/internal/ocr"
	"github.com/avcarvalho/statement-ingest/internal/pipeline"
	"github.com/avcarvalho/statement-ingest/internal/quota"
)

func main() {
	log := logger.New("worker")

	configPath := flag.String("config", "", "Path to ingest.yaml")
	workers := flag.Int("workers", 2, "Number of concurrent ingestion workers")
	gcsURIs := flag.String("gcs-uris", "", "Comma-separated GCS URIs to enqueue at startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	bqClient, err := bigquery.NewClient(ctx, cfg.BigQuery.ProjectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer bqClient.Close()

	ing, err := buildIngestor(cfg, bqClient, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build ingestion pipeline")
	}

	// In production the queue would be Cloud Tasks or Pub/Sub; the
	// in-memory queue serves single-instance deployments.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, *workers, jobStore, log)

	handler := func(ctx context.Context, job jobs.Job) error {
		docJob, ok := job.(*jobs.ProcessDocumentJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", docJob.JobID).
			Str("document_id", docJob.DocumentID).
			Str("gcs_uri", docJob.GCSURI).
			Msg("Processing document job")

		_, err := ing.Run(ctx, docJob.GCSURI, docJob.DocumentID, docJob.MIMEType)
		return err
	}

	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}
	log.Info().Int("workers", *workers).Msg("Worker service started, waiting for jobs")

	if *gcsURIs != "" {
		for _, uri := range strings.Split(*gcsURIs, ",") {
			uri = strings.TrimSpace(uri)
			if uri == "" {
				continue
			}
			job := &jobs.ProcessDocumentJob{
				JobID:      uuid.NewString(),
				GCSURI:     uri,
				MIMEType:   gcs.MIMEFromName(uri),
				MaxRetries: 2,
			}
			if err := jobQueue.PublishProcessDocument(ctx, job); err != nil {
				log.Error().Err(err).Str("gcs_uri", uri).Msg("Failed to enqueue document")
			}
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Worker service exited")
}

func buildIngestor(cfg *config.Config, bqClient *bigquery.Client, log zerolog.Logger) (*pipeline.Ingestor, error) {
	deps := pipeline.Deps{
		OCR: ocr.NewChain(
			ocr.NewPDFExtractor(),
			ocr.NewGeminiExtractor(cfg.Extraction.ModelName),
		),
		Quota: quota.NewDailyCounter(map[quota.Resource]int{
			quota.ResourceOCR:   cfg.Quota.DailyOCRCalls,
			quota.ResourceModel: cfg.Quota.DailyModelCalls,
		}),
		Fallback:   extract.NewPatternExtractor(cfg.Extraction.DefaultCurrency),
		Plans:      ledger.NewInstallmentStore(bqClient, cfg.BigQuery.ProjectID, cfg.BigQuery.DatasetID),
		Ledger:     ledger.NewBigQueryWriterWithClient(bqClient, cfg.BigQuery.ProjectID, cfg.BigQuery.DatasetID, log),
		Extraction: cfg.Extraction,
		Logger:     log,
	}
	if !cfg.Extraction.DisableModel {
		deps.Model = extract.NewGeminiExtractor(cfg.Extraction.ModelName, cfg.Extraction.DefaultCurrency)
	}
	return pipeline.NewIngestor(deps)
}
