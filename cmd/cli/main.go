package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"

	"github.com/avcarvalho/statement-ingest/internal/config"
	"github.com/avcarvalho/statement-ingest/internal/extract"
	"github.com/avcarvalho/statement-ingest/internal/gcs"
	"github.com/avcarvalho/statement-ingest/internal/ledger"
	"github.com/avcarvalho/statement-ingest/internal/logger"
	"github.com/avcarvalho/statement-ingest/internal/ocr"
	"github.com/avcarvalho/statement-ingest/internal/pipeline"
	"github.com/avcarvalho/statement-ingest/internal/quota"
)

func main() {
	log := logger.New("cli")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "ingest":
		runIngest(log)
	case "upload":
		runUpload(log)
	case "plans":
		runPlans(log)
	case "transactions":
		runTransactions(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Statement Ingest CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  ingest        Ingest a statement or fatura from GCS")
	fmt.Println("  upload        Upload a document to GCS")
	fmt.Println("  plans         List reconstructed installment plans")
	fmt.Println("  transactions  List imported transactions for a date range")
	fmt.Println("  help          Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func loadConfig(path string, log zerolog.Logger) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to load configuration")
	}
	return cfg
}

func runIngest(log zerolog.Logger) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	gcsURI := fs.String("gcs-uri", "", "GCS URI of the document")
	documentID := fs.String("document-id", "", "Document ID (derived from the URI when empty)")
	configPath := fs.String("config", "", "Path to ingest.yaml")
	fs.Parse(os.Args[2:])

	if *gcsURI == "" {
		log.Fatal().Msg("Error: --gcs-uri is required")
	}

	cfg := loadConfig(*configPath, log)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	bqClient, err := bigquery.NewClient(ctx, cfg.BigQuery.ProjectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer bqClient.Close()

	ing, err := newIngestor(cfg, bqClient, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build ingestion pipeline")
	}

	log.Info().Str("gcs_uri", *gcsURI).Msg("Starting ingestion")
	payload, err := ing.Run(ctx, *gcsURI, *documentID, gcs.MIMEFromName(*gcsURI))
	if err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}

	fmt.Printf("Imported %d transactions, %d cards, %d installment plans (partial=%v)\n",
		len(payload.Transactions), len(payload.Cards), len(payload.Installments), payload.Partial)
}

func runUpload(log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	bucketName := fs.String("bucket", "", "GCS bucket name (defaults to the configured bucket)")
	objectName := fs.String("object", "", "GCS object name (defaults to filename)")
	filePath := fs.String("file", "", "Path to the local document")
	configPath := fs.String("config", "", "Path to ingest.yaml")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		log.Fatal().Msg("Usage: cli upload -file PATH [-bucket NAME] [-object NAME]")
	}

	cfg := loadConfig(*configPath, log)
	if *bucketName == "" {
		*bucketName = cfg.GCS.Bucket
	}
	if *bucketName == "" {
		log.Fatal().Msg("Error: no bucket given and none configured")
	}
	if *objectName == "" {
		*objectName = filepath.Base(*filePath)
	}

	ctx := logger.WithContext(context.Background(), log)

	log.Info().
		Str("bucket", *bucketName).
		Str("object", *objectName).
		Str("file", *filePath).
		Msg("Uploading document to GCS")

	if err := gcs.Upload(ctx, *bucketName, *objectName, *filePath); err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	fmt.Printf("Uploaded %s to gs://%s/%s\n", *filePath, *bucketName, *objectName)
}

func runPlans(log zerolog.Logger) {
	fs := flag.NewFlagSet("plans", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to ingest.yaml")
	fs.Parse(os.Args[2:])

	cfg := loadConfig(*configPath, log)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	bqClient, err := bigquery.NewClient(ctx, cfg.BigQuery.ProjectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer bqClient.Close()

	store := ledger.NewInstallmentStore(bqClient, cfg.BigQuery.ProjectID, cfg.BigQuery.DatasetID)
	plans, err := store.List(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list installment plans")
	}

	if len(plans) == 0 {
		fmt.Println("No installment plans stored.")
		return
	}
	for _, p := range plans {
		fmt.Printf("%s  %-30s  %d/%d seen  per=%s  original=%s  remaining=%s\n",
			p.ReferenceID, p.MerchantName, len(p.InstallmentsSeen), p.TotalInstallments,
			p.PerInstallmentAmount.StringFixed(2), p.OriginalAmount.StringFixed(2),
			p.RemainingAmount().StringFixed(2))
	}
}

func runTransactions(log zerolog.Logger) {
	fs := flag.NewFlagSet("transactions", flag.ExitOnError)
	from := fs.String("from", "", "Start date (YYYY-MM-DD)")
	to := fs.String("to", "", "End date (YYYY-MM-DD)")
	configPath := fs.String("config", "", "Path to ingest.yaml")
	fs.Parse(os.Args[2:])

	if *from == "" || *to == "" {
		log.Fatal().Msg("Usage: cli transactions -from YYYY-MM-DD -to YYYY-MM-DD")
	}
	startDate, err := time.Parse("2006-01-02", *from)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -from date")
	}
	endDate, err := time.Parse("2006-01-02", *to)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -to date")
	}

	cfg := loadConfig(*configPath, log)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	writer, err := ledger.NewBigQueryWriter(ctx, cfg.BigQuery.ProjectID, cfg.BigQuery.DatasetID, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create ledger client")
	}
	defer writer.Close()

	rows, err := writer.QueryTransactionsByDateRange(ctx, startDate, endDate)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to query transactions")
	}

	for _, r := range rows {
		amount, _ := r.Amount.Float64()
		fmt.Printf("%s  %-40s  %10.2f %s\n", r.TransactionDate, r.Description, amount, r.Currency)
	}
	fmt.Printf("%d transactions\n", len(rows))
}

// newIngestor wires the production dependency set: PDF text extraction with
// a Gemini vision fallback, the Gemini chunk extractor with the pattern
// fallback, daily quotas and the BigQuery ledger.
func newIngestor(cfg *config.Config, bqClient *bigquery.Client, log zerolog.Logger) (*pipeline.Ingestor, error) {
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
