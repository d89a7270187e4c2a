package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level ingest.yaml configuration.
type Config struct {
	Extraction ExtractionConfig `yaml:"extraction"`
	Quota      QuotaConfig      `yaml:"quota"`
	GCS        GCSConfig        `yaml:"gcs"`
	BigQuery   BigQueryConfig   `yaml:"bigquery"`
}

// ExtractionConfig controls the model path and chunking budgets.
type ExtractionConfig struct {
	// ModelName is the Gemini model used for transaction extraction.
	ModelName string `yaml:"model_name"`
	// ChunkBudgetChars bounds the size of a single extraction call.
	ChunkBudgetChars int `yaml:"chunk_budget_chars"`
	// TimeBudgetSeconds is the aggregate wall-clock budget for all
	// extraction calls of one document. Zero disables the budget.
	TimeBudgetSeconds int `yaml:"time_budget_seconds"`
	// DisableModel forces the deterministic fallback path.
	DisableModel bool `yaml:"disable_model"`
	// DefaultCurrency is assumed when a statement states no currency.
	DefaultCurrency string `yaml:"default_currency"`
}

// TimeBudget returns the extraction time budget as a duration.
func (c ExtractionConfig) TimeBudget() time.Duration {
	return time.Duration(c.TimeBudgetSeconds) * time.Second
}

// QuotaConfig bounds daily calls to the external collaborators.
type QuotaConfig struct {
	DailyOCRCalls   int `yaml:"daily_ocr_calls"`
	DailyModelCalls int `yaml:"daily_model_calls"`
}

// GCSConfig points at the bucket holding uploaded documents.
type GCSConfig struct {
	Bucket string `yaml:"bucket"`
}

// BigQueryConfig points at the ledger dataset.
type BigQueryConfig struct {
	ProjectID string `yaml:"project_id"`
	DatasetID string `yaml:"dataset_id"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Extraction: ExtractionConfig{
			ModelName:         "gemini-2.5-flash",
			ChunkBudgetChars:  12000,
			TimeBudgetSeconds: 90,
			DefaultCurrency:   "BRL",
		},
		Quota: QuotaConfig{
			DailyOCRCalls:   200,
			DailyModelCalls: 500,
		},
		BigQuery: BigQueryConfig{
			DatasetID: "finance",
		},
	}
}

// Load reads an ingest.yaml file from disk, applying defaults for any
// omitted field. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Extraction.ChunkBudgetChars <= 0 {
		return fmt.Errorf("config: extraction.chunk_budget_chars must be positive")
	}
	if c.Extraction.ModelName == "" && !c.Extraction.DisableModel {
		return fmt.Errorf("config: extraction.model_name is required unless the model is disabled")
	}
	if c.Extraction.TimeBudgetSeconds < 0 {
		return fmt.Errorf("config: extraction.time_budget_seconds cannot be negative")
	}
	return nil
}
