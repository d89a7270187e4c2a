package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/avcarvalho/statement-ingest/internal/chunker"
	"github.com/avcarvalho/statement-ingest/internal/domain"
)

// GeminiExtractor is the primary, model-backed extraction path.
type GeminiExtractor struct {
	model    string
	currency string
}

// NewGeminiExtractor creates the model extraction path.
func NewGeminiExtractor(model, currency string) *GeminiExtractor {
	return &GeminiExtractor{model: model, currency: currency}
}

// ExtractChunk implements ChunkExtractor. A response outside the contract
// returns ErrSchemaViolation so the caller can fall back for this chunk.
func (g *GeminiExtractor) ExtractChunk(ctx context.Context, chunk chunker.Chunk, class domain.DocumentClassification) ([]domain.Transaction, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("extract chunk %q: create genai client: %w", chunk.Label, err)
	}

	prompt := buildPrompt(class, g.currency)
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
				{Text: "Statement text:\n\n" + chunk.Text},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("extract chunk %q: generate content: %w", chunk.Label, err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("extract chunk %q: empty model response: %w", chunk.Label, ErrSchemaViolation)
	}

	txs, err := parseModelOutput(rawText, g.currency)
	if err != nil {
		return nil, fmt.Errorf("extract chunk %q: %w", chunk.Label, err)
	}
	return txs, nil
}

// parseModelOutput validates the model's raw text against the contract and
// converts it. The cleanup tolerates Markdown fences the model was told not
// to emit; anything beyond that is a schema violation.
func parseModelOutput(raw, defaultCurrency string) ([]domain.Transaction, error) {
	clean := cleanModelJSON(raw)

	var items []map[string]interface{}
	if err := json.Unmarshal([]byte(clean), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}

	txs := make([]domain.Transaction, 0, len(items))
	for i, obj := range items {
		tx, err := transactionFromObject(obj, defaultCurrency)
		if err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", ErrSchemaViolation, i, err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func transactionFromObject(obj map[string]interface{}, defaultCurrency string) (domain.Transaction, error) {
	dateStr, err := getStringField(obj, "date", true)
	if err != nil {
		return domain.Transaction{}, err
	}
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("invalid date %q: %v", dateStr, err)
	}

	desc, err := getStringField(obj, "description", true)
	if err != nil {
		return domain.Transaction{}, err
	}
	amount, err := getFloat64Field(obj, "amount", true)
	if err != nil {
		return domain.Transaction{}, err
	}

	currency, err := getStringField(obj, "currency", false)
	if err != nil {
		return domain.Transaction{}, err
	}
	if currency == "" {
		currency = defaultCurrency
	}

	category, err := getOptionalStringField(obj, "category")
	if err != nil {
		return domain.Transaction{}, err
	}

	confidence, err := getOptionalFloat64Field(obj, "confidence")
	if err != nil {
		return domain.Transaction{}, err
	}
	conf := 0.7
	if confidence != nil && *confidence >= 0 && *confidence <= 1 {
		conf = *confidence
	}

	tx := domain.Transaction{
		Date:        date,
		Description: desc,
		Amount:      amount,
		Currency:    currency,
		Confidence:  conf,
		Source:      domain.SourceModel,
	}
	if category != nil {
		tx.Category = *category
	}

	if instAny, ok := obj["installment"]; ok && instAny != nil {
		instObj, ok := instAny.(map[string]interface{})
		if !ok {
			return domain.Transaction{}, fmt.Errorf("field \"installment\" has type %T, want object or null", instAny)
		}
		number, err := getFloat64Field(instObj, "number", true)
		if err != nil {
			return domain.Transaction{}, err
		}
		total, err := getFloat64Field(instObj, "total", true)
		if err != nil {
			return domain.Transaction{}, err
		}
		tx.Installment = &domain.InstallmentRef{Number: int(number), Total: int(total)}
	}

	return tx, nil
}

// cleanModelJSON strips Markdown fences and surrounding junk, keeping only
// the first "[" through the last "]".
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}

func getStringField(m map[string]interface{}, key string, required bool) (string, error) {
	v, ok := m[key]
	if !ok {
		if required {
			return "", fmt.Errorf("missing required field %q", key)
		}
		return "", nil
	}
	switch val := v.(type) {
	case string:
		if required && strings.TrimSpace(val) == "" {
			return "", fmt.Errorf("required field %q is empty", key)
		}
		return val, nil
	case nil:
		if required {
			return "", fmt.Errorf("required field %q is null", key)
		}
		return "", nil
	default:
		return "", fmt.Errorf("field %q has type %T, want string", key, v)
	}
}

func getOptionalStringField(m map[string]interface{}, key string) (*string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil, nil
		}
		return &s, nil
	default:
		return nil, fmt.Errorf("field %q has type %T, want string or null", key, v)
	}
}

func getFloat64Field(m map[string]interface{}, key string, required bool) (float64, error) {
	v, ok := m[key]
	if !ok {
		if required {
			return 0, fmt.Errorf("missing required field %q", key)
		}
		return 0, nil
	}
	switch val := v.(type) {
	case float64:
		return val, nil
	default:
		return 0, fmt.Errorf("field %q has type %T, want number", key, v)
	}
}

func getOptionalFloat64Field(m map[string]interface{}, key string) (*float64, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case float64:
		f := val
		return &f, nil
	default:
		return nil, fmt.Errorf("field %q has type %T, want number or null", key, v)
	}
}
