package ocr

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/avcarvalho/statement-ingest/internal/domain"
)

// GeminiExtractor sends the document to a Gemini vision model and asks for
// the raw text back. It handles scanned statements the local PDF reader
// cannot.
type GeminiExtractor struct {
	model string
}

// NewGeminiExtractor creates a vision-model text extractor.
func NewGeminiExtractor(model string) *GeminiExtractor {
	return &GeminiExtractor{model: model}
}

const visionPrompt = "Extract ALL text from the attached financial document.\n" +
	"Return the plain text exactly as printed, preserving line breaks and reading order.\n" +
	"Do not summarize, translate, or add commentary."

// ExtractText implements TextExtractor.
func (e *GeminiExtractor) ExtractText(ctx context.Context, doc domain.RawDocument) (domain.ExtractedText, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("gemini extractor: create client: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: visionPrompt},
				{
					InlineData: &genai.Blob{
						MIMEType: doc.MIMEType,
						Data:     doc.Data,
					},
				},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, e.model, contents, nil)
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("gemini extractor: generate content: %w", err)
	}

	return domain.ExtractedText{Text: resp.Text(), PageCount: 0}, nil
}

// Chain tries extractors in order until one produces non-empty text. An
// implementation error moves on to the next extractor; only the last error
// is surfaced when every extractor comes up empty.
type Chain struct {
	extractors []TextExtractor
}

// NewChain builds a TextExtractor that falls through implementations.
func NewChain(extractors ...TextExtractor) *Chain {
	return &Chain{extractors: extractors}
}

// ExtractText implements TextExtractor.
func (c *Chain) ExtractText(ctx context.Context, doc domain.RawDocument) (domain.ExtractedText, error) {
	var lastErr error
	for _, e := range c.extractors {
		out, err := e.ExtractText(ctx, doc)
		if err != nil {
			lastErr = err
			continue
		}
		if out.Text != "" {
			return out, nil
		}
	}
	if lastErr != nil {
		return domain.ExtractedText{}, lastErr
	}
	return domain.ExtractedText{}, nil
}
