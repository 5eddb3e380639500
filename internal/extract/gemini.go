package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/jnst/invoice-idp/internal/model"
)

const extractorSystemPrompt = "You are an invoice analysis tool. Your task is to read an invoice document and report its key fields. You must output your response as a single valid JSON object."

const extractorUserPrompt = `Read the provided invoice document and extract the following fields:

- "vendor": the name of the company that issued the invoice, as a string.
- "total": the final total amount due, as a number without currency symbols or thousands separators.

Output a single JSON object with exactly these two keys. If a field cannot
be determined from the document, use null for that field. Do not include any
text before or after the JSON object.`

// Content types the extraction backend accepts.
var supportedContentTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
}

// GeminiExtractor implements Extractor on a Vertex AI generative model in
// JSON response mode.
type GeminiExtractor struct {
	model      *genai.GenerativeModel
	baseClient *genai.Client
}

// NewGeminiExtractor creates the Vertex AI client and configures the
// extraction model.
func NewGeminiExtractor(ctx context.Context, projectID, region string) (*GeminiExtractor, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewGeminiExtractor: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	extractorModel := baseClient.GenerativeModel("gemini-1.5-pro")
	extractorModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(extractorSystemPrompt)},
	}
	extractorModel.GenerationConfig = genai.GenerationConfig{
		// Force JSON output; low temperature for deterministic fields.
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}

	return &GeminiExtractor{
		model:      extractorModel,
		baseClient: baseClient,
	}, nil
}

// Extract sends the document to the model and parses the JSON reply.
// Fields the model reports as null are flagged, not failed.
func (g *GeminiExtractor) Extract(ctx context.Context, doc model.DocumentRef, content []byte) (*Extraction, error) {
	contentType := doc.ContentType
	if !supportedContentTypes[contentType] {
		return nil, model.Unprocessable(fmt.Errorf("unsupported content type %q for document %s", contentType, doc.Key))
	}

	filePart := genai.Blob{
		MIMEType: contentType,
		Data:     content,
	}

	resp, err := g.model.GenerateContent(ctx, filePart, genai.Text(extractorUserPrompt))
	if err != nil {
		return nil, model.Retryable(fmt.Errorf("failed to generate content from gemini: %w", err))
	}

	reply := extractText(resp)
	if reply == "" {
		// The model declined to produce anything for this document.
		return nil, model.Unprocessable(fmt.Errorf("empty model response for document %s", doc.Key))
	}

	var fields struct {
		Vendor *string  `json:"vendor"`
		Total  *float64 `json:"total"`
	}
	if err := json.Unmarshal([]byte(reply), &fields); err != nil {
		return nil, model.Retryable(fmt.Errorf("failed to parse model response: %w", err))
	}

	result := &Extraction{Vendor: UnknownVendor}
	if fields.Vendor != nil && strings.TrimSpace(*fields.Vendor) != "" {
		result.Vendor = strings.TrimSpace(*fields.Vendor)
	} else {
		result.Flags = append(result.Flags, model.FlagVendorMissing)
	}
	if fields.Total != nil {
		result.Total = *fields.Total
	} else {
		result.Flags = append(result.Flags, model.FlagTotalMissing)
	}

	return result, nil
}

// Close releases the underlying Vertex AI client.
func (g *GeminiExtractor) Close() error {
	if g.baseClient != nil {
		return g.baseClient.Close()
	}

	return nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}

	return strings.TrimSpace(sb.String())
}
