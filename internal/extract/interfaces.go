// Package extract turns uploaded invoice documents into structured fields.
// The extraction technology is pluggable: implementations only promise
// "given a document, produce an extraction or fail".
package extract

import (
	"context"

	"github.com/jnst/invoice-idp/internal/model"
)

// Fallback values for fields the backend could not read. Unextractable
// fields do not fail the extraction; they are flagged instead.
const (
	UnknownVendor = "Unknown Vendor"
)

// Extraction is the structured result of reading one invoice document.
type Extraction struct {
	Vendor string
	Total  float64
	// Flags lists the fields that could not be extracted.
	Flags []string
}

// Extractor produces a structured extraction from document content.
// Failures are classified: model.Retryable for backend
// unavailability/throttling, model.Unprocessable for documents that will
// never extract (corrupt, unsupported format).
type Extractor interface {
	Extract(ctx context.Context, doc model.DocumentRef, content []byte) (*Extraction, error)
}
