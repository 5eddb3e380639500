// Package service provides business logic layer implementations.
package service

import (
	"context"

	"github.com/jnst/invoice-idp/internal/model"
)

// ProcessorService defines the extraction stage: one storage trigger in,
// at most one published InvoiceExtracted event out.
type ProcessorService interface {
	ProcessDocument(ctx context.Context, doc model.DocumentRef) error
}

// PersistorService defines the persistence consumer.
type PersistorService interface {
	OnEvent(ctx context.Context, event *model.InvoiceExtracted) error
}

// ValidatorService defines the validation/alert consumer.
type ValidatorService interface {
	OnEvent(ctx context.Context, event *model.InvoiceExtracted) error
}
