package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jnst/invoice-idp/internal/bus"
	"github.com/jnst/invoice-idp/internal/extract"
	"github.com/jnst/invoice-idp/internal/model"
	"github.com/jnst/invoice-idp/internal/storage"
)

// ProcessorServiceImpl implements ProcessorService. It retrieves the
// uploaded document, runs extraction, and publishes the fanout event.
// Publishing is the only external effect and happens only after a
// successful extraction.
type ProcessorServiceImpl struct {
	store     storage.DocumentStore
	extractor extract.Extractor
	publisher bus.Publisher
	now       func() time.Time
}

// NewProcessorServiceImpl creates a new ProcessorService implementation.
func NewProcessorServiceImpl(
	store storage.DocumentStore,
	extractor extract.Extractor,
	publisher bus.Publisher,
) *ProcessorServiceImpl {
	return &ProcessorServiceImpl{
		store:     store,
		extractor: extractor,
		publisher: publisher,
		now:       time.Now,
	}
}

// ProcessDocument handles one storage creation trigger. The invoice ID is
// derived deterministically from the document reference, so a redelivered
// trigger republishes under the same ID and downstream upserts stay
// idempotent. Unprocessable documents are dead-lettered here and the
// returned error tells the caller not to request redelivery.
func (s *ProcessorServiceImpl) ProcessDocument(ctx context.Context, doc model.DocumentRef) error {
	invoiceID := doc.InvoiceID()

	content, contentType, err := s.store.Read(ctx, doc.Key)
	if err != nil {
		return s.reject(ctx, doc, fmt.Errorf("failed to read document: %w", err))
	}
	if doc.ContentType == "" {
		doc.ContentType = contentType
	}

	extraction, err := s.extractor.Extract(ctx, doc, content)
	if err != nil {
		return s.reject(ctx, doc, fmt.Errorf("extraction failed: %w", err))
	}

	if len(extraction.Flags) > 0 {
		slog.Warn("extraction incomplete, publishing with flags",
			slog.String("invoice_id", invoiceID),
			slog.Any("flags", extraction.Flags),
		)
	}

	event := &model.InvoiceExtracted{
		InvoiceID:   invoiceID,
		Vendor:      extraction.Vendor,
		Total:       extraction.Total,
		SourceKey:   doc.Key,
		Flags:       extraction.Flags,
		ExtractedAt: s.now().UTC(),
	}

	if err := s.publisher.PublishInvoiceExtracted(ctx, event); err != nil {
		return fmt.Errorf("failed to publish extraction event: %w", err)
	}

	slog.Info("invoice extracted and published",
		slog.String("invoice_id", invoiceID),
		slog.String("source_key", doc.Key),
		slog.String("vendor", event.Vendor),
		slog.Float64("total", event.Total),
	)

	return nil
}

// reject records a permanently failed document on the dead-letter channel.
// Retryable errors pass through untouched so the trigger is redelivered.
func (s *ProcessorServiceImpl) reject(ctx context.Context, doc model.DocumentRef, err error) error {
	if !model.IsUnprocessable(err) {
		return err
	}

	entry := &model.DeadLetter{
		Source:  "processor",
		Reason:  err.Error(),
		Payload: doc.URI(),
	}
	if dlErr := s.publisher.PublishDeadLetter(ctx, entry); dlErr != nil {
		// The diagnostic could not be recorded; keep the trigger alive
		// rather than dropping the failure silently.
		return model.Retryable(fmt.Errorf("failed to dead-letter document %s: %w", doc.Key, dlErr))
	}

	slog.Warn("document rejected as unprocessable",
		slog.String("source_key", doc.Key),
		slog.String("reason", err.Error()),
	)

	return err
}
