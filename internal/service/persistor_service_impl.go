package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jnst/invoice-idp/internal/model"
	"github.com/jnst/invoice-idp/internal/repository"
)

// PersistorServiceImpl implements PersistorService. Its single side effect
// is the keyed upsert; it never talks to the validation path.
type PersistorServiceImpl struct {
	invoiceRepo repository.InvoiceRepository
	now         func() time.Time
}

// NewPersistorServiceImpl creates a new PersistorService implementation.
func NewPersistorServiceImpl(invoiceRepo repository.InvoiceRepository) *PersistorServiceImpl {
	return &PersistorServiceImpl{
		invoiceRepo: invoiceRepo,
		now:         time.Now,
	}
}

// OnEvent upserts the record keyed by invoice ID. Processing the same
// event twice produces the same final state, which makes at-least-once
// redelivery safe.
func (s *PersistorServiceImpl) OnEvent(ctx context.Context, event *model.InvoiceExtracted) error {
	if err := event.Validate(); err != nil {
		return model.Unprocessable(fmt.Errorf("invalid event: %w", err))
	}

	record := model.RecordFromEvent(event, s.now().UTC())

	if err := s.invoiceRepo.Upsert(ctx, record); err != nil {
		return fmt.Errorf("failed to persist invoice %s: %w", event.InvoiceID, err)
	}

	slog.Info("invoice persisted",
		slog.String("invoice_id", record.InvoiceID),
		slog.String("status", record.Status),
	)

	return nil
}
