package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jnst/invoice-idp/internal/bus"
	"github.com/jnst/invoice-idp/internal/model"
)

// ValidatorServiceImpl implements ValidatorService. The rule is a pure
// function of the event's own fields: no persisted state, no dependency on
// whether or when the persistence consumer ran. Duplicate alerts under
// redelivery are accepted; instances do not share memory, so no local
// dedup is attempted.
type ValidatorServiceImpl struct {
	publisher bus.Publisher
	threshold float64
}

// NewValidatorServiceImpl creates a new ValidatorService implementation
// with the configured value threshold.
func NewValidatorServiceImpl(publisher bus.Publisher, threshold float64) *ValidatorServiceImpl {
	return &ValidatorServiceImpl{
		publisher: publisher,
		threshold: threshold,
	}
}

// OnEvent alerts when the total strictly exceeds the threshold. A total
// equal to the threshold does not alert.
func (s *ValidatorServiceImpl) OnEvent(ctx context.Context, event *model.InvoiceExtracted) error {
	if err := event.Validate(); err != nil {
		return model.Unprocessable(fmt.Errorf("invalid event: %w", err))
	}

	if event.Total <= s.threshold {
		slog.Info("invoice within approved limits",
			slog.String("invoice_id", event.InvoiceID),
			slog.Float64("total", event.Total),
		)

		return nil
	}

	alert := &model.AlertNotification{
		InvoiceID: event.InvoiceID,
		Vendor:    event.Vendor,
		Total:     event.Total,
		Reason:    fmt.Sprintf("above threshold: total %.2f exceeds %.2f", event.Total, s.threshold),
	}

	if err := s.publisher.PublishAlert(ctx, alert); err != nil {
		return fmt.Errorf("failed to publish alert for invoice %s: %w", event.InvoiceID, err)
	}

	slog.Warn("high value invoice detected",
		slog.String("invoice_id", event.InvoiceID),
		slog.String("vendor", event.Vendor),
		slog.Float64("total", event.Total),
	)

	return nil
}
