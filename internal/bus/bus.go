// Package bus provides the typed publish/subscribe channel that fans each
// extraction event out to every independent consumer with at-least-once
// delivery.
package bus

import (
	"context"

	"github.com/jnst/invoice-idp/internal/model"
)

// Publisher publishes pipeline events to their respective channels.
type Publisher interface {
	PublishInvoiceExtracted(ctx context.Context, event *model.InvoiceExtracted) error
	PublishAlert(ctx context.Context, alert *model.AlertNotification) error
	PublishDeadLetter(ctx context.Context, entry *model.DeadLetter) error
}

// Handler processes one delivery of an InvoiceExtracted event. A returned
// error classified model.Unprocessable dead-letters the event; any other
// error is treated as retryable and triggers redelivery with backoff, up to
// the subscriber's attempt ceiling.
type Handler func(ctx context.Context, event *model.InvoiceExtracted) error

// Subscriber delivers the events stream to a handler. Each subscriber owns
// its own consumer state; one subscriber's failures never block another's
// delivery.
type Subscriber interface {
	Run(ctx context.Context, handler Handler) error
}

// Streams names the Redis streams used by the pipeline.
type Streams struct {
	Events     string
	Alerts     string
	DeadLetter string
}
