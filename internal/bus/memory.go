package bus

import (
	"context"
	"sync"

	"github.com/jnst/invoice-idp/internal/model"
)

// InMemory is a Publisher that fans published events out to locally
// registered handlers. It backs tests and local single-process runs; the
// delivery contract matches the Redis implementation: every subscriber
// receives every event, independent of sibling outcomes, and unprocessable
// or repeatedly failing deliveries land on the dead-letter slice.
type InMemory struct {
	mu          sync.Mutex
	subscribers map[string]Handler
	maxAttempts int

	events      []model.InvoiceExtracted
	alerts      []model.AlertNotification
	deadLetters []model.DeadLetter
}

// NewInMemory creates an in-memory bus with the given per-delivery attempt
// ceiling.
func NewInMemory(maxAttempts int) *InMemory {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &InMemory{
		subscribers: make(map[string]Handler),
		maxAttempts: maxAttempts,
	}
}

// Subscribe registers a handler under a consumer ID. Re-subscribing the
// same ID replaces the handler.
func (b *InMemory) Subscribe(consumerID string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[consumerID] = handler
}

// PublishInvoiceExtracted validates the event and delivers it to every
// subscriber. Subscribers run independently: one subscriber exhausting its
// attempts never prevents another from receiving the event.
func (b *InMemory) PublishInvoiceExtracted(ctx context.Context, event *model.InvoiceExtracted) error {
	if err := event.Validate(); err != nil {
		return b.PublishDeadLetter(ctx, &model.DeadLetter{
			Source: "bus",
			Reason: err.Error(),
		})
	}

	b.mu.Lock()
	b.events = append(b.events, *event)
	handlers := make(map[string]Handler, len(b.subscribers))
	for id, h := range b.subscribers {
		handlers[id] = h
	}
	b.mu.Unlock()

	for id, handler := range handlers {
		b.deliver(ctx, id, handler, event)
	}

	return nil
}

func (b *InMemory) deliver(ctx context.Context, consumerID string, handler Handler, event *model.InvoiceExtracted) {
	var err error
	for attempt := 0; attempt < b.maxAttempts; attempt++ {
		err = handler(ctx, event)
		if err == nil {
			return
		}

		if model.IsUnprocessable(err) {
			break
		}
	}

	_ = b.PublishDeadLetter(ctx, &model.DeadLetter{
		Source:  consumerID,
		Reason:  err.Error(),
		Payload: event.InvoiceID,
	})
}

// PublishAlert records an alert notification.
func (b *InMemory) PublishAlert(_ context.Context, alert *model.AlertNotification) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alerts = append(b.alerts, *alert)

	return nil
}

// PublishDeadLetter records a dead-letter entry.
func (b *InMemory) PublishDeadLetter(_ context.Context, entry *model.DeadLetter) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deadLetters = append(b.deadLetters, *entry)

	return nil
}

// Events returns a copy of all published events.
func (b *InMemory) Events() []model.InvoiceExtracted {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]model.InvoiceExtracted(nil), b.events...)
}

// Alerts returns a copy of all published alerts.
func (b *InMemory) Alerts() []model.AlertNotification {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]model.AlertNotification(nil), b.alerts...)
}

// DeadLetters returns a copy of all dead-letter entries.
func (b *InMemory) DeadLetters() []model.DeadLetter {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]model.DeadLetter(nil), b.deadLetters...)
}
