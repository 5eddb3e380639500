package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/rueidis"

	"github.com/jnst/invoice-idp/internal/model"
)

// Stream entry field names shared by publisher and subscribers.
const (
	fieldEventType = "event_type"
	fieldInvoiceID = "invoice_id"
	fieldPayload   = "payload"
)

// RedisPublisher implements Publisher on Redis Streams.
type RedisPublisher struct {
	client  rueidis.Client
	streams Streams
}

// NewRedisPublisher creates a new Publisher implementation.
func NewRedisPublisher(client rueidis.Client, streams Streams) *RedisPublisher {
	return &RedisPublisher{
		client:  client,
		streams: streams,
	}
}

// PublishInvoiceExtracted appends the event to the events stream. Consumer
// groups fan the entry out to every subscriber independently.
func (p *RedisPublisher) PublishInvoiceExtracted(ctx context.Context, event *model.InvoiceExtracted) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	cmd := p.client.B().Xadd().Key(p.streams.Events).Id("*").
		FieldValue().
		FieldValue(fieldEventType, string(model.EventActionInvoiceExtracted)).
		FieldValue(fieldInvoiceID, event.InvoiceID).
		FieldValue(fieldPayload, string(payload)).
		Build()

	if err := p.client.Do(ctx, cmd).Error(); err != nil {
		return model.Retryable(fmt.Errorf("failed to publish to stream %s: %w", p.streams.Events, err))
	}

	return nil
}

// PublishAlert appends a notification to the alerts stream.
func (p *RedisPublisher) PublishAlert(ctx context.Context, alert *model.AlertNotification) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert payload: %w", err)
	}

	cmd := p.client.B().Xadd().Key(p.streams.Alerts).Id("*").
		FieldValue().
		FieldValue(fieldInvoiceID, alert.InvoiceID).
		FieldValue(fieldPayload, string(payload)).
		Build()

	if err := p.client.Do(ctx, cmd).Error(); err != nil {
		return model.Retryable(fmt.Errorf("failed to publish to stream %s: %w", p.streams.Alerts, err))
	}

	return nil
}

// PublishDeadLetter records a permanently failed unit of work for manual
// inspection. Failed work must land here rather than be dropped silently.
func (p *RedisPublisher) PublishDeadLetter(ctx context.Context, entry *model.DeadLetter) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	cmd := p.client.B().Xadd().Key(p.streams.DeadLetter).Id("*").
		FieldValue().
		FieldValue("source", entry.Source).
		FieldValue("reason", entry.Reason).
		FieldValue(fieldPayload, string(payload)).
		Build()

	if err := p.client.Do(ctx, cmd).Error(); err != nil {
		return model.Retryable(fmt.Errorf("failed to publish to stream %s: %w", p.streams.DeadLetter, err))
	}

	return nil
}
