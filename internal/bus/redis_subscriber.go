package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/rueidis"
	"golang.org/x/sync/errgroup"

	"github.com/jnst/invoice-idp/internal/model"
)

const (
	redisBlockTimeout  = 1000 // milliseconds
	readBatchSize      = 10
	batchConcurrency   = 4
	errorRetryDelay    = 1 * time.Second
	initialBackoff     = 500 * time.Millisecond
	maxBackoffInterval = 10 * time.Second
)

// RedisSubscriber implements Subscriber using a Redis Streams consumer
// group. Each subscriber (persistor, validator) uses its own group, so the
// stream fans out: every group receives every entry at least once,
// independent of the other groups' consumption state.
type RedisSubscriber struct {
	client         rueidis.Client
	publisher      Publisher
	streams        Streams
	group          string
	consumer       string
	maxAttempts    int
	handlerTimeout time.Duration
}

// NewRedisSubscriber creates a new Subscriber implementation for one
// consumer group. The publisher is used for dead-lettering.
func NewRedisSubscriber(
	client rueidis.Client,
	publisher Publisher,
	streams Streams,
	group, consumer string,
	maxAttempts int,
	handlerTimeout time.Duration,
) *RedisSubscriber {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &RedisSubscriber{
		client:         client,
		publisher:      publisher,
		streams:        streams,
		group:          group,
		consumer:       consumer,
		maxAttempts:    maxAttempts,
		handlerTimeout: handlerTimeout,
	}
}

// Run creates the consumer group if needed, drains this consumer's pending
// backlog (entries delivered before a crash or restart), then tails the
// stream until ctx is cancelled.
func (s *RedisSubscriber) Run(ctx context.Context, handler Handler) error {
	s.createConsumerGroup(ctx)

	if err := s.drainBacklog(ctx, handler); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("subscriber stopped", slog.String("group", s.group))
			return nil
		default:
			if err := s.consumeOnce(ctx, handler, ">"); err != nil {
				slog.Error("error consuming messages",
					slog.String("group", s.group),
					slog.String("error", err.Error()),
				)
				time.Sleep(errorRetryDelay)
			}
		}
	}
}

func (s *RedisSubscriber) createConsumerGroup(ctx context.Context) {
	cmd := s.client.B().XgroupCreate().Key(s.streams.Events).Group(s.group).Id("0").Mkstream().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		slog.Info("consumer group creation result (may already exist)",
			slog.String("group", s.group),
			slog.String("error", err.Error()),
		)
	}
}

// drainBacklog re-reads entries already assigned to this consumer but never
// acknowledged. This is the redelivery path after a crash: the entries come
// back with their original IDs, so handlers see the same event again.
func (s *RedisSubscriber) drainBacklog(ctx context.Context, handler Handler) error {
	for {
		streams, err := s.readMessages(ctx, "0")
		if err != nil {
			return err
		}

		total := 0
		for _, messages := range streams {
			total += len(messages)
			s.processBatch(ctx, handler, messages)
		}

		if total == 0 {
			return nil
		}
	}
}

func (s *RedisSubscriber) consumeOnce(ctx context.Context, handler Handler, id string) error {
	streams, err := s.readMessages(ctx, id)
	if err != nil {
		return err
	}

	for streamName, messages := range streams {
		slog.Debug("processing stream",
			slog.String("stream", streamName),
			slog.String("group", s.group),
			slog.Int("message_count", len(messages)),
		)
		s.processBatch(ctx, handler, messages)
	}

	return nil
}

func (s *RedisSubscriber) readMessages(ctx context.Context, id string) (map[string][]rueidis.XRangeEntry, error) {
	readCmd := s.client.B().Xreadgroup().Group(s.group, s.consumer).
		Count(readBatchSize).
		Block(redisBlockTimeout).
		Streams().
		Key(s.streams.Events).
		Id(id).
		Build()

	result := s.client.Do(ctx, readCmd)
	if err := result.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil // block timeout, nothing to read
		}

		return nil, err
	}

	return result.AsXRead()
}

// processBatch dispatches entries concurrently. No ordering is guaranteed
// across events, so concurrent dispatch within a batch is safe.
func (s *RedisSubscriber) processBatch(ctx context.Context, handler Handler, messages []rueidis.XRangeEntry) {
	g := new(errgroup.Group)
	g.SetLimit(batchConcurrency)

	for _, message := range messages {
		g.Go(func() error {
			if err := s.processMessage(ctx, handler, message); err != nil {
				// Leave the entry pending; it is redelivered on restart.
				slog.Error("failed to process message",
					slog.String("group", s.group),
					slog.String("message_id", message.ID),
					slog.String("error", err.Error()),
				)
			}

			return nil
		})
	}

	_ = g.Wait()
}

// processMessage decodes, validates, and hands one delivery to the handler.
// Schema violations and unprocessable handler outcomes are dead-lettered and
// acknowledged; retryable outcomes are retried with exponential backoff up
// to the attempt ceiling, then dead-lettered. A returned error means the
// entry was left pending (not acknowledged, not dead-lettered).
func (s *RedisSubscriber) processMessage(ctx context.Context, handler Handler, message rueidis.XRangeEntry) error {
	eventType, ok := message.FieldValues[fieldEventType]
	if !ok {
		return s.deadLetterAndAck(ctx, message, "missing event_type in message", 0)
	}

	if model.EventAction(eventType) != model.EventActionInvoiceExtracted {
		slog.Warn("unknown event type, skipping",
			slog.String("group", s.group),
			slog.String("event_type", eventType),
		)
		s.acknowledgeMessage(ctx, message.ID)

		return nil
	}

	payload, ok := message.FieldValues[fieldPayload]
	if !ok {
		return s.deadLetterAndAck(ctx, message, "missing payload in message", 0)
	}

	var event model.InvoiceExtracted
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return s.deadLetterAndAck(ctx, message, fmt.Sprintf("malformed payload: %v", err), 0)
	}

	if err := event.Validate(); err != nil {
		return s.deadLetterAndAck(ctx, message, fmt.Sprintf("schema violation: %v", err), 0)
	}

	attempts, err := s.invokeWithRetry(ctx, handler, &event)
	if err != nil {
		slog.Warn("handler gave up on event",
			slog.String("group", s.group),
			slog.String("invoice_id", event.InvoiceID),
			slog.Int("attempts", attempts),
			slog.String("error", err.Error()),
		)

		return s.deadLetterAndAck(ctx, message, err.Error(), attempts)
	}

	s.acknowledgeMessage(ctx, message.ID)

	return nil
}

// invokeWithRetry applies the handler under a per-attempt timeout, retrying
// transient failures with exponential backoff. Unprocessable errors stop
// immediately.
func (s *RedisSubscriber) invokeWithRetry(
	ctx context.Context, handler Handler, event *model.InvoiceExtracted,
) (int, error) {
	attempts := 0

	operation := func() error {
		attempts++

		attemptCtx, cancel := context.WithTimeout(ctx, s.handlerTimeout)
		defer cancel()

		err := handler(attemptCtx, event)
		if err != nil && model.IsUnprocessable(err) {
			return backoff.Permanent(err)
		}

		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialBackoff
	bo.MaxInterval = maxBackoffInterval
	bo.MaxElapsedTime = 0

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.maxAttempts-1)), ctx))

	return attempts, err
}

// deadLetterAndAck routes a rejected entry to the dead-letter stream, then
// acknowledges it so the group stops redelivering. If the dead-letter write
// itself fails the entry stays pending; losing it silently is worse than an
// extra delivery.
func (s *RedisSubscriber) deadLetterAndAck(
	ctx context.Context, message rueidis.XRangeEntry, reason string, attempts int,
) error {
	entry := &model.DeadLetter{
		Source:   s.group,
		Reason:   reason,
		Payload:  message.FieldValues[fieldPayload],
		Attempts: attempts,
	}

	if err := s.publisher.PublishDeadLetter(ctx, entry); err != nil {
		return fmt.Errorf("failed to dead-letter message %s: %w", message.ID, err)
	}

	s.acknowledgeMessage(ctx, message.ID)

	return nil
}

func (s *RedisSubscriber) acknowledgeMessage(ctx context.Context, messageID string) {
	ackCmd := s.client.B().Xack().Key(s.streams.Events).Group(s.group).Id(messageID).Build()
	if err := s.client.Do(ctx, ackCmd).Error(); err != nil {
		slog.Error("failed to ACK message",
			slog.String("group", s.group),
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
	} else {
		slog.Debug("ACKed message", slog.String("message_id", messageID))
	}
}
