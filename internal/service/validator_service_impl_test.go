package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnst/invoice-idp/internal/bus"
	"github.com/jnst/invoice-idp/internal/model"
)

type failingPublisher struct{}

func (failingPublisher) PublishInvoiceExtracted(context.Context, *model.InvoiceExtracted) error {
	return errors.New("not implemented")
}

func (failingPublisher) PublishAlert(context.Context, *model.AlertNotification) error {
	return model.Retryable(errors.New("notification channel unavailable"))
}

func (failingPublisher) PublishDeadLetter(context.Context, *model.DeadLetter) error {
	return errors.New("not implemented")
}

func TestThresholdBoundary(t *testing.T) {
	const threshold = 100.00

	tests := []struct {
		name      string
		total     float64
		wantAlert bool
	}{
		{name: "below threshold does not alert", total: 99.99, wantAlert: false},
		{name: "exact threshold does not alert", total: 100.00, wantAlert: false},
		{name: "above threshold alerts", total: 100.01, wantAlert: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			memBus := bus.NewInMemory(1)
			validator := NewValidatorServiceImpl(memBus, threshold)

			event := testEvent()
			event.Total = tt.total

			require.NoError(t, validator.OnEvent(context.Background(), event))

			if tt.wantAlert {
				require.Len(t, memBus.Alerts(), 1)
			} else {
				assert.Empty(t, memBus.Alerts())
			}
		})
	}
}

func TestAlertCarriesTriggeringFields(t *testing.T) {
	memBus := bus.NewInMemory(1)
	validator := NewValidatorServiceImpl(memBus, 100.00)

	event := testEvent() // Acme, 150.00
	require.NoError(t, validator.OnEvent(context.Background(), event))

	alerts := memBus.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, event.InvoiceID, alerts[0].InvoiceID)
	assert.Equal(t, "Acme", alerts[0].Vendor)
	assert.Equal(t, 150.00, alerts[0].Total)
	assert.Contains(t, alerts[0].Reason, "above threshold")
}

// The rule must be a pure function of the event's own fields: the outcome
// cannot depend on whether or how often the persistence consumer ran.
func TestValidationIndependentOfPersistence(t *testing.T) {
	event := testEvent()

	outcome := func(persistRuns int) int {
		memBus := bus.NewInMemory(1)
		repo := newFakeInvoiceRepo()
		persistor := NewPersistorServiceImpl(repo)
		validator := NewValidatorServiceImpl(memBus, 100.00)

		for i := 0; i < persistRuns; i++ {
			require.NoError(t, persistor.OnEvent(context.Background(), event))
		}
		require.NoError(t, validator.OnEvent(context.Background(), event))

		return len(memBus.Alerts())
	}

	assert.Equal(t, outcome(0), outcome(1))
	assert.Equal(t, outcome(1), outcome(3))
}

// Redelivery of the same event redelivers the same alert; the consumer does
// not suppress duplicates via local state.
func TestRedeliveryDuplicatesAlert(t *testing.T) {
	memBus := bus.NewInMemory(1)
	validator := NewValidatorServiceImpl(memBus, 100.00)
	event := testEvent()

	require.NoError(t, validator.OnEvent(context.Background(), event))
	require.NoError(t, validator.OnEvent(context.Background(), event))

	alerts := memBus.Alerts()
	require.Len(t, alerts, 2)
	assert.Equal(t, alerts[0], alerts[1])
}

func TestChannelFailureIsRetryable(t *testing.T) {
	validator := NewValidatorServiceImpl(failingPublisher{}, 100.00)

	err := validator.OnEvent(context.Background(), testEvent())
	require.Error(t, err)
	assert.False(t, model.IsUnprocessable(err))
}

func TestMalformedEventIsUnprocessable(t *testing.T) {
	memBus := bus.NewInMemory(1)
	validator := NewValidatorServiceImpl(memBus, 100.00)

	event := testEvent()
	event.Total = -1
	err := validator.OnEvent(context.Background(), event)

	require.Error(t, err)
	assert.True(t, model.IsUnprocessable(err))
	assert.Empty(t, memBus.Alerts())
}

// Rule evaluation itself must not fail on any well-formed input.
func TestRuleNeverFailsOnWellFormedInput(t *testing.T) {
	memBus := bus.NewInMemory(1)
	validator := NewValidatorServiceImpl(memBus, 100.00)

	for i, total := range []float64{0, 0.01, 99.99, 100, 100.01, 1e9} {
		event := testEvent()
		event.InvoiceID = fmt.Sprintf("inv-%d", i)
		event.Total = total
		assert.NoError(t, validator.OnEvent(context.Background(), event))
	}
}
