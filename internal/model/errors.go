package model

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingInvoiceID is returned when an event has no invoice ID.
	ErrMissingInvoiceID = errors.New("invoiceId is required")
	// ErrMissingSourceKey is returned when an event has no source object key.
	ErrMissingSourceKey = errors.New("sourceKey is required")
	// ErrNegativeTotal is returned when an event carries a negative total.
	ErrNegativeTotal = errors.New("total must not be negative")
	// ErrInvoiceNotFound is returned when an invoice is not found in the store.
	ErrInvoiceNotFound = errors.New("invoice not found")
)

// FailureKind classifies a pipeline failure for the delivery mechanism.
type FailureKind int

const (
	// FailureRetryable marks a transient external failure. The delivery
	// mechanism is expected to redeliver the unit of work.
	FailureRetryable FailureKind = iota
	// FailureUnprocessable marks input that will never succeed on retry.
	// The unit of work must be dead-lettered, not retried.
	FailureUnprocessable
)

func (k FailureKind) String() string {
	if k == FailureUnprocessable {
		return "unprocessable"
	}

	return "retryable"
}

// ClassifiedError wraps an error with a FailureKind so that consumers and
// the bus can agree on redelivery without inspecting error strings.
type ClassifiedError struct {
	Kind FailureKind
	Err  error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Retryable wraps err as a transient failure.
func Retryable(err error) error {
	if err == nil {
		return nil
	}

	return &ClassifiedError{Kind: FailureRetryable, Err: err}
}

// Unprocessable wraps err as a permanent failure.
func Unprocessable(err error) error {
	if err == nil {
		return nil
	}

	return &ClassifiedError{Kind: FailureUnprocessable, Err: err}
}

// IsUnprocessable reports whether err is classified as permanent.
// Unclassified errors default to retryable, which keeps an unknown failure
// from being dropped silently.
func IsUnprocessable(err error) bool {
	var cerr *ClassifiedError
	if errors.As(err, &cerr) {
		return cerr.Kind == FailureUnprocessable
	}

	return false
}
