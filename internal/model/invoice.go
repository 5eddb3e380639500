// Package model defines domain models and data structures.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Invoice record statuses assigned by the persistence consumer.
const (
	StatusProcessed   = "processed"
	StatusNeedsReview = "needs_review"
)

// Extraction flags for fields that could not be read from the document.
const (
	FlagVendorMissing = "vendor_missing"
	FlagTotalMissing  = "total_missing"
)

// DocumentRef identifies an uploaded object in the document store.
// It is created when the storage trigger fires and is never mutated.
type DocumentRef struct {
	Bucket      string `json:"bucket"`
	Key         string `json:"name"`
	ContentType string `json:"contentType"`
}

// URI returns the gs:// address of the referenced object.
func (d DocumentRef) URI() string {
	return fmt.Sprintf("gs://%s/%s", d.Bucket, d.Key)
}

// InvoiceID derives the invoice ID for a document. The derivation is a
// UUIDv5 over the object URI, so redelivery of the same storage trigger
// always republishes under an identical ID and downstream upserts stay
// idempotent.
func (d DocumentRef) InvoiceID() string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(d.URI())).String()
}

// EventAction represents the type of event action.
type EventAction string

const (
	// EventActionInvoiceExtracted represents the invoice extraction event action.
	EventActionInvoiceExtracted EventAction = "invoice_extracted"
)

// InvoiceExtracted is the fanout event published once per successful
// extraction. Logically immutable: a republication caused by trigger
// redelivery carries the same InvoiceID and field set.
type InvoiceExtracted struct {
	InvoiceID   string    `json:"invoiceId"`
	Vendor      string    `json:"vendor"`
	Total       float64   `json:"total"`
	SourceKey   string    `json:"sourceKey"`
	Flags       []string  `json:"flags,omitempty"`
	ExtractedAt time.Time `json:"extractedAt"`
}

// Validate checks the event schema at the fanout boundary. A violation is
// permanent: the payload will never become well-formed on redelivery.
func (e *InvoiceExtracted) Validate() error {
	if e.InvoiceID == "" {
		return ErrMissingInvoiceID
	}

	if e.SourceKey == "" {
		return ErrMissingSourceKey
	}

	if e.Total < 0 {
		return ErrNegativeTotal
	}

	return nil
}

// InvoiceRecord is the persisted entity, owned exclusively by the
// persistence consumer. Created or overwritten by upsert, never deleted.
type InvoiceRecord struct {
	InvoiceID string    `json:"invoiceId"`
	Vendor    string    `json:"vendor"`
	Total     float64   `json:"total"`
	Status    string    `json:"status"`
	SourceKey string    `json:"sourceKey"`
	CreatedAt time.Time `json:"createdAt"`
}

// RecordFromEvent maps a fanout event onto the row the persistor writes.
func RecordFromEvent(e *InvoiceExtracted, now time.Time) *InvoiceRecord {
	status := StatusProcessed
	if len(e.Flags) > 0 {
		status = StatusNeedsReview
	}

	return &InvoiceRecord{
		InvoiceID: e.InvoiceID,
		Vendor:    e.Vendor,
		Total:     e.Total,
		Status:    status,
		SourceKey: e.SourceKey,
		CreatedAt: now,
	}
}

// AlertNotification is the human-facing payload emitted when a business
// rule fires. May be delivered more than once under at-least-once
// semantics; the alert channel owns any dedup for notification purposes.
type AlertNotification struct {
	InvoiceID string  `json:"invoiceId"`
	Vendor    string  `json:"vendor"`
	Total     float64 `json:"total"`
	Reason    string  `json:"reason"`
}

// DeadLetter is the diagnostic record written when a unit of work is
// permanently rejected or exhausts its delivery attempts.
type DeadLetter struct {
	Source   string `json:"source"`
	Reason   string `json:"reason"`
	Payload  string `json:"payload"`
	Attempts int    `json:"attempts"`
}
