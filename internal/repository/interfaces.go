// Package repository provides data access interfaces and implementations.
package repository

import (
	"context"

	"github.com/jnst/invoice-idp/internal/model"
)

// InvoiceRepository defines methods for invoice record data access. Writes
// are upserts keyed by invoice ID, so repeated application of the same
// event is idempotent.
type InvoiceRepository interface {
	Upsert(ctx context.Context, record *model.InvoiceRecord) error
	GetByID(ctx context.Context, invoiceID string) (*model.InvoiceRecord, error)
	List(ctx context.Context) ([]*model.InvoiceRecord, error)
}
