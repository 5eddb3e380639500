package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jnst/invoice-idp/internal/model"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS invoices (
    invoice_id TEXT PRIMARY KEY,
    vendor     TEXT NOT NULL,
    total      DOUBLE PRECISION NOT NULL,
    status     TEXT NOT NULL,
    source_key TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
)`

const upsertSQL = `
INSERT INTO invoices (invoice_id, vendor, total, status, source_key, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (invoice_id) DO UPDATE SET
    vendor     = EXCLUDED.vendor,
    total      = EXCLUDED.total,
    status     = EXCLUDED.status,
    source_key = EXCLUDED.source_key`

const selectColumns = `SELECT invoice_id, vendor, total, status, source_key, created_at FROM invoices`

// InvoiceRepositoryImpl implements InvoiceRepository using PostgreSQL.
type InvoiceRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewInvoiceRepositoryImpl creates a new InvoiceRepository implementation.
func NewInvoiceRepositoryImpl(pool *pgxpool.Pool) *InvoiceRepositoryImpl {
	return &InvoiceRepositoryImpl{pool: pool}
}

// EnsureSchema creates the invoices table if it does not exist.
func (r *InvoiceRepositoryImpl) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure invoices schema: %w", err)
	}

	return nil
}

// Upsert creates or overwrites the record keyed by invoice ID. created_at
// keeps its original value on overwrite, so redelivery leaves the row
// byte-identical to a single delivery.
func (r *InvoiceRepositoryImpl) Upsert(ctx context.Context, record *model.InvoiceRecord) error {
	_, err := r.pool.Exec(ctx, upsertSQL,
		record.InvoiceID,
		record.Vendor,
		record.Total,
		record.Status,
		record.SourceKey,
		record.CreatedAt,
	)
	if err != nil {
		return model.Retryable(fmt.Errorf("failed to upsert invoice %s: %w", record.InvoiceID, err))
	}

	return nil
}

// GetByID retrieves a record by invoice ID.
func (r *InvoiceRepositoryImpl) GetByID(ctx context.Context, invoiceID string) (*model.InvoiceRecord, error) {
	row := r.pool.QueryRow(ctx, selectColumns+` WHERE invoice_id = $1`, invoiceID)

	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrInvoiceNotFound
		}

		return nil, fmt.Errorf("failed to get invoice %s: %w", invoiceID, err)
	}

	return record, nil
}

// List retrieves all persisted records. Output order is unspecified;
// clients sort for presentation.
func (r *InvoiceRepositoryImpl) List(ctx context.Context) ([]*model.InvoiceRecord, error) {
	rows, err := r.pool.Query(ctx, selectColumns)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	records := make([]*model.InvoiceRecord, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice row: %w", err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invoice rows: %w", err)
	}

	return records, nil
}

func scanRecord(row pgx.Row) (*model.InvoiceRecord, error) {
	var record model.InvoiceRecord
	err := row.Scan(
		&record.InvoiceID,
		&record.Vendor,
		&record.Total,
		&record.Status,
		&record.SourceKey,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &record, nil
}
