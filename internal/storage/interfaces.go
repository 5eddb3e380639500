// Package storage provides access to the document store holding uploaded
// invoices.
package storage

import (
	"context"
	"time"
)

// SignedUpload is a short-lived write grant against the document store.
type SignedUpload struct {
	UploadURL string `json:"uploadUrl"`
	Key       string `json:"key"`
}

// DocumentStore defines the operations the pipeline needs from the object
// store: issuing write grants for the gateway and reading uploaded objects
// for the extraction stage.
type DocumentStore interface {
	SignedUploadURL(ctx context.Context, filename, contentType string, ttl time.Duration) (*SignedUpload, error)
	Read(ctx context.Context, key string) ([]byte, string, error)
}
