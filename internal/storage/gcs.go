package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"github.com/jnst/invoice-idp/internal/model"
)

// GCSStore implements DocumentStore on a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore creates a new DocumentStore implementation over the given
// bucket.
func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket must be provided to create a storage client")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &GCSStore{client: client, bucket: bucket}, nil
}

// SignedUploadURL issues a V4 signed PUT URL for a fresh object key. The key
// is prefixed with a random UUID so concurrent uploads of the same filename
// never collide.
func (s *GCSStore) SignedUploadURL(
	_ context.Context, filename, contentType string, ttl time.Duration,
) (*SignedUpload, error) {
	key := fmt.Sprintf("%s-%s", uuid.New().String(), filename)

	url, err := s.client.Bucket(s.bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      http.MethodPut,
		Expires:     time.Now().Add(ttl),
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign upload URL: %w", err)
	}

	return &SignedUpload{UploadURL: url, Key: key}, nil
}

// Read fetches the object content and its stored content type.
func (s *GCSStore) Read(ctx context.Context, key string) ([]byte, string, error) {
	reader, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			// A creation trigger for an object that no longer exists will
			// never succeed on retry.
			return nil, "", model.Unprocessable(fmt.Errorf("object %s does not exist: %w", key, err))
		}

		return nil, "", model.Retryable(fmt.Errorf("failed to open object %s: %w", key, err))
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", model.Retryable(fmt.Errorf("failed to read object %s: %w", key, err))
	}

	return content, reader.Attrs.ContentType, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
