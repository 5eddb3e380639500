package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnst/invoice-idp/internal/bus"
	"github.com/jnst/invoice-idp/internal/extract"
	"github.com/jnst/invoice-idp/internal/model"
	"github.com/jnst/invoice-idp/internal/storage"
)

type fakeDocumentStore struct {
	content     []byte
	contentType string
	readErr     error
}

func (f *fakeDocumentStore) SignedUploadURL(
	context.Context, string, string, time.Duration,
) (*storage.SignedUpload, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDocumentStore) Read(context.Context, string) ([]byte, string, error) {
	if f.readErr != nil {
		return nil, "", f.readErr
	}

	return f.content, f.contentType, nil
}

type fakeExtractor struct {
	result *extract.Extraction
	err    error
	calls  int
}

func (f *fakeExtractor) Extract(context.Context, model.DocumentRef, []byte) (*extract.Extraction, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}

	return f.result, nil
}

func newTestProcessor(store *fakeDocumentStore, extractor *fakeExtractor) (*ProcessorServiceImpl, *bus.InMemory) {
	memBus := bus.NewInMemory(1)
	processor := NewProcessorServiceImpl(store, extractor, memBus)
	processor.now = func() time.Time {
		return time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	}

	return processor, memBus
}

func TestProcessDocumentPublishesOneEvent(t *testing.T) {
	store := &fakeDocumentStore{content: []byte("pdf"), contentType: "application/pdf"}
	extractor := &fakeExtractor{result: &extract.Extraction{Vendor: "Acme", Total: 150.00}}
	processor, memBus := newTestProcessor(store, extractor)

	doc := model.DocumentRef{Bucket: "invoice-uploads", Key: "abc-invoice.pdf"}
	require.NoError(t, processor.ProcessDocument(context.Background(), doc))

	events := memBus.Events()
	require.Len(t, events, 1)
	assert.Equal(t, doc.InvoiceID(), events[0].InvoiceID)
	assert.Equal(t, "Acme", events[0].Vendor)
	assert.Equal(t, 150.00, events[0].Total)
	assert.Equal(t, doc.Key, events[0].SourceKey)
	assert.Empty(t, memBus.DeadLetters())
}

func TestProcessDocumentRedeliveryKeepsInvoiceID(t *testing.T) {
	store := &fakeDocumentStore{content: []byte("pdf"), contentType: "application/pdf"}
	extractor := &fakeExtractor{result: &extract.Extraction{Vendor: "Acme", Total: 150.00}}
	processor, memBus := newTestProcessor(store, extractor)

	doc := model.DocumentRef{Bucket: "invoice-uploads", Key: "abc-invoice.pdf"}
	require.NoError(t, processor.ProcessDocument(context.Background(), doc))
	require.NoError(t, processor.ProcessDocument(context.Background(), doc))

	events := memBus.Events()
	require.Len(t, events, 2)
	assert.Equal(t, events[0].InvoiceID, events[1].InvoiceID,
		"a redelivered trigger must republish under an identical invoice ID")
	assert.Equal(t, events[0].Vendor, events[1].Vendor)
	assert.Equal(t, events[0].Total, events[1].Total)
}

func TestProcessDocumentUnprocessableIsDeadLettered(t *testing.T) {
	store := &fakeDocumentStore{content: []byte("garbage"), contentType: "application/octet-stream"}
	extractor := &fakeExtractor{err: model.Unprocessable(errors.New("corrupt document"))}
	processor, memBus := newTestProcessor(store, extractor)

	doc := model.DocumentRef{Bucket: "invoice-uploads", Key: "corrupt.bin"}
	err := processor.ProcessDocument(context.Background(), doc)

	require.Error(t, err)
	assert.True(t, model.IsUnprocessable(err))
	assert.Empty(t, memBus.Events(), "no event may be published on failure")
	assert.Empty(t, memBus.Alerts())

	deadLetters := memBus.DeadLetters()
	require.Len(t, deadLetters, 1)
	assert.Equal(t, "processor", deadLetters[0].Source)
	assert.Contains(t, deadLetters[0].Reason, "corrupt document")
}

func TestProcessDocumentTransientFailureIsRetryable(t *testing.T) {
	store := &fakeDocumentStore{readErr: model.Retryable(errors.New("storage unavailable"))}
	extractor := &fakeExtractor{}
	processor, memBus := newTestProcessor(store, extractor)

	err := processor.ProcessDocument(context.Background(), model.DocumentRef{Key: "a.pdf"})

	require.Error(t, err)
	assert.False(t, model.IsUnprocessable(err), "transient failures must stay retryable")
	assert.Zero(t, extractor.calls)
	assert.Empty(t, memBus.Events())
	assert.Empty(t, memBus.DeadLetters(), "retryable failures are redelivered, not dead-lettered")
}
