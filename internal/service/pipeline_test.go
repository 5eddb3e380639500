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
)

// newTestPipeline wires processor, persistor, and validator over the
// in-memory bus, the way the deployed binaries are wired over Redis.
func newTestPipeline(
	t *testing.T, store *fakeDocumentStore, extractor *fakeExtractor, threshold float64,
) (*ProcessorServiceImpl, *fakeInvoiceRepo, *bus.InMemory) {
	t.Helper()

	memBus := bus.NewInMemory(3)
	repo := newFakeInvoiceRepo()

	persistor := NewPersistorServiceImpl(repo)
	validator := NewValidatorServiceImpl(memBus, threshold)
	memBus.Subscribe("persistor", persistor.OnEvent)
	memBus.Subscribe("validator", validator.OnEvent)

	processor := NewProcessorServiceImpl(store, extractor, memBus)
	processor.now = func() time.Time {
		return time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	}

	return processor, repo, memBus
}

func TestPipelineHighValueInvoice(t *testing.T) {
	store := &fakeDocumentStore{content: []byte("pdf"), contentType: "application/pdf"}
	extractor := &fakeExtractor{result: &extract.Extraction{Vendor: "Acme", Total: 150.00}}
	processor, repo, memBus := newTestPipeline(t, store, extractor, 100.00)

	doc := model.DocumentRef{Bucket: "invoice-uploads", Key: "acme-march.pdf"}
	require.NoError(t, processor.ProcessDocument(context.Background(), doc))

	record, err := repo.GetByID(context.Background(), doc.InvoiceID())
	require.NoError(t, err)
	assert.Equal(t, "Acme", record.Vendor)
	assert.Equal(t, 150.00, record.Total)

	alerts := memBus.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, doc.InvoiceID(), alerts[0].InvoiceID)
	assert.Contains(t, alerts[0].Reason, "above threshold")
	assert.Empty(t, memBus.DeadLetters())
}

func TestPipelineMalformedDocument(t *testing.T) {
	store := &fakeDocumentStore{content: []byte("garbage"), contentType: "application/pdf"}
	extractor := &fakeExtractor{err: model.Unprocessable(errors.New("unreadable document"))}
	processor, repo, memBus := newTestPipeline(t, store, extractor, 100.00)

	doc := model.DocumentRef{Bucket: "invoice-uploads", Key: "broken.pdf"}
	err := processor.ProcessDocument(context.Background(), doc)
	require.Error(t, err)

	assert.Empty(t, memBus.Events(), "no event may be published for an unreadable document")
	assert.Empty(t, memBus.Alerts())

	_, err = repo.GetByID(context.Background(), doc.InvoiceID())
	assert.ErrorIs(t, err, model.ErrInvoiceNotFound)

	require.Len(t, memBus.DeadLetters(), 1)
}

func TestPipelineRedeliveredTrigger(t *testing.T) {
	store := &fakeDocumentStore{content: []byte("pdf"), contentType: "application/pdf"}
	extractor := &fakeExtractor{result: &extract.Extraction{Vendor: "Acme", Total: 150.00}}
	processor, repo, memBus := newTestPipeline(t, store, extractor, 100.00)

	doc := model.DocumentRef{Bucket: "invoice-uploads", Key: "acme-march.pdf"}
	require.NoError(t, processor.ProcessDocument(context.Background(), doc))

	once, err := repo.GetByID(context.Background(), doc.InvoiceID())
	require.NoError(t, err)

	// The storage trigger fires again for the same object.
	require.NoError(t, processor.ProcessDocument(context.Background(), doc))

	twice, err := repo.GetByID(context.Background(), doc.InvoiceID())
	require.NoError(t, err)

	assert.Equal(t, once, twice, "redelivery must not change the persisted state")
	records, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)

	// Duplicate alerts are acceptable; a duplicated record is not.
	assert.GreaterOrEqual(t, len(memBus.Alerts()), 1)
}
