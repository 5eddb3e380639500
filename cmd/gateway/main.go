// Package main provides the HTTP gateway: the read path over persisted
// invoice records and the issuer of signed upload grants.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jnst/invoice-idp/internal/config"
	"github.com/jnst/invoice-idp/internal/logger"
	"github.com/jnst/invoice-idp/internal/model"
	"github.com/jnst/invoice-idp/internal/repository"
	"github.com/jnst/invoice-idp/internal/storage"
)

const (
	contentTypeJSON        = "Content-Type"
	applicationJSON        = "application/json"
	failedToEncodeResponse = "failed to encode response"
	defaultContentType     = "image/jpeg"
	exitCode               = 1
)

// APIServer handles HTTP requests for the invoice read and upload paths.
type APIServer struct {
	invoiceRepo   repository.InvoiceRepository
	documentStore storage.DocumentStore
	uploadURLTTL  time.Duration
}

// NewAPIServer creates a new API server instance.
func NewAPIServer(
	invoiceRepo repository.InvoiceRepository,
	documentStore storage.DocumentStore,
	uploadURLTTL time.Duration,
) *APIServer {
	return &APIServer{
		invoiceRepo:   invoiceRepo,
		documentStore: documentStore,
		uploadURLTTL:  uploadURLTTL,
	}
}

// writeCORS mirrors the permissive CORS policy of the upload UI. Uploads
// happen from the browser directly against the signed URL, so the gateway
// only ever sees simple GET requests plus their preflights.
func writeCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Allow-Methods", "OPTIONS,GET,PUT")
}

// ListInvoices handles GET /invoices. Output order is unspecified; the
// client sorts by invoice ID for presentation.
func (s *APIServer) ListInvoices(w http.ResponseWriter, r *http.Request) {
	writeCORS(w)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records, err := s.invoiceRepo.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*model.InvoiceRecord{}
	}

	w.Header().Set(contentTypeJSON, applicationJSON)
	if err := json.NewEncoder(w).Encode(records); err != nil {
		http.Error(w, failedToEncodeResponse, http.StatusInternalServerError)
		return
	}
}

// UploadURL handles GET /upload-url. It issues a short-lived signed PUT
// grant for a fresh object key; the client writes directly against the
// document store and the creation trigger takes it from there.
func (s *APIServer) UploadURL(w http.ResponseWriter, r *http.Request) {
	writeCORS(w)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		http.Error(w, "filename parameter is required", http.StatusBadRequest)
		return
	}

	contentType := r.URL.Query().Get("contentType")
	if contentType == "" {
		contentType = defaultContentType
	}

	grant, err := s.documentStore.SignedUploadURL(r.Context(), filename, contentType, s.uploadURLTTL)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set(contentTypeJSON, applicationJSON)
	if err := json.NewEncoder(w).Encode(grant); err != nil {
		http.Error(w, failedToEncodeResponse, http.StatusInternalServerError)
		return
	}
}

// HealthCheck handles GET /health endpoint for service health check.
func (*APIServer) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set(contentTypeJSON, applicationJSON)
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		http.Error(w, failedToEncodeResponse, http.StatusInternalServerError)
		return
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	slog.SetDefault(logger.Setup(cfg.LogLevel, cfg.LogFormat))

	ctx := context.Background()

	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer dbPool.Close()

	invoiceRepo := repository.NewInvoiceRepositoryImpl(dbPool)
	if err := invoiceRepo.EnsureSchema(ctx); err != nil {
		slog.Error("failed to ensure schema", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	documentStore, err := storage.NewGCSStore(ctx, cfg.InvoiceBucket)
	if err != nil {
		slog.Error("failed to create document store", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer documentStore.Close()

	server := NewAPIServer(invoiceRepo, documentStore, cfg.UploadURLTTL)

	http.HandleFunc("/invoices", server.ListInvoices)
	http.HandleFunc("/upload-url", server.UploadURL)
	http.HandleFunc("/health", server.HealthCheck)

	slog.Info("starting gateway server",
		slog.String("service", "gateway"),
		slog.String("port", cfg.Port),
		slog.String("bucket", cfg.InvoiceBucket),
	)

	if err := http.ListenAndServe(":"+cfg.Port, nil); err != nil {
		slog.Error("failed to start server", slog.String("error", err.Error()))
		return
	}
}
