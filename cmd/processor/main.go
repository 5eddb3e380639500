// Package main provides the extraction stage: a CloudEvents receiver for
// storage creation triggers that extracts invoice fields and publishes the
// fanout event.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	cehttp "github.com/cloudevents/sdk-go/v2/protocol/http"
	"github.com/redis/rueidis"

	"github.com/jnst/invoice-idp/internal/bus"
	"github.com/jnst/invoice-idp/internal/config"
	"github.com/jnst/invoice-idp/internal/extract"
	"github.com/jnst/invoice-idp/internal/logger"
	"github.com/jnst/invoice-idp/internal/model"
	"github.com/jnst/invoice-idp/internal/service"
	"github.com/jnst/invoice-idp/internal/storage"
)

const (
	extractorModeStatic = "static"
	signalBufferSize    = 1
	exitCode            = 1
)

// TriggerHandler adapts storage creation CloudEvents onto the processor
// service.
type TriggerHandler struct {
	processor service.ProcessorService
	publisher bus.Publisher
}

// Receive is the CloudEvents entry point. Returning an error marks the
// delivery as failed, which makes the push transport redeliver the
// trigger; unprocessable documents return nil after being dead-lettered so
// they are not retried indefinitely.
func (h *TriggerHandler) Receive(ctx context.Context, e cloudevents.Event) error {
	var doc model.DocumentRef
	if err := json.Unmarshal(e.Data(), &doc); err != nil {
		slog.Error("failed to unmarshal trigger data",
			slog.String("error", err.Error()),
			slog.String("data", string(e.Data())),
		)
		// A malformed trigger never becomes well-formed on redelivery.
		entry := &model.DeadLetter{
			Source:  "processor",
			Reason:  fmt.Sprintf("malformed trigger payload: %v", err),
			Payload: string(e.Data()),
		}
		if dlErr := h.publisher.PublishDeadLetter(ctx, entry); dlErr != nil {
			return dlErr
		}

		return nil
	}

	if err := h.processor.ProcessDocument(ctx, doc); err != nil {
		if model.IsUnprocessable(err) {
			return nil // already dead-lettered by the service
		}

		return err
	}

	return nil
}

func newExtractor(ctx context.Context, cfg *config.Config) (extract.Extractor, error) {
	if cfg.ExtractorMode == extractorModeStatic {
		return extract.NewStaticExtractor(), nil
	}

	return extract.NewGeminiExtractor(ctx, cfg.VertexProjectID, cfg.VertexRegion)
}

func setupSignalHandling() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, signalBufferSize)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("shutdown signal received, stopping processor")
		cancel()
	}()

	return ctx, cancel
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	slog.SetDefault(logger.Setup(cfg.LogLevel, cfg.LogFormat))

	ctx, cancel := setupSignalHandling()
	defer cancel()

	redisClient, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{cfg.RedisAddr},
	})
	if err != nil {
		slog.Error("failed to connect to Redis", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer redisClient.Close()

	publisher := bus.NewRedisPublisher(redisClient, bus.Streams{
		Events:     cfg.EventsStream,
		Alerts:     cfg.AlertsStream,
		DeadLetter: cfg.DeadLetterStream,
	})

	documentStore, err := storage.NewGCSStore(ctx, cfg.InvoiceBucket)
	if err != nil {
		slog.Error("failed to create document store", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer documentStore.Close()

	extractor, err := newExtractor(ctx, cfg)
	if err != nil {
		slog.Error("failed to create extractor", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	processor := service.NewProcessorServiceImpl(documentStore, extractor, publisher)
	handler := &TriggerHandler{processor: processor, publisher: publisher}

	client, err := cloudevents.NewClientHTTP(cehttp.WithPort(cfg.ProcessorPort))
	if err != nil {
		slog.Error("failed to create cloudevents client", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	slog.Info("starting processor",
		slog.String("service", "processor"),
		slog.Int("port", cfg.ProcessorPort),
		slog.String("extractor", cfg.ExtractorMode),
		slog.String("stream", cfg.EventsStream),
	)

	if err := client.StartReceiver(ctx, handler.Receive); err != nil {
		slog.Error("receiver stopped with error", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
}
