// Package main provides the persistence consumer: its own consumer group
// on the events stream, upserting invoice records into PostgreSQL.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/rueidis"

	"github.com/jnst/invoice-idp/internal/bus"
	"github.com/jnst/invoice-idp/internal/config"
	"github.com/jnst/invoice-idp/internal/logger"
	"github.com/jnst/invoice-idp/internal/repository"
	"github.com/jnst/invoice-idp/internal/service"
)

const (
	groupName        = "persistor"
	signalBufferSize = 1
	exitCode         = 1
)

func setupSignalHandling() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, signalBufferSize)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("shutdown signal received, stopping persistor")
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

	redisClient, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{cfg.RedisAddr},
	})
	if err != nil {
		slog.Error("failed to connect to Redis", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer redisClient.Close()

	streams := bus.Streams{
		Events:     cfg.EventsStream,
		Alerts:     cfg.AlertsStream,
		DeadLetter: cfg.DeadLetterStream,
	}
	publisher := bus.NewRedisPublisher(redisClient, streams)
	subscriber := bus.NewRedisSubscriber(
		redisClient, publisher, streams,
		groupName, cfg.ConsumerName,
		cfg.MaxDeliveryAttempts, cfg.HandlerTimeout,
	)

	persistor := service.NewPersistorServiceImpl(invoiceRepo)

	slog.Info("starting persistence consumer",
		slog.String("service", "persistor"),
		slog.String("stream", cfg.EventsStream),
		slog.String("group", groupName),
		slog.String("consumer", cfg.ConsumerName),
	)

	if err := subscriber.Run(ctx, persistor.OnEvent); err != nil {
		slog.Error("consumer stopped with error", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
}
