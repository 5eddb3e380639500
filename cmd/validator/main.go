// Package main provides the validation consumer: its own consumer group on
// the events stream, raising an alert when an invoice total exceeds the
// configured threshold.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/rueidis"

	"github.com/jnst/invoice-idp/internal/bus"
	"github.com/jnst/invoice-idp/internal/config"
	"github.com/jnst/invoice-idp/internal/logger"
	"github.com/jnst/invoice-idp/internal/service"
)

const (
	groupName        = "validator"
	signalBufferSize = 1
	exitCode         = 1
)

func setupSignalHandling() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, signalBufferSize)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("shutdown signal received, stopping validator")
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

	validator := service.NewValidatorServiceImpl(publisher, cfg.AlertThreshold)

	slog.Info("starting validation consumer",
		slog.String("service", "validator"),
		slog.String("stream", cfg.EventsStream),
		slog.String("group", groupName),
		slog.String("consumer", cfg.ConsumerName),
		slog.Float64("threshold", cfg.AlertThreshold),
	)

	if err := subscriber.Run(ctx, validator.OnEvent); err != nil {
		slog.Error("consumer stopped with error", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
}
