package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"payledger/internal/amqp"
	"payledger/internal/config"
	"payledger/internal/core"
	"payledger/internal/log"
	"payledger/internal/notify"
	"payledger/internal/services"
	"payledger/internal/storage"
	"payledger/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), Component: log.ComponentWorker})
	log.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, storage.Options{
		Dialect:     storage.Dialect(cfg.DataBackend),
		SQLitePath:  cfg.SQLiteDBPath,
		DatabaseURL: cfg.DatabaseURL,
	})
	if err != nil {
		logger.Error("Failed to open ledger store", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer store.Close()

	var events services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to connect to AMQP, overdue reports will not be published", "error", err)
		} else {
			defer client.Close()
			events = client
		}
	}

	var sender services.DigestSender
	if cfg.SMTPEnabled() {
		sender = notify.NewMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, cfg.DigestRecipients)
		logger.Info("Overdue digest e-mail enabled", "recipients", len(cfg.DigestRecipients))
	}

	clock := core.SystemClock{}
	views := services.NewViewService(services.Deps{Store: store, Clock: clock})
	processor := services.NewDigestProcessor(views, events, sender)

	w, err := worker.NewOverdueWorker(cfg.OverdueCron, processor, clock)
	if err != nil {
		logger.Error("Invalid overdue schedule", "error", err)
		os.Exit(1)
	}

	logger.Info("Running initial overdue check")
	if err := w.RunNow(ctx); err != nil {
		logger.Error("Initial overdue check failed", "error", err)
	}

	w.Start(ctx)
	<-ctx.Done()
	logger.Info("Shutdown signal received")
	w.Stop()
}
