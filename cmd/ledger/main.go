package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"payledger/internal/amqp"
	"payledger/internal/cache"
	"payledger/internal/config"
	"payledger/internal/core"
	apphttp "payledger/internal/http"
	"payledger/internal/log"
	"payledger/internal/services"
	"payledger/internal/storage"
)

func main() {
	// .env is optional outside local development
	_ = godotenv.Load()

	cfg := config.Load()
	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), Component: log.ComponentApp})
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

	deps := services.Deps{Store: store, Clock: core.SystemClock{}}

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to connect to AMQP, ledger events will not be published", "error", err)
		} else {
			defer client.Close()
			deps.Events = client
			logger.Info("AMQP publisher ready", "exchange", cfg.AMQPExchange)
		}
	} else {
		logger.Info("AMQP disabled, ledger events will not be published")
	}

	q := store.Queries()
	refs := cache.NewReferences(1024, cfg.ReferenceCacheTTL, q.CategoryExists, q.ProjectExists)
	janitor := cache.NewJanitor(refs.Cleaner())
	janitor.Start(cfg.ReferenceCacheTTL)
	defer janitor.Stop()
	deps.Refs = refs

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		CORSAllowedOrigins: apphttp.ParseOrigins(cfg.CORSAllowedOrigins),
		Clock:              deps.Clock,
		Logger:             logger,
		Ready:              store.Ping,
	}, apphttp.Services{
		Ledger:     services.NewLedgerService(deps),
		Payments:   services.NewPaymentService(deps),
		Schedules:  services.NewScheduleService(deps),
		Loans:      services.NewLoanService(deps),
		Views:      services.NewViewService(deps),
		References: services.NewReferenceService(deps),
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting ledger API", "port", cfg.Port, "backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("Server error", "error", err, "port", cfg.Port)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	logger.Info("Ledger API stopped")
}
