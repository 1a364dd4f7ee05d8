// Package main provides the servicebus server executable with an HTTP publishing API
// and an optional webhook relay subscriber.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/coregx/servicebus"
	"github.com/coregx/servicebus/adapters/relica"
	"github.com/coregx/servicebus/cmd/servicebus-server/internal/api"
	"github.com/coregx/servicebus/cmd/servicebus-server/internal/config"
	"github.com/coregx/servicebus/cmd/servicebus-server/internal/relay"
	"github.com/coregx/servicebus/logging"
)

const version = "0.2.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "servicebus-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	zl, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()

	logger := logging.NewZapLogger(zl)

	zl.Info("Starting servicebus server",
		zap.String("version", version),
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)),
		zap.String("driver", cfg.Database.Driver),
		zap.String("queue", cfg.Bus.Queue),
		zap.Strings("extraQueues", cfg.Bus.ExtraQueues),
		zap.Bool("relay", cfg.Relay.Enabled()),
	)

	// Connect to database
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.GetDSN())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			zl.Warn("Failed to close database", zap.Error(closeErr))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := servicebus.ApplyMigrations(ctx, db, cfg.Database.Driver, cfg.Database.Prefix); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	zl.Info("Database ready")

	transport, err := relica.NewTransport(db, cfg.Database.Driver,
		relica.WithTablePrefix(cfg.Database.Prefix),
		relica.WithPollInterval(cfg.Bus.PollInterval, cfg.Bus.MaxPollInterval),
		relica.WithLogger(logger.Named("transport")),
	)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}

	publisher, err := servicebus.NewPublisher[json.RawMessage](ctx, transport, cfg.Bus.Queue, publisherOptions(cfg, logger)...)
	if err != nil {
		return fmt.Errorf("failed to create publisher: %w", err)
	}
	defer func() { _ = publisher.Close(context.Background()) }()

	manager, err := servicebus.NewSubscriptionManager(
		servicebus.WithSubscriptionManagerLogger(logger.Named("subscriptions")),
	)
	if err != nil {
		return fmt.Errorf("failed to create subscription manager: %w", err)
	}

	if cfg.Relay.Enabled() {
		sub, err := relay.NewSubscriber(ctx, transport, relay.Config{
			Queue:       cfg.Relay.Queue,
			WebhookURL:  cfg.Relay.WebhookURL,
			ErrorQueue:  cfg.Relay.ErrorQueue,
			MaxAttempts: cfg.Relay.MaxAttempts,
			Pause:       cfg.Relay.Pause,
			Timeout:     cfg.Relay.Timeout,
			AutoCreate:  cfg.Bus.AutoCreateQueues,
		}, logger.Named("relay"))
		if err != nil {
			return fmt.Errorf("failed to create relay subscriber: %w", err)
		}
		defer func() { _ = sub.Close(context.Background()) }()

		if err := manager.Register("relay", sub); err != nil {
			return err
		}
	}

	if err := manager.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start subscribers: %w", err)
	}

	handler := api.NewHandler(publisher, transport, manager, logger.Named("api"), version)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(handler, logger.Named("http")),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		zl.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal or a server failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		zl.Info("Shutting down server", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zl.Warn("Server forced to shutdown", zap.Error(err))
	}

	if err := manager.StopAll(); err != nil {
		zl.Warn("Failed to stop subscribers", zap.Error(err))
	}

	zl.Info("Server stopped gracefully")
	return nil
}

func publisherOptions(cfg *config.Config, logger servicebus.Logger) []servicebus.PublisherOption {
	opts := []servicebus.PublisherOption{
		servicebus.WithPublisherLogger(logger),
		servicebus.WithAmbientTransactions(),
	}
	if len(cfg.Bus.ExtraQueues) > 0 {
		opts = append(opts, servicebus.WithExtraQueues(cfg.Bus.ExtraQueues...))
	}
	if cfg.Bus.RoutingErrorQueue != "" {
		opts = append(opts, servicebus.WithRoutingErrorQueue(cfg.Bus.RoutingErrorQueue))
	}
	if cfg.Bus.IgnoreMismatch {
		opts = append(opts, servicebus.WithIgnorePatternMismatch())
	}
	if cfg.Bus.AutoCreateQueues {
		opts = append(opts, servicebus.WithPublisherAutoCreateLocalQueues())
	}
	return opts
}
