package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/scholarlink/relay/internal/config"
	"github.com/scholarlink/relay/internal/gateway"
	"github.com/scholarlink/relay/internal/messages"
	"github.com/scholarlink/relay/internal/observability"
	"github.com/scholarlink/relay/internal/relay"
)

const shutdownTimeout = 30 * time.Second

// loadConfig reads the config file at path, or returns defaults when no path
// is given.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// openStore builds the message store selected by store.driver.
func openStore(cfg *config.Config) (messages.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return messages.NewMemoryStore(), nil
	case "sqlite":
		return messages.NewSQLiteStore(cfg.Store.Path)
	case "postgres":
		return messages.NewPostgresStore(&messages.PostgresConfig{
			DSN:             cfg.Store.DSN,
			MaxOpenConns:    cfg.Store.MaxOpenConns,
			MaxIdleConns:    cfg.Store.MaxIdleConns,
			ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
			ConnMaxIdleTime: 2 * time.Minute,
			ConnectTimeout:  cfg.Store.ConnectTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if debug {
		cfg.Log.Level = "debug"
		cfg.Log.Format = "text"
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	slog.SetDefault(logger)

	metrics := observability.NewMetrics()

	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "relay",
		ServiceVersion: version,
		Environment:    cfg.Trace.Environment,
		Endpoint:       cfg.Trace.Endpoint,
		SamplingRate:   cfg.Trace.SamplingRate,
		EnableInsecure: cfg.Trace.Insecure,
	})

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	registry := relay.NewRegistry(logger, metrics)
	service := relay.NewService(registry, store, relay.Options{
		MaxBatch: cfg.Relay.MaxBatch,
		Logger:   logger,
		Metrics:  metrics,
		Tracer:   tracer,
	})

	server := gateway.NewServer(cfg, logger, metrics, service)
	if err := server.Start(ctx); err != nil {
		store.Close()
		return fmt.Errorf("failed to start server: %w", err)
	}

	logger.Info("relay started",
		"version", version,
		"addr", cfg.Server.Addr(),
		"store", cfg.Store.Driver,
	)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	if err := store.Close(); err != nil {
		logger.Error("store close failed", "error", err)
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Error("tracer shutdown failed", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS messages (
	id           TEXT PRIMARY KEY,
	booking_id   TEXT NOT NULL,
	sender_id    TEXT NOT NULL,
	recipient_id TEXT NOT NULL,
	content      TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'sent',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	read_at      TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_messages_booking ON messages (booking_id, created_at);
`

func runMigrate(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch cfg.Store.Driver {
	case "memory":
		return fmt.Errorf("the memory driver has no schema to migrate")
	case "sqlite":
		store, err := messages.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("failed to open sqlite store: %w", err)
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	case "postgres":
		// The store constructor prepares statements against the messages
		// table, so migration uses a plain connection.
		db, err := sql.Open("postgres", cfg.Store.DSN)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	fmt.Println("migration complete")
	return nil
}
