package main

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/YelzhanWeb/pizzaline/internal/adapter/kafka"
	"github.com/YelzhanWeb/pizzaline/internal/adapter/logger"
	"github.com/YelzhanWeb/pizzaline/internal/adapter/memory"
	"github.com/YelzhanWeb/pizzaline/internal/adapter/postgres"
	"github.com/YelzhanWeb/pizzaline/internal/adapter/rabbitmq"
	"github.com/YelzhanWeb/pizzaline/internal/config"
	"github.com/YelzhanWeb/pizzaline/internal/interfaces"
)

func newLogger(cfg *config.Config, service string) logger.Logger {
	return logger.NewWithConfig(service, logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
}

// initSentry is a no-op without a DSN. The returned func flushes pending events.
func initSentry(cfg *config.Config, lgr logger.Logger) func() {
	if cfg.Sentry.DSN == "" {
		return func() {}
	}

	env := cfg.Sentry.Environment
	if env == "" {
		env = "production"
	}
	release := cfg.Sentry.Release
	if release == "" {
		release = Version
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.Sentry.DSN,
		Environment:      env,
		Release:          release,
		TracesSampleRate: 1.0,
		AttachStacktrace: true,
	})
	if err != nil {
		lgr.Error("sentry_init_failed", "Sentry initialization failed", "startup", nil, err)
		return func() {}
	}
	lgr.Info("sentry_initialized", "Sentry initialized", "startup", map[string]interface{}{
		"environment": env,
		"release":     release,
	})
	return func() { sentry.Flush(2 * time.Second) }
}

func needsDatabase(cfg *config.Config) bool {
	return cfg.Capacity.Backend == config.BackendPostgres || cfg.Sessions.Backend == config.BackendPostgres
}

func connectDatabase(ctx context.Context, cfg *config.Config, lgr logger.Logger) (postgres.DB, error) {
	db, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	lgr.Info("db_connected", "Connected to PostgreSQL database", "startup", map[string]interface{}{
		"host": cfg.Database.Host,
		"db":   cfg.Database.Database,
	})
	return db, nil
}

// stores picks the capacity and session backends; db may be nil when both
// are in memory
func stores(cfg *config.Config, db postgres.DB) (interfaces.CapacityStore, interfaces.SessionRegistry) {
	capacity := memory.NewCapacityStore()
	if cfg.Capacity.Backend == config.BackendPostgres {
		capacity = postgres.NewCapacityStore(db)
	}
	sessions := memory.NewSessionRegistry()
	if cfg.Sessions.Backend == config.BackendPostgres {
		sessions = postgres.NewSessionRepository(db)
	}
	return capacity, sessions
}

// newPublisher returns nil when events are disabled; reservations are then
// kept only in process memory
func newPublisher(cfg *config.Config, lgr logger.Logger) (interfaces.EventPublisher, func(), error) {
	switch cfg.Events.Driver {
	case config.DriverRabbitMQ:
		conn, err := rabbitmq.Connect(cfg.RabbitMQ)
		if err != nil {
			return nil, nil, err
		}
		lgr.Info("rabbitmq_connected", "Connected to RabbitMQ", "startup", map[string]interface{}{
			"host": cfg.RabbitMQ.Host,
		})
		return rabbitmq.NewPublisher(conn), func() { conn.Close() }, nil

	case config.DriverKafka:
		pub, err := kafka.NewPublisher(kafka.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic}, lgr)
		if err != nil {
			return nil, nil, err
		}
		return pub, func() { pub.Close() }, nil

	case config.DriverNone:
		return nil, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown events driver %q", cfg.Events.Driver)
}
