package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/YelzhanWeb/pizzaline/internal/adapter/postgres"
	"github.com/YelzhanWeb/pizzaline/internal/adapter/rabbitmq"
	"github.com/YelzhanWeb/pizzaline/internal/app/recorder"
	"github.com/YelzhanWeb/pizzaline/internal/app/tracking"
	"github.com/YelzhanWeb/pizzaline/internal/config"

	amqpAdapter "github.com/YelzhanWeb/pizzaline/internal/adapter/amqp"
	httpAdapter "github.com/YelzhanWeb/pizzaline/internal/adapter/http"
)

func newRecorderCmd(load configLoader) *cobra.Command {
	var (
		prefetch int
		port     int
	)

	cmd := &cobra.Command{
		Use:   "recorder",
		Short: "Persist reservation events from RabbitMQ as orders and serve order tracking",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("prefetch") {
				cfg.Recorder.Prefetch = prefetch
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runRecorder(ctx, cfg)
		},
	}
	cmd.Flags().IntVar(&prefetch, "prefetch", 0, "RabbitMQ prefetch count, overrides recorder.prefetch")
	cmd.Flags().IntVar(&port, "port", 0, "Tracking HTTP port, overrides server.port")
	return cmd
}

func runRecorder(ctx context.Context, cfg *config.Config) error {
	lgr := newLogger(cfg, "order-recorder")
	flush := initSentry(cfg, lgr)
	defer flush()

	db, err := connectDatabase(ctx, cfg, lgr)
	if err != nil {
		return err
	}
	defer db.Close()

	mqConn, err := rabbitmq.Connect(cfg.RabbitMQ)
	if err != nil {
		return err
	}
	defer mqConn.Close()

	lgr.Info("rabbitmq_connected", "Connected to RabbitMQ", "startup", map[string]interface{}{
		"host": cfg.RabbitMQ.Host,
	})

	orderRepo := postgres.NewOrderRepository(db)
	recorderService := recorder.NewService(orderRepo, lgr, recorder.DefaultName)
	handler := amqpAdapter.NewReservationHandler(recorderService, lgr)
	consumer := rabbitmq.NewConsumer(mqConn, cfg.Recorder.Prefetch, lgr)

	go func() {
		if err := consumer.ConsumeReservations(ctx, handler.HandleReservation); err != nil && ctx.Err() == nil {
			lgr.Error("consumer_error", "Error consuming reservations", "runtime", nil, err)
		}
	}()

	router := httpAdapter.NewRouter(nil,
		// без счётчиков слотов: отмена заказа возвращает 409
		httpAdapter.NewTrackingHandler(tracking.NewService(orderRepo, nil, lgr), lgr),
		lgr,
		httpAdapter.RateLimitConfig{
			RequestsPerSecond: cfg.Server.RateLimit.RequestsPerSecond,
			Burst:             cfg.Server.RateLimit.Burst,
		},
	)

	lgr.Info("service_started", fmt.Sprintf("Order recorder started, tracking on port %d", cfg.Server.Port), "startup", map[string]interface{}{
		"prefetch": cfg.Recorder.Prefetch,
	})
	return serveHTTP(ctx, cfg, router, lgr)
}
