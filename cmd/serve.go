package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/YelzhanWeb/pizzaline/internal/adapter/archive"
	"github.com/YelzhanWeb/pizzaline/internal/adapter/llm"
	"github.com/YelzhanWeb/pizzaline/internal/adapter/logger"
	"github.com/YelzhanWeb/pizzaline/internal/adapter/memory"
	"github.com/YelzhanWeb/pizzaline/internal/adapter/postgres"
	"github.com/YelzhanWeb/pizzaline/internal/app/calendar"
	"github.com/YelzhanWeb/pizzaline/internal/app/conversation"
	"github.com/YelzhanWeb/pizzaline/internal/app/extractor"
	"github.com/YelzhanWeb/pizzaline/internal/app/reservation"
	"github.com/YelzhanWeb/pizzaline/internal/app/tracking"
	"github.com/YelzhanWeb/pizzaline/internal/config"
	"github.com/YelzhanWeb/pizzaline/internal/interfaces"

	httpAdapter "github.com/YelzhanWeb/pizzaline/internal/adapter/http"
)

func newServeCmd(load configLoader) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP ordering service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "HTTP port, overrides server.port")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	lgr := newLogger(cfg, "ordering-service")
	flush := initSentry(cfg, lgr)
	defer flush()

	businesses, err := cfg.DomainBusinesses()
	if err != nil {
		return err
	}
	directory, err := memory.NewBusinessDirectory(businesses)
	if err != nil {
		return err
	}

	var db postgres.DB
	if needsDatabase(cfg) {
		db, err = connectDatabase(ctx, cfg, lgr)
		if err != nil {
			return err
		}
		defer db.Close()
	}
	capacity, sessions := stores(cfg, db)

	publisher, closePublisher, err := newPublisher(cfg, lgr)
	if err != nil {
		return err
	}
	defer closePublisher()

	var archiver interfaces.TranscriptArchiver
	if cfg.Archive.Enabled {
		s3Archiver, err := archive.NewS3Archiver(ctx, cfg.Archive.Region, cfg.Archive.Bucket, cfg.Archive.Prefix)
		if err != nil {
			return err
		}
		archiver = s3Archiver
	}

	var extractorOpts []extractor.Option
	if len(cfg.Confirmation.Phrases) > 0 {
		extractorOpts = append(extractorOpts, extractor.WithConfirmationPredicate(extractor.PhraseMatcher(cfg.Confirmation.Phrases)))
	}

	responder, err := llm.NewResponder(llm.Config{
		APIKey:      cfg.LLM.APIKey,
		Endpoint:    cfg.LLM.Endpoint,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	})
	if err != nil {
		return err
	}

	reservations := memory.NewReservationRepository()
	cal := calendar.New(capacity)
	coordinator := reservation.NewCoordinator(capacity, cal, reservations, publisher, lgr)
	engine := conversation.NewEngine(conversation.Deps{
		Directory:    directory,
		Registry:     sessions,
		Reservations: reservations,
		Extractor:    extractor.New(extractorOpts...),
		Calendar:     cal,
		Coordinator:  coordinator,
		Responder:    responder,
		Archiver:     archiver,
		Logger:       lgr,
	})

	go engine.RunJanitor(ctx, cfg.Sessions.SweepInterval, cfg.Sessions.IdleTTL)

	var trackingHandler *httpAdapter.TrackingHandler
	if db != nil {
		trackingHandler = httpAdapter.NewTrackingHandler(tracking.NewService(postgres.NewOrderRepository(db), coordinator, lgr), lgr)
	}
	handler := httpAdapter.NewRouter(
		httpAdapter.NewConversationHandler(engine, lgr),
		trackingHandler,
		lgr,
		httpAdapter.RateLimitConfig{
			RequestsPerSecond: cfg.Server.RateLimit.RequestsPerSecond,
			Burst:             cfg.Server.RateLimit.Burst,
		},
	)

	lgr.Info("service_started", fmt.Sprintf("Ordering service started on port %d", cfg.Server.Port), "startup", map[string]interface{}{
		"port":       cfg.Server.Port,
		"businesses": len(businesses),
		"capacity":   cfg.Capacity.Backend,
		"sessions":   cfg.Sessions.Backend,
		"events":     cfg.Events.Driver,
	})
	return serveHTTP(ctx, cfg, handler, lgr)
}

func serveHTTP(ctx context.Context, cfg *config.Config, handler http.Handler, lgr logger.Logger) error {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		lgr.Info("shutdown_initiated", "Shutting down HTTP server", "shutdown", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			lgr.Error("shutdown_error", "Error during shutdown", "shutdown", nil, err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
