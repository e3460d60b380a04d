// Package main is the entry point for the ingest API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/atendai/conversation-pipeline/internal/config"
	"github.com/atendai/conversation-pipeline/internal/handler"
	"github.com/atendai/conversation-pipeline/internal/middleware"
	natsclient "github.com/atendai/conversation-pipeline/internal/nats"
	"github.com/atendai/conversation-pipeline/internal/resilience"
	"github.com/atendai/conversation-pipeline/internal/store"
	"github.com/atendai/conversation-pipeline/internal/webhook"
	"github.com/atendai/conversation-pipeline/pkg/logger"
	"github.com/atendai/conversation-pipeline/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting ingest API server")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "conversation-pipeline-api", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	natsClient, err := natsclient.Connect(ctx, natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer natsClient.Close()

	queue := natsclient.NewJobQueue(natsClient)
	if err := queue.EnsureStream(ctx); err != nil {
		log.Error("failed to ensure job stream", zap.Error(err))
		os.Exit(1)
	}

	db, err := store.Open(cfg.DatabaseDSN)
	if err != nil {
		log.Error("failed to open store", zap.Error(err))
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer rdb.Close()
	limiter := resilience.NewRateLimiter(rdb, log)

	dispatcher := webhook.NewDispatcher(db, log)

	healthHandler := handler.NewHealthHandler(natsClient)
	ingestHandler := handler.NewIngestHandler(queue, log)
	conversationHandler := handler.NewConversationHandler(db, log)
	webhookHandler := handler.NewWebhookHandler(db, dispatcher, log)
	trainingHandler := handler.NewTrainingHandler(db, queue, log)
	productHandler := handler.NewProductHandler(db, log)
	dealHandler := handler.NewDealHandler(db, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS())
	r.Use(middleware.BurstLimit(300, time.Minute))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.Limit(limiter, resilience.PresetAPI))

		// Channel gateway callback; bursty, gets its own window.
		r.With(middleware.Limit(limiter, resilience.PresetWebhook)).
			Post("/messages", ingestHandler.Ingest)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversationHandler.List)
			r.Get("/{id}/messages", conversationHandler.Messages)
		})

		r.With(middleware.Limit(limiter, resilience.PresetUpload)).
			Post("/training/{id}/reindex", trainingHandler.Reindex)

		r.Route("/products", func(r chi.Router) {
			r.Use(middleware.Limit(limiter, resilience.PresetAdmin))
			r.Post("/", productHandler.Create)
			r.Get("/", productHandler.List)
		})

		r.Route("/deals", func(r chi.Router) {
			r.Use(middleware.Limit(limiter, resilience.PresetAdmin))
			r.Post("/", dealHandler.Create)
			r.Get("/", dealHandler.List)
		})

		r.Route("/webhooks", func(r chi.Router) {
			r.Use(middleware.Limit(limiter, resilience.PresetAdmin))
			r.Post("/", webhookHandler.Create)
			r.Get("/", webhookHandler.List)
			r.Delete("/{id}", webhookHandler.Delete)
			r.Post("/{id}/test", webhookHandler.Test)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.APIPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
