// Package main is the entry point for the pipeline worker: queue
// consumer, timeout monitor and admin/metrics server in one process.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/atendai/conversation-pipeline/internal/channel"
	"github.com/atendai/conversation-pipeline/internal/config"
	"github.com/atendai/conversation-pipeline/internal/llm"
	"github.com/atendai/conversation-pipeline/internal/memory"
	"github.com/atendai/conversation-pipeline/internal/monitor"
	natsclient "github.com/atendai/conversation-pipeline/internal/nats"
	"github.com/atendai/conversation-pipeline/internal/orchestrator"
	"github.com/atendai/conversation-pipeline/internal/pipeline"
	"github.com/atendai/conversation-pipeline/internal/rag"
	"github.com/atendai/conversation-pipeline/internal/realtime"
	"github.com/atendai/conversation-pipeline/internal/resilience"
	"github.com/atendai/conversation-pipeline/internal/router"
	"github.com/atendai/conversation-pipeline/internal/store"
	"github.com/atendai/conversation-pipeline/internal/tools"
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

	log.Info("starting pipeline worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "conversation-pipeline-worker", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	db, err := store.Open(cfg.DatabaseDSN)
	if err != nil {
		log.Error("failed to open store", zap.Error(err))
		os.Exit(1)
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

	completionClient, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey)
	if err != nil {
		log.Error("failed to create completion client", zap.Error(err))
		os.Exit(1)
	}

	// Summaries run on the cheaper Anthropic path when a key is set.
	var summarizer llm.Client = completionClient
	summaryModel := cfg.SummaryModel
	if cfg.AnthropicAPIKey != "" {
		if anthro, err := llm.NewAnthropicClient(cfg.AnthropicAPIKey); err != nil {
			log.Warn("failed to create Anthropic client, summaries use the completion client", zap.Error(err))
		} else {
			summarizer = anthro
			summaryModel = "claude-3-5-haiku-20241022"
		}
	}

	embedder := rag.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingModel)
	retriever := rag.NewRetriever(db, embedder, log, cfg.RetrievalTopK, cfg.RetrievalThreshold)
	indexer := rag.NewIndexer(db, embedder, log)

	gateway := channel.NewHTTPGateway(cfg.ChannelGatewayURL, cfg.ChannelGatewayToken)
	dispatcher := webhook.NewDispatcher(db, log)
	emitter := realtime.NewEmitter(natsClient.Conn(), log)
	memoryMgr := memory.NewManager(db, summarizer, summaryModel, log)

	executor := tools.NewExecutor(db, dispatcher, log)
	breaker := resilience.NewCircuitBreaker("completion", 5, 30*time.Second)
	orch := orchestrator.New(completionClient, executor, retriever, memoryMgr, db, breaker, log, cfg.CompletionModel)

	agentRouter := router.New(db, log)
	processor := pipeline.New(db, agentRouter, orch, gateway, memoryMgr, dispatcher, emitter, log)

	var wg sync.WaitGroup

	for i := 0; i < cfg.WorkerConcurrency; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := queue.Consume(ctx, processor.HandleJob); err != nil && ctx.Err() == nil {
				log.Error("consumer stopped", zap.Int("worker", n), zap.Error(err))
			}
		}(i)
	}

	reindexSub, err := queue.OnReindex(func(sourceID string) {
		src, err := db.GetSource(ctx, sourceID)
		if err != nil {
			log.Warn("reindex request for unknown source", zap.String("source_id", sourceID), zap.Error(err))
			return
		}
		if err := indexer.ReindexSource(ctx, src); err != nil {
			log.Error("reindex failed", zap.String("source_id", sourceID), zap.Error(err))
		}
	})
	if err != nil {
		log.Error("failed to subscribe for reindex requests", zap.Error(err))
		os.Exit(1)
	}
	defer reindexSub.Unsubscribe()

	mon := monitor.New(db, gateway, memoryMgr, dispatcher, emitter, log,
		cfg.WarningThreshold, cfg.CloseThreshold)
	wg.Add(1)
	go func() {
		defer wg.Done()
		mon.Start(ctx, cfg.MonitorInterval)
	}()

	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	adminMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	adminServer := &http.Server{
		Addr:    ":" + cfg.AdminPort,
		Handler: adminMux,
	}
	go func() {
		log.Info("admin server listening", zap.String("port", cfg.AdminPort))
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("admin server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		log.Error("admin server forced to shutdown", zap.Error(err))
	}

	wg.Wait()
	log.Info("worker stopped")
}
