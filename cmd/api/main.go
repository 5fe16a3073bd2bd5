// Package main is the entry point for the relay server.
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
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/juneau-ai/loop-relay/internal/alert"
	"github.com/juneau-ai/loop-relay/internal/config"
	"github.com/juneau-ai/loop-relay/internal/gateway"
	"github.com/juneau-ai/loop-relay/internal/handler"
	"github.com/juneau-ai/loop-relay/internal/llm"
	"github.com/juneau-ai/loop-relay/internal/middleware"
	"github.com/juneau-ai/loop-relay/internal/queue"
	"github.com/juneau-ai/loop-relay/internal/relay"
	"github.com/juneau-ai/loop-relay/internal/store"
	"github.com/juneau-ai/loop-relay/pkg/logger"
	"github.com/juneau-ai/loop-relay/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting relay server")

	// Initialize tracing if enabled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "loop-relay", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing")
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS
	conn, err := queue.Connect(queue.ConnConfig{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS")
		os.Exit(1)
	}
	defer conn.Close()

	// Queues: one client per direction, same abstraction
	inboundQueue := queue.New(conn, cfg.InboundStream, cfg.InboundSubject, log)
	outboundQueue := queue.New(conn, cfg.OutboundStream, cfg.OutboundSubject, log)
	for _, q := range []*queue.Client{inboundQueue, outboundQueue} {
		if err := q.EnsureStream(ctx); err != nil {
			log.Error("failed to ensure queue stream")
			os.Exit(1)
		}
	}

	// Conversation store
	conversations := store.NewConversationStore(conn, cfg.ConversationStream)
	if err := conversations.EnsureStream(ctx); err != nil {
		log.Error("failed to ensure conversation stream")
		os.Exit(1)
	}
	counters, err := store.NewCounterStore(ctx, conn, cfg.CounterBucket)
	if err != nil {
		log.Error("failed to open counter bucket")
		os.Exit(1)
	}
	attachments, err := store.NewAttachmentStore(ctx, conn, cfg.AttachmentBucket, cfg.AttachmentBaseURL)
	if err != nil {
		log.Error("failed to open attachment bucket")
		os.Exit(1)
	}

	// Initialize LLM client
	var llmClient llm.Client
	if cfg.AnthropicAPIKey != "" {
		llmClient, err = llm.NewAnthropicClient(cfg.AnthropicAPIKey)
		if err != nil {
			log.Warn("failed to create Anthropic client")
		}
	} else if cfg.OpenAIAPIKey != "" {
		llmClient, err = llm.NewOpenAIClient(cfg.OpenAIAPIKey)
		if err != nil {
			log.Warn("failed to create OpenAI client")
		}
	}
	if llmClient == nil {
		log.Error("no LLM API key configured")
		os.Exit(1)
	}

	// Pipeline and consumers
	httpClient := &http.Client{Timeout: 30 * time.Second}

	pipeline := relay.NewService(
		conversations, counters, attachments, outboundQueue, llmClient, httpClient,
		relay.Config{
			Model:           cfg.DefaultModel,
			MaxPromptTokens: cfg.MaxPromptTokens,
			SenderName:      cfg.LoopSenderName,
		},
		log,
	)

	dispatcher := alert.NewDispatcher(pipeline, log)

	gatewayClient := gateway.NewClient(gateway.Config{
		BaseURL:   cfg.GatewayURL,
		AuthKey:   cfg.LoopAuthKey,
		SecretKey: cfg.LoopSecretKey,
	}, httpClient, log)

	sender := relay.NewSender(gatewayClient, log)

	go func() {
		if err := inboundQueue.Consume(ctx, "relay-inbound", cfg.InboundMaxConcurrency, dispatcher.HandleQueueMessage); err != nil && ctx.Err() == nil {
			log.Error("inbound consumer stopped")
		}
	}()
	go func() {
		if err := outboundQueue.Consume(ctx, "relay-outbound", cfg.OutboundMaxConcurrency, sender.HandleQueueMessage); err != nil && ctx.Err() == nil {
			log.Error("outbound consumer stopped")
		}
	}()

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(conn)
	webhookHandler := handler.NewWebhookHandler(inboundQueue, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Liveness for the gateway poller (no auth required)
	r.Get("/", webhookHandler.Root)

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Webhook intake
	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerAuth(cfg.LoopBearerToken))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		r.Post("/loop", webhookHandler.Receive)
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error")
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown")
	}

	log.Info("server stopped")
}
