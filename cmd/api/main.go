// Package main is the entry point for the API server.
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
	"go.uber.org/zap"

	"github.com/capitalize-ai/funnel-platform/internal/config"
	"github.com/capitalize-ai/funnel-platform/internal/handler"
	"github.com/capitalize-ai/funnel-platform/internal/llm"
	"github.com/capitalize-ai/funnel-platform/internal/middleware"
	natsclient "github.com/capitalize-ai/funnel-platform/internal/nats"
	"github.com/capitalize-ai/funnel-platform/internal/service"
	"github.com/capitalize-ai/funnel-platform/internal/store"
	"github.com/capitalize-ai/funnel-platform/pkg/logger"
	"github.com/capitalize-ai/funnel-platform/pkg/tracing"
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

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "funnel-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Open the funnel store
	storeCfg := store.Config{
		Path:           cfg.StorePath,
		InMemory:       cfg.StoreInMemory,
		SyncWrites:     cfg.StoreSyncWrites,
		GCInterval:     cfg.StoreGCInterval,
		GCDiscardRatio: cfg.StoreGCDiscardRatio,
	}
	st, err := store.Open(storeCfg, log)
	if err != nil {
		log.Error("failed to open store", zap.Error(err))
		os.Exit(1)
	}
	defer st.Close()

	// Connect to NATS
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

	// Ensure the chat transcript stream exists
	streamManager := natsclient.NewStreamManager(natsClient)
	if err := streamManager.EnsureStream(ctx); err != nil {
		log.Error("failed to ensure stream", zap.Error(err))
		os.Exit(1)
	}

	// Initialize LLM client; generation is disabled when no key is set
	var llmClient llm.Client
	if cfg.AnthropicAPIKey != "" {
		llmClient, err = llm.NewAnthropicClient(cfg.AnthropicAPIKey)
		if err != nil {
			log.Warn("failed to create Anthropic client, generation disabled", zap.Error(err))
		}
	} else if cfg.OpenAIAPIKey != "" {
		llmClient, err = llm.NewOpenAIClient(cfg.OpenAIAPIKey)
		if err != nil {
			log.Warn("failed to create OpenAI client, generation disabled", zap.Error(err))
		}
	} else {
		log.Warn("no LLM API key configured, generation disabled")
	}

	// Initialize services
	funnelSvc := service.NewFunnelService(st, log)
	resourceSvc := service.NewResourceService(st, log)
	generationSvc := service.NewGenerationService(st, llmClient, service.GenerationConfig{
		Model:     cfg.GenerationModel,
		MaxTokens: cfg.GenerationMaxTokens,
		Timeout:   cfg.GenerationTimeout,
	}, log)
	chatSvc := service.NewChatService(st, streamManager, log)
	analyticsSvc := service.NewAnalyticsService(st, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(natsClient, st)
	funnelHandler := handler.NewFunnelHandler(funnelSvc, generationSvc, log)
	resourceHandler := handler.NewResourceHandler(resourceSvc, log)
	sessionHandler := handler.NewSessionHandler(chatSvc, log)
	chatWSHandler := handler.NewChatWSHandler(chatSvc, log)
	streamHandler := handler.NewStreamHandler(chatSvc, streamManager, log)
	analyticsHandler := handler.NewAnalyticsHandler(analyticsSvc, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Public visitor chat endpoints; rate limited by IP
	r.Route("/chat", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Get("/ws", chatWSHandler.Serve)
		r.Post("/sessions", sessionHandler.StartSession)
		r.Post("/sessions/{id}/messages", sessionHandler.PostMessage)
	})

	// Dashboard API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		// Funnels
		r.Route("/funnels", func(r chi.Router) {
			r.Post("/", funnelHandler.Create)
			r.Get("/", funnelHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", funnelHandler.Get)
				r.Put("/", funnelHandler.Update)
				r.Delete("/", funnelHandler.Delete)

				r.Post("/deploy", funnelHandler.Deploy)
				r.Post("/undeploy", funnelHandler.Undeploy)

				r.Get("/layout", funnelHandler.Layout)
				r.Get("/path", funnelHandler.Path)

				r.Post("/resources", funnelHandler.AttachResource)
				r.Delete("/resources/{resourceId}", funnelHandler.DetachResource)
			})
		})

		// AI flow generation
		r.Post("/generate-funnel", funnelHandler.Generate)

		// Resource library
		r.Route("/resources", func(r chi.Router) {
			r.Post("/", resourceHandler.Create)
			r.Get("/", resourceHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", resourceHandler.Get)
				r.Put("/", resourceHandler.Update)
				r.Delete("/", resourceHandler.Delete)
			})
		})

		// Session monitoring
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", sessionHandler.List)
			r.Get("/{id}", sessionHandler.Get)
			r.Get("/{id}/stream", streamHandler.Stream)
		})

		// Sales and analytics
		r.Post("/orders", analyticsHandler.CreateOrder)
		r.Get("/orders", analyticsHandler.ListOrders)
		r.Post("/members", analyticsHandler.CreateMember)
		r.Route("/analytics", func(r chi.Router) {
			r.Get("/summary", analyticsHandler.Summary)
			r.Get("/revenue", analyticsHandler.Revenue)
			r.Get("/members", analyticsHandler.Members)
			r.Get("/funnels", analyticsHandler.Funnels)
		})
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
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
