// Monitor Judicial WhatsApp agent server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/generative-ai-go/genai"
	"github.com/joho/godotenv"
	"github.com/monitor-judicial/whatsapp-agent/internal/agent"
	"github.com/monitor-judicial/whatsapp-agent/internal/api"
	"github.com/monitor-judicial/whatsapp-agent/internal/config"
	"github.com/monitor-judicial/whatsapp-agent/internal/currency"
	"github.com/monitor-judicial/whatsapp-agent/internal/domain"
	"github.com/monitor-judicial/whatsapp-agent/internal/executor"
	"github.com/monitor-judicial/whatsapp-agent/internal/identity"
	"github.com/monitor-judicial/whatsapp-agent/internal/llm"
	"github.com/monitor-judicial/whatsapp-agent/internal/middleware"
	"github.com/monitor-judicial/whatsapp-agent/internal/store"
	"github.com/monitor-judicial/whatsapp-agent/internal/tools"
	"github.com/monitor-judicial/whatsapp-agent/internal/whatsapp"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/option"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server",
		"port", cfg.Port,
		"dev", cfg.IsDevelopment(),
		"container", config.IsContainer(),
		"store", cfg.Store.Driver,
		"providers", cfg.LLM.Providers)

	// Initialize dependencies.
	repo, err := newRepository(context.Background(), cfg)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	profiles, err := store.NewCachedProfiles(repo, cfg.Store.ProfileCacheTTL)
	if err != nil {
		slog.Error("Failed to initialize profile cache", "error", err)
		os.Exit(1)
	}

	providers, closeProviders, err := newProviders(context.Background(), cfg)
	if err != nil {
		slog.Error("Failed to initialize model providers", "error", err)
		os.Exit(1)
	}
	defer closeProviders()

	codec, err := llm.CodecFor(cfg.LLM.Providers[0])
	if err != nil {
		slog.Error("Failed to select history codec", "error", err)
		os.Exit(1)
	}

	conversationLogger, err := agent.NewConversationLogger(agent.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := conversationLogger.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	// Initialize services.
	agentCfg := agent.Config{
		MaxIterations: cfg.Agent.MaxIterations,
		HistoryWindow: cfg.Agent.HistoryWindow,
		MaxPersisted:  cfg.Agent.MaxPersisted,
		RateLimit: agent.RateLimitConfig{
			RequestsPerWindow: cfg.Agent.RateLimitRequests,
			Window:            cfg.Agent.RateLimitWindow,
		},
		MaxRequestBody: cfg.Agent.MaxRequestBody,
	}
	exec := executor.New(profiles, currency.NewDetector(domain.ParseCurrency(cfg.DefaultCurrency)), executor.Options{
		StoreTimeout:    cfg.Store.Timeout,
		DefaultLocation: cfg.Location(),
	})
	router := llm.NewRouter(cfg.LLM.Timeout, providers...)
	orchestrator := agent.NewOrchestrator(router, exec, agentCfg)
	media := whatsapp.NewMediaFetcher(nil, cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.MediaHosts...)
	service := agent.NewService(orchestrator, profiles, codec, media, conversationLogger, agentCfg)

	// Initialize handlers.
	apiHandler := api.NewHandler(profiles, api.Info{
		Providers:      router.Providers(),
		CatalogVersion: tools.CatalogVersion,
		Environment:    cfg.AppEnv,
		Channels:       []string{agent.ChannelWhatsApp, agent.ChannelHTTP, agent.ChannelWebSocket},
	})
	agentHandler := agent.NewHandler(service, service, agentCfg, cfg.FrontendURL, cfg.IsDevelopment())
	defer agentHandler.Close()
	webhookHandler := whatsapp.NewHandler(service, profiles, whatsapp.Config{
		AuthToken:         cfg.Twilio.AuthToken,
		PublicURL:         cfg.Twilio.WebhookURL,
		ValidateSignature: cfg.Twilio.ValidateSignature,
	})

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	// Twilio authenticates with its signature, not the API key.
	webhookHandler.RegisterRoutes(r)

	r.Group(func(protected chi.Router) {
		protected.Use(middleware.CORS(allowedOrigins(cfg)))
		protected.Use(identity.Middleware(cfg.APIKey, cfg.IsDevelopment()))
		apiHandler.RegisterRoutes(r, protected)
		agentHandler.RegisterRoutes(protected)
	})

	// Create server.
	// WriteTimeout stays off for the WebSocket route; model calls are
	// bounded by MODEL_TIMEOUT instead.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start TTL worker.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agent.StartTTLWorker(ctx, repo, cfg.Agent.ConversationTTL, cfg.Agent.CleanupInterval)
	slog.Info("TTL worker started", "conversation_ttl", cfg.Agent.ConversationTTL)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

func newRepository(ctx context.Context, cfg *config.Config) (store.Repository, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return store.NewSQLite(cfg.Store.DBPath)
	}
}

// newProviders builds the model providers in fallback order. The returned
// func releases their clients.
func newProviders(ctx context.Context, cfg *config.Config) ([]llm.Provider, func(), error) {
	var providers []llm.Provider
	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				slog.Warn("Failed to close model client", "error", err)
			}
		}
	}

	for _, name := range cfg.LLM.Providers {
		switch name {
		case "gemini":
			client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.LLM.GeminiAPIKey))
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("create gemini client: %w", err)
			}
			closers = append(closers, client.Close)
			providers = append(providers, llm.NewGemini(client, cfg.LLM.GeminiModel, cfg.LLM.GeminiTemperature))
		case "openai":
			providers = append(providers, llm.NewOpenAI(openai.NewClient(cfg.LLM.OpenAIAPIKey), cfg.LLM.OpenAIModel))
		case "anthropic":
			client := anthropic.NewClient(anthropicopt.WithAPIKey(cfg.LLM.AnthropicAPIKey))
			providers = append(providers, llm.NewAnthropic(&client, cfg.LLM.AnthropicModel, cfg.LLM.AnthropicMaxTokens))
		default:
			closeAll()
			return nil, nil, fmt.Errorf("unknown provider %q", name)
		}
		slog.Info("Model provider configured", "provider", name, "priority", len(providers))
	}
	return providers, closeAll, nil
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.IsDevelopment() || cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}
