// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	// Embedded zone data; slim container images ship without it.
	_ "time/tzdata"
)

// Supported store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var knownProviders = map[string]bool{"gemini": true, "openai": true, "anthropic": true}

// Config holds all application configuration.
type Config struct {
	Port            string
	FrontendURL     string
	AppEnv          string
	APIKey          string
	DefaultTimezone string
	DefaultCurrency string

	Store           StoreConfig
	LLM             LLMConfig
	Agent           AgentConfig
	Twilio          TwilioConfig
	ConversationLog ConversationLogConfig
}

// StoreConfig selects and tunes the repository.
type StoreConfig struct {
	Driver          string
	DBPath          string
	DatabaseURL     string
	Timeout         time.Duration
	ProfileCacheTTL time.Duration
}

// LLMConfig lists the model providers in fallback order.
type LLMConfig struct {
	Providers          []string
	Timeout            time.Duration
	GeminiAPIKey       string
	GeminiModel        string
	GeminiTemperature  float32
	OpenAIAPIKey       string
	OpenAIModel        string
	AnthropicAPIKey    string
	AnthropicModel     string
	AnthropicMaxTokens int64
}

// AgentConfig bounds the conversation loop.
type AgentConfig struct {
	MaxIterations     int
	HistoryWindow     int
	MaxPersisted      int
	ConversationTTL   time.Duration
	CleanupInterval   time.Duration
	RateLimitRequests int
	RateLimitWindow   time.Duration
	MaxRequestBody    int64
}

// TwilioConfig holds the WhatsApp webhook credentials. MediaHosts are the
// only hosts voice notes are downloaded from.
type TwilioConfig struct {
	AccountSID        string
	AuthToken         string
	WebhookURL        string
	ValidateSignature bool
	MediaHosts        []string
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		FrontendURL:     getEnv("FRONTEND_URL", ""),
		AppEnv:          getEnv("APP_ENV", ""),
		APIKey:          getEnv("API_KEY", ""),
		DefaultTimezone: getEnv("DEFAULT_TIMEZONE", "America/Mexico_City"),
		DefaultCurrency: strings.ToUpper(getEnv("DEFAULT_CURRENCY", "MXN")),
		Store: StoreConfig{
			Driver:          strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
			DBPath:          getEnv("DB_PATH", "./data/agent.db"),
			DatabaseURL:     getEnv("DATABASE_URL", ""),
			Timeout:         getEnvDuration("STORE_TIMEOUT", 5*time.Second),
			ProfileCacheTTL: getEnvDuration("PROFILE_CACHE_TTL", 5*time.Minute),
		},
		LLM: LLMConfig{
			Providers:          getEnvList("LLM_PROVIDERS", []string{"gemini", "openai"}),
			Timeout:            getEnvDuration("MODEL_TIMEOUT", 30*time.Second),
			GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
			GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			GeminiTemperature:  float32(getEnvFloat("GEMINI_TEMPERATURE", 0.2)),
			OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			AnthropicAPIKey:    getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicModel:     getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
			AnthropicMaxTokens: int64(getEnvInt("ANTHROPIC_MAX_TOKENS", 1024)),
		},
		Agent: AgentConfig{
			MaxIterations:     getEnvInt("AGENT_MAX_ITERATIONS", 6),
			HistoryWindow:     getEnvInt("AGENT_HISTORY_WINDOW", 16),
			MaxPersisted:      getEnvInt("AGENT_MAX_PERSISTED", 200),
			ConversationTTL:   getEnvDuration("CONVERSATION_TTL", 7*24*time.Hour),
			CleanupInterval:   getEnvDuration("CONVERSATION_CLEANUP_INTERVAL", 5*time.Minute),
			RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 20),
			RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
			MaxRequestBody:    int64(getEnvInt("MAX_REQUEST_BODY", 1<<20)),
		},
		Twilio: TwilioConfig{
			AccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
			WebhookURL: getEnv("TWILIO_WEBHOOK_URL", ""),
			MediaHosts: getEnvList("TWILIO_MEDIA_HOSTS", []string{"api.twilio.com"}),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
	}
	cfg.Twilio.ValidateSignature = getEnvBool("TWILIO_VALIDATE_SIGNATURE", !cfg.IsDevelopment())

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Store.Driver)
	}
	if len(c.LLM.Providers) == 0 {
		return fmt.Errorf("LLM_PROVIDERS cannot be empty")
	}
	for _, p := range c.LLM.Providers {
		if !knownProviders[p] {
			return fmt.Errorf("unknown provider %q in LLM_PROVIDERS", p)
		}
		if c.ProviderKey(p) == "" {
			return fmt.Errorf("%s_API_KEY is required for provider %q", strings.ToUpper(p), p)
		}
	}
	if c.DefaultCurrency != "MXN" && c.DefaultCurrency != "USD" {
		return fmt.Errorf("DEFAULT_CURRENCY must be MXN or USD")
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		return fmt.Errorf("DEFAULT_TIMEZONE: %w", err)
	}
	if c.Agent.MaxIterations <= 0 || c.Agent.HistoryWindow <= 0 {
		return fmt.Errorf("AGENT_MAX_ITERATIONS and AGENT_HISTORY_WINDOW must be > 0")
	}
	if c.Agent.RateLimitRequests <= 0 || c.Agent.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	if c.Twilio.ValidateSignature && c.Twilio.AuthToken == "" {
		return fmt.Errorf("TWILIO_AUTH_TOKEN is required when signature validation is on")
	}
	if !c.IsDevelopment() && c.APIKey == "" {
		return fmt.Errorf("API_KEY is required outside development")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// ProviderKey returns the API key configured for provider.
func (c *Config) ProviderKey(provider string) string {
	switch provider {
	case "gemini":
		return c.LLM.GeminiAPIKey
	case "openai":
		return c.LLM.OpenAIAPIKey
	case "anthropic":
		return c.LLM.AnthropicAPIKey
	}
	return ""
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	if c.AppEnv != "" {
		return c.AppEnv == "development"
	}
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// Location returns the default timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

// getEnvList reads a comma-separated list, lower-cased and trimmed.
func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// IsContainer returns true if running inside a Docker container.
func IsContainer() bool {
	if os.Getenv("CONTAINER") == "true" {
		return true
	}
	// Check for .dockerenv file
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}
