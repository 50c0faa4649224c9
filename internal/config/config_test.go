package config

import (
	"strings"
	"testing"
	"time"
)

func setDevEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "development")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("OPENAI_API_KEY", "o-key")
	t.Setenv("CONVERSATION_LOG_ENABLED", "false")
}

func TestLoad_Defaults(t *testing.T) {
	setDevEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Driver != DriverSQLite || cfg.DefaultCurrency != "MXN" {
		t.Errorf("driver = %q, currency = %q", cfg.Store.Driver, cfg.DefaultCurrency)
	}
	if len(cfg.LLM.Providers) != 2 || cfg.LLM.Providers[0] != "gemini" {
		t.Errorf("Providers = %v", cfg.LLM.Providers)
	}
	if cfg.Agent.MaxIterations != 6 || cfg.Agent.HistoryWindow != 16 || cfg.Agent.ConversationTTL != 7*24*time.Hour {
		t.Errorf("Agent = %+v", cfg.Agent)
	}
	if cfg.Twilio.ValidateSignature {
		t.Error("signature validation should default off in development")
	}
	if len(cfg.Twilio.MediaHosts) != 1 || cfg.Twilio.MediaHosts[0] != "api.twilio.com" {
		t.Errorf("MediaHosts = %v", cfg.Twilio.MediaHosts)
	}
	if cfg.Location().String() != "America/Mexico_City" {
		t.Errorf("Location = %s", cfg.Location())
	}
}

func TestLoad_Overrides(t *testing.T) {
	setDevEnv(t)
	t.Setenv("LLM_PROVIDERS", " OpenAI , anthropic ")
	t.Setenv("ANTHROPIC_API_KEY", "a-key")
	t.Setenv("MODEL_TIMEOUT", "12s")
	t.Setenv("DEFAULT_CURRENCY", "usd")
	t.Setenv("AGENT_HISTORY_WINDOW", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if strings.Join(cfg.LLM.Providers, ",") != "openai,anthropic" {
		t.Errorf("Providers = %v", cfg.LLM.Providers)
	}
	if cfg.LLM.Timeout != 12*time.Second || cfg.DefaultCurrency != "USD" {
		t.Errorf("Timeout = %s, currency = %s", cfg.LLM.Timeout, cfg.DefaultCurrency)
	}
	if cfg.Agent.HistoryWindow != 16 {
		t.Errorf("invalid int should fall back, got %d", cfg.Agent.HistoryWindow)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown provider":        {"LLM_PROVIDERS": "gemini,llama"},
		"missing provider key":    {"LLM_PROVIDERS": "anthropic"},
		"postgres without dsn":    {"DB_DRIVER": "postgres"},
		"unknown driver":          {"DB_DRIVER": "mysql"},
		"bad currency":            {"DEFAULT_CURRENCY": "EUR"},
		"bad timezone":            {"DEFAULT_TIMEZONE": "Mars/Olympus"},
		"production without key":  {"APP_ENV": "production", "TWILIO_AUTH_TOKEN": "t"},
		"signature without token": {"TWILIO_VALIDATE_SIGNATURE": "true"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			setDevEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestIsDevelopment(t *testing.T) {
	tests := []struct {
		cfg  Config
		want bool
	}{
		{Config{}, true},
		{Config{FrontendURL: "http://localhost:3000"}, true},
		{Config{FrontendURL: "https://app.monitorjudicial.mx"}, false},
		{Config{AppEnv: "production", FrontendURL: "http://localhost:3000"}, false},
		{Config{AppEnv: "development", FrontendURL: "https://app.monitorjudicial.mx"}, true},
	}
	for _, tt := range tests {
		if got := tt.cfg.IsDevelopment(); got != tt.want {
			t.Errorf("IsDevelopment(%+v) = %v, want %v", tt.cfg, got, tt.want)
		}
	}
}
