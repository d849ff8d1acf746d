package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.LLMProvider != "compat" {
		t.Fatalf("LLMProvider = %q, want compat", cfg.LLMProvider)
	}
	if cfg.Providers.Compat.Endpoint == "" {
		t.Fatal("default compat endpoint is empty")
	}
	if cfg.Providers.Compat.MaxTokens <= 0 {
		t.Fatal("default max_tokens not positive")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoad_CreatesDefaultWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.LLMProvider != "compat" {
		t.Fatalf("LLMProvider = %q, want compat", cfg.LLMProvider)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not created: %v", err)
	}
}

func TestLoad_ParsesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	content := `{
		"llm_provider": "compat",
		"providers": {
			"compat": {
				"endpoint": "https://example.test/v1/chat/completions",
				"api_key": "k",
				"model": "m",
				"max_tokens": 42,
				"api_timeout_seconds": 7
			}
		}
	}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Providers.Compat.Endpoint != "https://example.test/v1/chat/completions" {
		t.Fatalf("endpoint = %q", cfg.Providers.Compat.Endpoint)
	}
	if cfg.Providers.Compat.MaxTokens != 42 {
		t.Fatalf("max_tokens = %d, want 42", cfg.Providers.Compat.MaxTokens)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parse") {
		t.Fatalf("Load() error = %v, want parse failure", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CHATBRIDGE_PROVIDER", "OPENAI")
	t.Setenv("CHATBRIDGE_ENDPOINT", "https://override.test/v1/chat/completions")
	t.Setenv("CHATBRIDGE_API_KEY", "env-key")
	t.Setenv("CHATBRIDGE_MODEL", "env-model")
	t.Setenv("CHATBRIDGE_MAX_TOKENS", "123")
	t.Setenv("CHATBRIDGE_API_TIMEOUT", "9")
	t.Setenv("CHATBRIDGE_LOG_LEVEL", "DEBUG")

	cfg := applyEnvOverrides(Default())

	if cfg.LLMProvider != "openai" {
		t.Fatalf("LLMProvider = %q, want openai", cfg.LLMProvider)
	}
	if cfg.Providers.Compat.Endpoint != "https://override.test/v1/chat/completions" {
		t.Fatalf("endpoint = %q", cfg.Providers.Compat.Endpoint)
	}
	if cfg.Providers.Compat.APIKey != "env-key" || cfg.Providers.OpenAI.APIKey != "env-key" {
		t.Fatal("api key override not applied to all providers")
	}
	if cfg.Providers.Compat.Model != "env-model" {
		t.Fatalf("model = %q, want env-model", cfg.Providers.Compat.Model)
	}
	if cfg.Providers.Compat.MaxTokens != 123 {
		t.Fatalf("max_tokens = %d, want 123", cfg.Providers.Compat.MaxTokens)
	}
	if cfg.Providers.Compat.APITimeoutSeconds != 9 {
		t.Fatalf("timeout = %d, want 9", cfg.Providers.Compat.APITimeoutSeconds)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level = %q, want debug", cfg.LogLevel)
	}
}

func TestEnvOverrides_RejectsInvalid(t *testing.T) {
	t.Setenv("CHATBRIDGE_MAX_TOKENS", "-5")
	t.Setenv("CHATBRIDGE_API_TIMEOUT", "zero")
	t.Setenv("CHATBRIDGE_LOG_LEVEL", "loud")

	base := Default()
	cfg := applyEnvOverrides(base)

	if cfg.Providers.Compat.MaxTokens != base.Providers.Compat.MaxTokens {
		t.Fatal("negative max_tokens override applied")
	}
	if cfg.Providers.Compat.APITimeoutSeconds != base.Providers.Compat.APITimeoutSeconds {
		t.Fatal("non-numeric timeout override applied")
	}
	if cfg.LogLevel != base.LogLevel {
		t.Fatal("invalid log level override applied")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid default",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "missing endpoint",
			mutate:  func(c *Config) { c.Providers.Compat.Endpoint = " " },
			wantErr: "endpoint is required",
		},
		{
			name:    "bad max_tokens",
			mutate:  func(c *Config) { c.Providers.Compat.MaxTokens = 0 },
			wantErr: "max_tokens must be positive",
		},
		{
			name:    "openai missing key",
			mutate:  func(c *Config) { c.LLMProvider = "openai" },
			wantErr: "openai api_key is required",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.LLMProvider = "copilot" },
			wantErr: "unsupported LLM provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
