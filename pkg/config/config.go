package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config represents the application configuration
type Config struct {
	LLMProvider string          `json:"llm_provider"`
	Providers   ProvidersConfig `json:"providers"`
	LogLevel    string          `json:"log_level"`
	LogFormat   string          `json:"log_format"` // "json" or "text"
	LogFile     string          `json:"log_file"`
}

// ProvidersConfig groups per-backend settings.
type ProvidersConfig struct {
	Compat CompatConfig `json:"compat"`
	OpenAI OpenAIConfig `json:"openai"`
	Google GoogleConfig `json:"google"`
}

// CompatConfig configures any OpenAI-compatible streaming endpoint.
type CompatConfig struct {
	Endpoint          string `json:"endpoint"`
	APIKey            string `json:"api_key"`
	Model             string `json:"model"`
	MaxTokens         int    `json:"max_tokens"`
	APITimeoutSeconds int    `json:"api_timeout_seconds"`
}

// OpenAIConfig holds the OpenAI API configuration.
type OpenAIConfig struct {
	APIKey            string  `json:"api_key"`
	APIURL            string  `json:"api_url"`
	Model             string  `json:"model"`
	Temperature       float64 `json:"temperature"`
	MaxTokens         int     `json:"max_tokens"`
	APITimeoutSeconds int     `json:"api_timeout_seconds"`
}

// GoogleConfig holds the Google AI (Gemini) configuration.
type GoogleConfig struct {
	APIKey            string  `json:"api_key"`
	Model             string  `json:"model"`
	Temperature       float64 `json:"temperature"`
	MaxTokens         int     `json:"max_tokens"`
	APITimeoutSeconds int     `json:"api_timeout_seconds"`
}

// Default returns a configuration with default values
func Default() Config {
	return Config{
		LLMProvider: "compat",
		Providers: ProvidersConfig{
			Compat: CompatConfig{
				Endpoint:          "https://openrouter.ai/api/v1/chat/completions",
				Model:             "google/gemma-3-27b-it:free",
				MaxTokens:         2000,
				APITimeoutSeconds: 60,
			},
			OpenAI: OpenAIConfig{
				Model:             "gpt-4o",
				Temperature:       0.7,
				MaxTokens:         2000,
				APITimeoutSeconds: 30,
			},
			Google: GoogleConfig{
				Model:             "gemini-3-flash-preview",
				Temperature:       0.7,
				MaxTokens:         2000,
				APITimeoutSeconds: 60,
			},
		},
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// Load loads configuration from the specified path. If the file doesn't
// exist, it is created with default values. Environment variables override
// file values either way.
func Load(configPath string) (Config, error) {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return Config{}, fmt.Errorf("failed to create config directory: %w", err)
	}

	var cfg Config
	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		cfg = Default()
		if err := Save(configPath, cfg); err != nil {
			return Config{}, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	return applyEnvOverrides(cfg), nil
}

// applyEnvOverrides applies CHATBRIDGE_* environment variable overrides.
func applyEnvOverrides(cfg Config) Config {
	if provider := os.Getenv("CHATBRIDGE_PROVIDER"); provider != "" {
		cfg.LLMProvider = strings.ToLower(provider)
	}
	if endpoint := os.Getenv("CHATBRIDGE_ENDPOINT"); endpoint != "" {
		cfg.Providers.Compat.Endpoint = endpoint
	}
	if apiKey := os.Getenv("CHATBRIDGE_API_KEY"); apiKey != "" {
		cfg.Providers.Compat.APIKey = apiKey
		cfg.Providers.OpenAI.APIKey = apiKey
		cfg.Providers.Google.APIKey = apiKey
	}
	if model := os.Getenv("CHATBRIDGE_MODEL"); model != "" {
		cfg.Providers.Compat.Model = model
		cfg.Providers.OpenAI.Model = model
		cfg.Providers.Google.Model = model
	}
	if tokensStr := os.Getenv("CHATBRIDGE_MAX_TOKENS"); tokensStr != "" {
		if tokens, err := strconv.Atoi(tokensStr); err == nil && tokens > 0 {
			cfg.Providers.Compat.MaxTokens = tokens
			cfg.Providers.OpenAI.MaxTokens = tokens
			cfg.Providers.Google.MaxTokens = tokens
		}
	}
	if timeoutStr := os.Getenv("CHATBRIDGE_API_TIMEOUT"); timeoutStr != "" {
		if timeout, err := strconv.Atoi(timeoutStr); err == nil && timeout > 0 {
			cfg.Providers.Compat.APITimeoutSeconds = timeout
			cfg.Providers.OpenAI.APITimeoutSeconds = timeout
			cfg.Providers.Google.APITimeoutSeconds = timeout
		}
	}
	if logLevel := os.Getenv("CHATBRIDGE_LOG_LEVEL"); logLevel != "" {
		switch strings.ToLower(logLevel) {
		case "debug", "info", "warn", "error":
			cfg.LogLevel = strings.ToLower(logLevel)
		}
	}
	if logFile := os.Getenv("CHATBRIDGE_LOG_FILE"); logFile != "" {
		cfg.LogFile = logFile
	}
	return cfg
}

// Save writes the configuration to the specified path.
func Save(configPath string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is usable for the selected provider.
func (c Config) Validate() error {
	switch c.LLMProvider {
	case "compat":
		if strings.TrimSpace(c.Providers.Compat.Endpoint) == "" {
			return errors.New("compat endpoint is required (set CHATBRIDGE_ENDPOINT or add to config file)")
		}
		if c.Providers.Compat.MaxTokens <= 0 {
			return fmt.Errorf("max_tokens must be positive, got: %d", c.Providers.Compat.MaxTokens)
		}
		if c.Providers.Compat.APITimeoutSeconds <= 0 {
			return fmt.Errorf("api_timeout_seconds must be positive, got: %d", c.Providers.Compat.APITimeoutSeconds)
		}
	case "openai":
		if strings.TrimSpace(c.Providers.OpenAI.APIKey) == "" {
			return errors.New("openai api_key is required")
		}
	case "google":
		if strings.TrimSpace(c.Providers.Google.APIKey) == "" {
			return errors.New("google api_key is required")
		}
	default:
		return fmt.Errorf("unsupported LLM provider: %s", c.LLMProvider)
	}
	return nil
}

// GetConfigPath returns the default path for the config file
func GetConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home directory can't be determined
		return filepath.Join(".chatbridge", "config.json")
	}
	return filepath.Join(homeDir, ".chatbridge", "config.json")
}
