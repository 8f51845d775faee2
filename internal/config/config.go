// Package config provides application configuration for the backline CLI.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Providers accepted in BACKLINE_PROVIDER.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Config holds all application configuration.
type Config struct {
	// Provider selects the LLM backend: "anthropic" or "openai".
	Provider string

	// AnthropicAPIKey authenticates the Anthropic provider. The SDK also
	// reads ANTHROPIC_API_KEY itself; the config keeps a copy so Validate
	// can fail fast at startup.
	AnthropicAPIKey string

	// OpenAIAPIKey authenticates the OpenAI provider.
	OpenAIAPIKey string

	// DBPath locates the SQLite back-office database.
	DBPath string

	// VoiceDBPath is the directory for the persistent voice-sample store.
	// Empty keeps voice samples in memory for the process lifetime.
	VoiceDBPath string

	// MaxRounds caps model round-trips per turn (0 disables the cap).
	MaxRounds int

	// ModelTimeout bounds each model call. Zero disables the bound.
	ModelTimeout time.Duration

	// ToolTimeout bounds each tool call. Zero disables the bound.
	ToolTimeout time.Duration

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// Seed loads the demo back office on startup when the tables are empty.
	Seed bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Provider:        strings.ToLower(getEnv("BACKLINE_PROVIDER", ProviderAnthropic)),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		DBPath:          getEnv("BACKLINE_DB_PATH", "./data/backline.db"),
		VoiceDBPath:     getEnv("BACKLINE_VOICE_DB_PATH", "./data/voice"),
		MaxRounds:       getEnvInt("BACKLINE_MAX_ROUNDS", 8),
		ModelTimeout:    getEnvDuration("BACKLINE_MODEL_TIMEOUT", 60*time.Second),
		ToolTimeout:     getEnvDuration("BACKLINE_TOOL_TIMEOUT", 15*time.Second),
		LogLevel:        strings.ToLower(getEnv("BACKLINE_LOG_LEVEL", "info")),
		Seed:            getEnvBool("BACKLINE_SEED", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration fields are set and consistent.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for provider %q", c.Provider)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for provider %q", c.Provider)
		}
	default:
		return fmt.Errorf("BACKLINE_PROVIDER must be %q or %q, got %q",
			ProviderAnthropic, ProviderOpenAI, c.Provider)
	}
	if c.DBPath == "" {
		return fmt.Errorf("BACKLINE_DB_PATH cannot be empty")
	}
	if c.MaxRounds < 0 {
		return fmt.Errorf("BACKLINE_MAX_ROUNDS must be >= 0")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("BACKLINE_LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel)
	}
	return nil
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
