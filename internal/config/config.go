// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.storegate/config.yaml or ./config.yaml)
//  3. Default values
//
// Security: sensitive fields (API key, database password) are masked in
// MarshalJSON and must never be logged raw.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration validation.
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates the Gemini API key is missing.
	ErrMissingAPIKey = errors.New("missing GEMINI_API_KEY")

	// ErrInvalidModelName indicates the model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidListenAddr indicates the listen address cannot be parsed.
	ErrInvalidListenAddr = errors.New("invalid listen address")

	// ErrInvalidPromptLimit indicates max_prompts_per_store is out of range.
	ErrInvalidPromptLimit = errors.New("invalid prompt limit")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates an unsupported sslmode value.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

const (
	// DefaultModel is the generation model used when a request names none.
	DefaultModel = "gemini-2.5-flash"

	// DefaultMaxPromptsPerStore is the per-store prompt ceiling.
	DefaultMaxPromptsPerStore = 10

	// MaxAllowedPromptsPerStore bounds the configurable ceiling.
	MaxAllowedPromptsPerStore = 1000
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields, update MarshalJSON.
type Config struct {
	// HTTP server
	ListenAddr  string   `mapstructure:"listen_addr" json:"listen_addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"` // trust X-Real-IP/X-Forwarded-For behind a reverse proxy
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`   // per-IP token bucket burst (0 = default)

	// Provider
	GeminiAPIKey  string   `mapstructure:"gemini_api_key" json:"gemini_api_key"` // SENSITIVE: masked in MarshalJSON
	ModelName     string   `mapstructure:"model_name" json:"model_name"`
	AllowedModels []string `mapstructure:"allowed_models" json:"allowed_models"` // models accepted by the completions shim

	// Prompt registry
	MaxPromptsPerStore int `mapstructure:"max_prompts_per_store" json:"max_prompts_per_store"`

	// Storage (see storage.go for DSN helpers)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Observability (see observability.go in internal/observability)
	Otel OtelConfig `mapstructure:"otel" json:"otel"`
}

// OtelConfig configures trace export via OTLP HTTP.
type OtelConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	AgentHost   string `mapstructure:"agent_host" json:"agent_host"` // host:port of the local OTLP collector
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".storegate")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, when set, overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	viper.SetDefault("listen_addr", "127.0.0.1:8600")
	viper.SetDefault("cors_origins", []string{"http://localhost:5173"})
	viper.SetDefault("trust_proxy", false)

	viper.SetDefault("model_name", DefaultModel)
	viper.SetDefault("allowed_models", []string{
		"gemini-2.5-flash",
		"gemini-2.5-pro",
		"gemini-2.0-flash",
	})

	viper.SetDefault("max_prompts_per_store", DefaultMaxPromptsPerStore)

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "storegate")
	viper.SetDefault("postgres_password", "storegate_dev_password")
	viper.SetDefault("postgres_db_name", "storegate")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.agent_host", "localhost:4318")
	viper.SetDefault("otel.service_name", "storegate")
	viper.SetDefault("otel.environment", "dev")
}

// bindEnvVariables binds sensitive environment variables explicitly.
// Secrets never live in the config file.
func bindEnvVariables() {
	_ = viper.BindEnv("gemini_api_key", "GEMINI_API_KEY")
	_ = viper.BindEnv("postgres_password", "STOREGATE_POSTGRES_PASSWORD", "POSTGRES_PASSWORD")
	_ = viper.BindEnv("listen_addr", "STOREGATE_LISTEN_ADDR")
	_ = viper.BindEnv("rate_burst", "STOREGATE_RATE_BURST")
}

// HasProviderCredential reports whether a Gemini API key is configured.
// The server starts without one; provider-backed routes then answer 503.
func (c *Config) HasProviderCredential() bool {
	return c.GeminiAPIKey != ""
}

// MarshalJSON masks sensitive fields so a dumped config never leaks secrets.
func (c *Config) MarshalJSON() ([]byte, error) {
	type alias Config // avoid recursion
	masked := alias(*c)
	if masked.GeminiAPIKey != "" {
		masked.GeminiAPIKey = "***"
	}
	if masked.PostgresPassword != "" {
		masked.PostgresPassword = "***"
	}
	return json.Marshal(masked)
}
