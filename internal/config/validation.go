package config

import (
	"fmt"
	"net"
)

// validSSLModes are the sslmode values accepted by the pgx driver.
var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks the configuration for values that would fail at runtime.
// A missing Gemini API key is deliberately NOT an error here: the server
// starts without one and degrades provider-backed routes to 503.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidListenAddr, c.ListenAddr, err)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model name must not be empty", ErrInvalidModelName)
	}

	if c.MaxPromptsPerStore < 1 || c.MaxPromptsPerStore > MaxAllowedPromptsPerStore {
		return fmt.Errorf("%w: %d (must be 1..%d)",
			ErrInvalidPromptLimit, c.MaxPromptsPerStore, MaxAllowedPromptsPerStore)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	return nil
}
