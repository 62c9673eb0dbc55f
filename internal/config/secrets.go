package config

import (
	"errors"
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Secrets holds sensitive configuration loaded from environment variables.
// They are never read from the config file.
type Secrets struct {
	// Env: PADDLE_API_KEY
	PaddleAPIKey string `envconfig:"PADDLE_API_KEY"`

	// Env: DATABASE_URL
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Env: REDIS_PASSWORD
	RedisPassword string `envconfig:"REDIS_PASSWORD"`

	// Env: STORECHECK_ADMIN_TOKEN
	AdminToken string `envconfig:"STORECHECK_ADMIN_TOKEN"`
}

// LoadSecrets loads secrets from environment variables
func LoadSecrets() (*Secrets, error) {
	var s Secrets
	if err := envconfig.Process("", &s); err != nil {
		return nil, fmt.Errorf("failed to load secrets from environment: %w", err)
	}
	return &s, nil
}

// Validate checks that the secrets cfg depends on are present
func (s *Secrets) Validate(cfg *Config) error {
	if cfg.NeedsDatabase() && s.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required when a postgres backend is configured")
	}
	return nil
}

// HasPaddle returns true if purchase verification can reach the provider
func (s *Secrets) HasPaddle() bool {
	return s.PaddleAPIKey != ""
}

// MaskPaddleAPIKey returns a masked version of the Paddle API key for logging
func (s *Secrets) MaskPaddleAPIKey() string {
	if s.PaddleAPIKey == "" {
		return "(not set)"
	}
	if len(s.PaddleAPIKey) <= 8 {
		return "****"
	}
	return s.PaddleAPIKey[:4] + "****" + s.PaddleAPIKey[len(s.PaddleAPIKey)-4:]
}
