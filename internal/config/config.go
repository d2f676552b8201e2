// Package config loads process configuration from the environment, with an
// optional .env file for development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port         string
	DatabasePath string

	// EncryptionKey derives the credential-at-rest key. Required.
	EncryptionKey string

	// WebhookSecret signs inbound trade signals. VerifyWebhooks defaults to
	// true; disabling it is an explicit opt-out for local integrations.
	WebhookSecret  string
	VerifyWebhooks bool

	JWTSecret string

	// Operator credentials exchanged for management-API tokens.
	APIKey    string
	APISecret string

	// ExchangeTimeout bounds every venue round-trip so a hung connection
	// cannot pin a request-handling goroutine indefinitely.
	ExchangeTimeout time.Duration
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not read .env file")
	}

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		DatabasePath:    getEnv("DATABASE_PATH", "trading.db"),
		EncryptionKey:   os.Getenv("ENCRYPTION_KEY"),
		WebhookSecret:   os.Getenv("WEBHOOK_SECRET"),
		VerifyWebhooks:  getEnvBool("WEBHOOK_VERIFY_SIGNATURE", true),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		APIKey:          os.Getenv("API_KEY"),
		APISecret:       os.Getenv("API_SECRET"),
		ExchangeTimeout: getEnvDuration("EXCHANGE_TIMEOUT", 15*time.Second),
	}

	if cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.VerifyWebhooks && cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("WEBHOOK_SECRET is required unless WEBHOOK_VERIFY_SIGNATURE=false")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid boolean env value, using default")
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed <= 0 {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid duration env value, using default")
		return fallback
	}
	return parsed
}
