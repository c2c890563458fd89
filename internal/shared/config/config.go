package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the gateway
type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Auth
	AuthJWTSecret string

	// Credential encryption (32-byte key, hex encoded in env)
	CredentialKey []byte

	// Owner-level fallback provider
	OpenRouterAPIKey string
	DefaultModel     string

	// Rate limiting
	RateLimitPerMinute int
	RateLimitPerHour   int
	RateLimitStore     string // "memory" or "redis"

	// Caching
	CacheEnabled    bool
	CacheTTLSeconds int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		AuthJWTSecret:      getEnv("AUTH_JWT_SECRET", ""),
		OpenRouterAPIKey:   getEnv("OPENROUTER_API_KEY", ""),
		DefaultModel:       getEnv("DEFAULT_MODEL", "openai/gpt-4o-mini"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		RateLimitPerHour:   getEnvInt("RATE_LIMIT_PER_HOUR", 1000),
		RateLimitStore:     getEnv("RATE_LIMIT_STORE", "memory"),
		CacheEnabled:       getEnvBool("CACHE_ENABLED", true),
		CacheTTLSeconds:    getEnvInt("CACHE_TTL_SECONDS", 3600),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.AuthJWTSecret == "" {
		return nil, fmt.Errorf("AUTH_JWT_SECRET is required")
	}

	keyHex := getEnv("CREDENTIAL_KEY", "")
	if keyHex == "" {
		return nil, fmt.Errorf("CREDENTIAL_KEY is required")
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("CREDENTIAL_KEY must be hex encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("CREDENTIAL_KEY must decode to 32 bytes, got %d", len(key))
	}
	cfg.CredentialKey = key

	if cfg.RateLimitStore != "memory" && cfg.RateLimitStore != "redis" {
		return nil, fmt.Errorf("RATE_LIMIT_STORE must be \"memory\" or \"redis\", got %q", cfg.RateLimitStore)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
