package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Addr           string
	RequestTimeout time.Duration
	CORSOrigins    []string

	// Database configuration
	DBDriver    string // sqlite3 or pgx
	DatabaseURL string

	// Gate configuration. A *Hash value takes precedence over the plain one.
	CookieSecret    string
	AppPIN          string
	AppPINHash      string
	OwnerSecret     string
	OwnerSecretHash string
	OwnerEmail      string
	BcryptCost      int
	// Sessions unused for this long are dropped.
	SessionIdle time.Duration

	SubscriberBuffer int
}

// LoadEnvFile loads variables from path without overriding ones already set.
// A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	log.Println("[env] loaded", path)
	return nil
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Addr:             getEnv("ADDR", ":8080"),
		RequestTimeout:   getEnvAsDuration("REQUEST_TIMEOUT", 10*time.Second),
		CORSOrigins:      getEnvAsList("CORS_ORIGINS", "http://localhost:5173"),
		DBDriver:         getEnv("DB_DRIVER", "sqlite3"),
		DatabaseURL:      getEnv("DATABASE_URL", "pinchat.db"),
		CookieSecret:     getEnv("COOKIE_SECRET", ""),
		AppPIN:           getEnv("APP_PIN", "1958"),
		AppPINHash:       getEnv("APP_PIN_HASH", ""),
		OwnerSecret:      getEnv("OWNER_SECRET", ""),
		OwnerSecretHash:  getEnv("OWNER_SECRET_HASH", ""),
		OwnerEmail:       getEnv("OWNER_EMAIL", "owner@app.com"),
		BcryptCost:       getEnvAsInt("BCRYPT_COST", 10),
		SessionIdle:      getEnvAsDuration("SESSION_IDLE_TIMEOUT", 24*time.Hour),
		SubscriberBuffer: getEnvAsInt("SUBSCRIBER_BUFFER", 64),
	}

	switch cfg.DBDriver {
	case "sqlite3", "pgx", "postgres":
	default:
		return nil, fmt.Errorf("DB_DRIVER must be sqlite3 or pgx, got %q", cfg.DBDriver)
	}
	if cfg.OwnerSecret == "" && cfg.OwnerSecretHash == "" {
		return nil, fmt.Errorf("OWNER_SECRET or OWNER_SECRET_HASH is required")
	}
	if cfg.CookieSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		// Sessions will not survive a restart.
		log.Println("[env] COOKIE_SECRET not set, using a random one")
		cfg.CookieSecret = secret
	}

	return cfg, nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate cookie secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated variable, dropping blanks and
// trailing slashes.
func getEnvAsList(key, defaultValue string) []string {
	var out []string
	for _, p := range strings.Split(getEnv(key, defaultValue), ",") {
		if v := strings.TrimRight(strings.TrimSpace(p), "/"); v != "" {
			out = append(out, v)
		}
	}
	return out
}
