// Package config loads process configuration from the environment, the way
// the teacher's cmd/server/main.go reads DATABASE_URL/PORT directly from
// os.Getenv, generalized into one typed struct covering every environment
// entry spec.md §6 names.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Load env vars from .env file directly
func init() {
	if err := godotenv.Load(); err != nil {
		// It's okay if .env doesn't exist (e.g. in production),
		// but we should log it just in case.
		log.Println("No .env file found or error loading it, using system environment variables")
	}
}

// Config is the full set of environment-derived settings the sync engine
// needs at startup. A missing required field is a fatal ConfigError
// (spec.md §7), raised once at process start rather than deep in a handler.
type Config struct {
	Port string
	Env  string

	DocumentStoreDSN string

	UpstreamAppID     string
	UpstreamAppSecret string
	UpstreamAppToken  string
	UpstreamTableID   string
	UpstreamBaseURL   string

	ObjectStoreAccountID  string
	ObjectStoreAccessKey  string
	ObjectStoreSecretKey  string
	ObjectStoreBucketName string
	ObjectStorePublicURL  string

	SyncConcurrentImages int
	SyncBatchSize        int

	AllowedOrigins []string
	LogLevel       string
}

// Load reads and validates configuration from the environment. Errors are
// returned, never panicked, so cmd/server can report a clean ConfigError.
func Load() (*Config, error) {
	cfg := &Config{
		Port: getEnv("PORT", "3001"),
		Env:  getEnv("NODE_ENV", "development"),

		DocumentStoreDSN: os.Getenv("DATABASE_URL"),

		UpstreamAppID:     os.Getenv("UPSTREAM_APP_ID"),
		UpstreamAppSecret: os.Getenv("UPSTREAM_APP_SECRET"),
		UpstreamAppToken:  os.Getenv("UPSTREAM_APP_TOKEN"),
		UpstreamTableID:   os.Getenv("UPSTREAM_TABLE_ID"),
		UpstreamBaseURL:   getEnv("UPSTREAM_BASE_URL", "https://open.feishu.cn"),

		ObjectStoreAccountID:  os.Getenv("R2_ACCOUNT_ID"),
		ObjectStoreAccessKey:  os.Getenv("R2_ACCESS_KEY_ID"),
		ObjectStoreSecretKey:  os.Getenv("R2_SECRET_ACCESS_KEY"),
		ObjectStoreBucketName: os.Getenv("R2_BUCKET_NAME"),
		ObjectStorePublicURL:  os.Getenv("R2_PUBLIC_URL"),

		SyncConcurrentImages: getEnvInt("SYNC_CONCURRENT_IMAGES", 5),
		SyncBatchSize:        getEnvInt("SYNC_BATCH_SIZE", 50),

		AllowedOrigins: GetAllowedOrigins(),
		LogLevel:       getEnv("LOG_LEVEL", "INFO"),
	}

	var missing []string
	if cfg.DocumentStoreDSN == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.UpstreamAppID == "" {
		missing = append(missing, "UPSTREAM_APP_ID")
	}
	if cfg.UpstreamAppSecret == "" {
		missing = append(missing, "UPSTREAM_APP_SECRET")
	}
	if cfg.UpstreamAppToken == "" {
		missing = append(missing, "UPSTREAM_APP_TOKEN")
	}
	if cfg.UpstreamTableID == "" {
		missing = append(missing, "UPSTREAM_TABLE_ID")
	}
	if cfg.ObjectStoreAccountID == "" || cfg.ObjectStoreAccessKey == "" || cfg.ObjectStoreSecretKey == "" || cfg.ObjectStoreBucketName == "" {
		missing = append(missing, "R2_ACCOUNT_ID/R2_ACCESS_KEY_ID/R2_SECRET_ACCESS_KEY/R2_BUCKET_NAME")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("config: missing required environment variables: %s", strings.Join(missing, ", "))
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
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return n
}

// GetAllowedOrigins returns a slice of allowed origins from the environment
// variable. It defaults to localhost:3000 if not set.
func GetAllowedOrigins() []string {
	originsStr := os.Getenv("ALLOWED_ORIGINS")
	if originsStr == "" {
		return []string{"http://localhost:3000"}
	}

	// Split by comma and trim spaces
	parts := strings.Split(originsStr, ",")
	var origins []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
