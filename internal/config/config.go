package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the runtime configuration for the watcher, populated from
// environment variables ( .env is loaded by main via godotenv )
type Config struct {
	// Horizon API base URL
	HorizonURL string

	// Postgres connection string for the transaction store
	DatabaseURL string

	// Optional Redis URL; when set, sealed batches are published to a Redis stream
	RedisURL string

	// Optional webhook URL for notification dispatch
	NotifyWebhookURL string

	// Accounts to monitor ( comma separated G... addresses )
	WatchedAccounts []string

	LogLevel    string
	MetricsAddr string

	// Batching
	MaxBatchSize int
	MaxBatchAge  time.Duration

	// Stream reconnection
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration

	// State cache
	CacheTTL time.Duration

	// Sync
	InitialPageSize     int
	IncrementalPageSize int
	AutoSyncInterval    time.Duration
}

// Load builds the configuration from the environment, applying defaults for
// anything unset
func Load() *Config {
	return &Config{
		HorizonURL:           envStr("HORIZON_URL", "https://horizon-testnet.stellar.org"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisURL:             os.Getenv("REDIS_URL"),
		NotifyWebhookURL:     os.Getenv("NOTIFY_WEBHOOK_URL"),
		WatchedAccounts:      splitAccounts(os.Getenv("WATCHED_ACCOUNTS")),
		LogLevel:             envStr("LOG_LEVEL", "info"),
		MetricsAddr:          envStr("METRICS_ADDR", ":9464"),
		MaxBatchSize:         envInt("MAX_BATCH_SIZE", 10),
		MaxBatchAge:          envDurationMs("MAX_BATCH_AGE_MS", 1000),
		MaxReconnectAttempts: envInt("MAX_RECONNECT_ATTEMPTS", 5),
		ReconnectDelay:       envDurationMs("RECONNECT_DELAY_MS", 2000),
		CacheTTL:             envDurationMs("CACHE_TTL_MS", 60_000),
		InitialPageSize:      envInt("INITIAL_SYNC_PAGE_SIZE", 100),
		IncrementalPageSize:  envInt("INCREMENTAL_SYNC_PAGE_SIZE", 50),
		AutoSyncInterval:     envDurationMs("AUTO_SYNC_INTERVAL_MS", 60_000),
	}
}

// Validate checks if the configuration is usable
func (c *Config) Validate() error {
	if c.HorizonURL == "" {
		return fmt.Errorf("HORIZON_URL is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if len(c.WatchedAccounts) == 0 {
		return fmt.Errorf("WATCHED_ACCOUNTS must list at least one account")
	}
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("MAX_BATCH_SIZE must be positive")
	}
	if c.MaxBatchAge <= 0 {
		return fmt.Errorf("MAX_BATCH_AGE_MS must be positive")
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("MAX_RECONNECT_ATTEMPTS must not be negative")
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDurationMs(key string, fallbackMs int) time.Duration {
	return time.Duration(envInt(key, fallbackMs)) * time.Millisecond
}

func splitAccounts(raw string) []string {
	if raw == "" {
		return nil
	}
	var accounts []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			accounts = append(accounts, trimmed)
		}
	}
	return accounts
}
