// Package config provides configuration management functionality.
//
// Configuration is loaded once at startup from environment variables (and an
// optional .env file); there is no settings-database override layer in the
// resilience core, since the only persistence layer here is the order
// lifecycle/outbox schema, not a user-facing settings UI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sentience-labs/resilience-core/internal/degradation"
	"github.com/joho/godotenv"
)

// Config holds application configuration for the resilience core.
type Config struct {
	DataDir  string // Base directory for all databases, always absolute
	LogLevel string // Log level (debug, info, warn, error)
	LogPretty bool  // Pretty-print console logging instead of JSON
	OpsPort  int    // Read-only ops HTTP surface port
	DevMode  bool   // Development mode flag

	S3BackupBucket string // Outbox archival bucket; empty disables archival

	TradernetAPIKey    string // Broker API key, used to submit closing orders
	TradernetAPISecret string // Broker API secret
	BrokerWSURL        string // Broker gateway websocket URL, probed for liveness
	RiskEngineURL      string // Risk engine health endpoint, probed by RiskProbe

	Degradation degradation.DegradationConfig
}

// Load reads configuration from environment variables, falling back to a
// .env file if present and to documented defaults for anything unset.
//
// dataDirOverride, if provided and non-empty, takes priority over the
// TRADER_DATA_DIR environment variable.
func Load(dataDirOverride ...string) (*Config, error) {
	_ = godotenv.Load()

	var dataDir string
	if len(dataDirOverride) > 0 && dataDirOverride[0] != "" {
		dataDir = dataDirOverride[0]
	} else {
		dataDir = getEnv("TRADER_DATA_DIR", "")
		if dataDir == "" {
			dataDir = "./data"
		}
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	defaults := degradation.DefaultConfig()

	cfg := &Config{
		DataDir:        absDataDir,
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogPretty:      getEnvAsBool("LOG_PRETTY", false),
		OpsPort:        getEnvAsInt("OPS_PORT", 8001),
		DevMode:        getEnvAsBool("DEV_MODE", false),
		S3BackupBucket: getEnv("S3_BACKUP_BUCKET", ""),

		TradernetAPIKey:    getEnv("TRADERNET_API_KEY", ""),
		TradernetAPISecret: getEnv("TRADERNET_API_SECRET", ""),
		BrokerWSURL:        getEnv("BROKER_WS_URL", "wss://wss.tradernet.com"),
		RiskEngineURL:      getEnv("RISK_ENGINE_URL", "http://localhost:8100/health"),
		Degradation: degradation.DegradationConfig{
			FailThresholdCount:     getEnvAsInt("FAIL_THRESHOLD_COUNT", defaults.FailThresholdCount),
			FailThresholdSeconds:   getEnvAsFloat("FAIL_THRESHOLD_SECONDS", defaults.FailThresholdSeconds),
			MinSafeModeSeconds:     getEnvAsFloat("MIN_SAFE_MODE_SECONDS", defaults.MinSafeModeSeconds),
			RecoveryStableSeconds:  getEnvAsFloat("RECOVERY_STABLE_SECONDS", defaults.RecoveryStableSeconds),
			EventBusQueueSize:      getEnvAsInt("EVENT_BUS_QUEUE_SIZE", defaults.EventBusQueueSize),
			PositionCacheStaleMS:   getEnvAsInt("POSITION_CACHE_STALE_MS", defaults.PositionCacheStaleMS),
			MarketDataCacheStaleMS: getEnvAsInt("MARKET_DATA_CACHE_STALE_MS", defaults.MarketDataCacheStaleMS),
			DBBufferMaxEntries:     getEnvAsInt("DB_BUFFER_MAX_ENTRIES", defaults.DBBufferMaxEntries),
			DBBufferMaxBytes:       getEnvAsInt64("DB_BUFFER_MAX_BYTES", defaults.DBBufferMaxBytes),
			ZombieThresholdMinutes: getEnvAsInt("ZOMBIE_THRESHOLD_MINUTES", defaults.ZombieThresholdMinutes),
			StuckThresholdMinutes:  getEnvAsInt("STUCK_THRESHOLD_MINUTES", defaults.StuckThresholdMinutes),
			MaxNotFoundRetries:     getEnvAsInt("MAX_NOT_FOUND_RETRIES", defaults.MaxNotFoundRetries),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks invariants across otherwise-independently-defaulted
// tunables.
func (c *Config) Validate() error {
	if c.Degradation.FailThresholdCount <= 0 {
		return fmt.Errorf("config: FAIL_THRESHOLD_COUNT must be positive")
	}
	if c.Degradation.MinSafeModeSeconds < 0 {
		return fmt.Errorf("config: MIN_SAFE_MODE_SECONDS must not be negative")
	}
	return nil
}

// ==========================================
// Helper Functions
// ==========================================

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
