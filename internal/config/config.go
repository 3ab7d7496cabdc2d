// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Directory for the persistent cache database (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	AlphaVantageAPIKey            string
	AlphaVantageDailyLimit        int
	AlphaVantageRequestsPerMinute int
	CoinGeckoAPIKey               string
	FMPAPIKey                     string

	Optimizer *OptimizerConfig
	Cache     *CacheConfig
	Archive   *ArchiveConfig
}

// OptimizerConfig tunes the Monte Carlo frontier search
type OptimizerConfig struct {
	RiskFreeRate         float64
	OptimizationSamples  int
	SimulationSamples    int
	Workers              int
	Seed                 int64 // 0 = time based
	FrontierDisplayLimit int   // 0 = return every sample
}

// CacheConfig controls the in-memory and persistent history caches
type CacheConfig struct {
	HistoryTTL      time.Duration
	HistorySize     int
	CleanupSchedule string
}

// ArchiveConfig holds S3-compatible storage settings for optimization results.
// An empty Bucket disables archiving.
type ArchiveConfig struct {
	Bucket          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
}

// Enabled reports whether results should be archived
func (a *ArchiveConfig) Enabled() bool {
	return a != nil && a.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	absDataDir, err := filepath.Abs(getEnv("DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:                       absDataDir,
		Port:                          getEnvAsInt("PORT", 5000),
		DevMode:                       getEnvAsBool("DEV_MODE", false),
		LogLevel:                      getEnv("LOG_LEVEL", "info"),
		AlphaVantageAPIKey:            getEnv("ALPHA_VANTAGE_API_KEY", ""),
		AlphaVantageDailyLimit:        getEnvAsInt("ALPHA_VANTAGE_DAILY_LIMIT", 25),
		AlphaVantageRequestsPerMinute: getEnvAsInt("ALPHA_VANTAGE_REQUESTS_PER_MINUTE", 5),
		CoinGeckoAPIKey:               getEnv("COINGECKO_API_KEY", ""),
		FMPAPIKey:                     getEnv("FMP_API_KEY", ""),
		Optimizer:                     loadOptimizerConfig(),
		Cache:                         loadCacheConfig(),
		Archive:                       loadArchiveConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that numeric settings are within usable ranges
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.AlphaVantageDailyLimit < 0 {
		return fmt.Errorf("ALPHA_VANTAGE_DAILY_LIMIT must not be negative")
	}
	if c.AlphaVantageRequestsPerMinute <= 0 {
		return fmt.Errorf("ALPHA_VANTAGE_REQUESTS_PER_MINUTE must be positive")
	}

	if o := c.Optimizer; o != nil {
		if o.OptimizationSamples <= 0 || o.SimulationSamples <= 0 {
			return fmt.Errorf("sample counts must be positive (optimization=%d, simulation=%d)",
				o.OptimizationSamples, o.SimulationSamples)
		}
		if o.Workers <= 0 {
			return fmt.Errorf("SAMPLER_WORKERS must be positive")
		}
		if o.FrontierDisplayLimit < 0 {
			return fmt.Errorf("FRONTIER_DISPLAY_LIMIT must not be negative")
		}
	}

	if ch := c.Cache; ch != nil {
		if ch.HistoryTTL <= 0 {
			return fmt.Errorf("HISTORY_CACHE_TTL must be positive")
		}
		if ch.HistorySize <= 0 {
			return fmt.Errorf("HISTORY_CACHE_SIZE must be positive")
		}
	}

	if a := c.Archive; a.Enabled() && (a.AccessKeyID == "") != (a.SecretAccessKey == "") {
		return fmt.Errorf("ARCHIVE_ACCESS_KEY_ID and ARCHIVE_SECRET_ACCESS_KEY must be set together")
	}

	return nil
}

func loadOptimizerConfig() *OptimizerConfig {
	return &OptimizerConfig{
		RiskFreeRate:         getEnvAsFloat("RISK_FREE_RATE", 0.04),
		OptimizationSamples:  getEnvAsInt("OPTIMIZATION_SAMPLES", 10000),
		SimulationSamples:    getEnvAsInt("SIMULATION_SAMPLES", 5000),
		Workers:              getEnvAsInt("SAMPLER_WORKERS", runtime.GOMAXPROCS(0)),
		Seed:                 int64(getEnvAsInt("SAMPLER_SEED", 0)),
		FrontierDisplayLimit: getEnvAsInt("FRONTIER_DISPLAY_LIMIT", 0),
	}
}

func loadCacheConfig() *CacheConfig {
	return &CacheConfig{
		HistoryTTL:      getEnvAsDuration("HISTORY_CACHE_TTL", time.Hour),
		HistorySize:     getEnvAsInt("HISTORY_CACHE_SIZE", 256),
		CleanupSchedule: getEnv("CACHE_CLEANUP_SCHEDULE", "@hourly"),
	}
}

func loadArchiveConfig() *ArchiveConfig {
	return &ArchiveConfig{
		Bucket:          getEnv("ARCHIVE_BUCKET", ""),
		Endpoint:        getEnv("ARCHIVE_ENDPOINT", ""),
		AccessKeyID:     getEnv("ARCHIVE_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("ARCHIVE_SECRET_ACCESS_KEY", ""),
		Region:          getEnv("ARCHIVE_REGION", "auto"),
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
