package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 25, cfg.AlphaVantageDailyLimit)
	assert.Equal(t, 5, cfg.AlphaVantageRequestsPerMinute)
	assert.InDelta(t, 0.04, cfg.Optimizer.RiskFreeRate, 1e-12)
	assert.Equal(t, 10000, cfg.Optimizer.OptimizationSamples)
	assert.Equal(t, 5000, cfg.Optimizer.SimulationSamples)
	assert.Positive(t, cfg.Optimizer.Workers)
	assert.Equal(t, 0, cfg.Optimizer.FrontierDisplayLimit)
	assert.Equal(t, time.Hour, cfg.Cache.HistoryTTL)
	assert.Equal(t, 256, cfg.Cache.HistorySize)
	assert.Equal(t, "@hourly", cfg.Cache.CleanupSchedule)
	assert.False(t, cfg.Archive.Enabled())
	assert.Equal(t, "auto", cfg.Archive.Region)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("PORT", "8080")
	t.Setenv("RISK_FREE_RATE", "0.025")
	t.Setenv("SAMPLER_SEED", "42")
	t.Setenv("HISTORY_CACHE_TTL", "30m")
	t.Setenv("ARCHIVE_BUCKET", "runs")
	t.Setenv("DEV_MODE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.True(t, cfg.DevMode)
	assert.InDelta(t, 0.025, cfg.Optimizer.RiskFreeRate, 1e-12)
	assert.Equal(t, int64(42), cfg.Optimizer.Seed)
	assert.Equal(t, 30*time.Minute, cfg.Cache.HistoryTTL)
	assert.True(t, cfg.Archive.Enabled())
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("PORT", "not-a-number")
	t.Setenv("HISTORY_CACHE_TTL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, time.Hour, cfg.Cache.HistoryTTL)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:                          5000,
			AlphaVantageRequestsPerMinute: 5,
			Optimizer:                     &OptimizerConfig{OptimizationSamples: 10, SimulationSamples: 10, Workers: 1},
			Cache:                         &CacheConfig{HistoryTTL: time.Minute, HistorySize: 1},
			Archive:                       &ArchiveConfig{},
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad port", func(c *Config) { c.Port = 0 }},
		{"zero samples", func(c *Config) { c.Optimizer.OptimizationSamples = 0 }},
		{"zero workers", func(c *Config) { c.Optimizer.Workers = 0 }},
		{"negative display limit", func(c *Config) { c.Optimizer.FrontierDisplayLimit = -1 }},
		{"zero ttl", func(c *Config) { c.Cache.HistoryTTL = 0 }},
		{"zero cache size", func(c *Config) { c.Cache.HistorySize = 0 }},
		{"half archive credentials", func(c *Config) {
			c.Archive.Bucket = "runs"
			c.Archive.AccessKeyID = "id"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
