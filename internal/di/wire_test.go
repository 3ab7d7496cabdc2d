package di

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aristath/quantwand/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWire(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := &config.Config{
		DataDir:                       tmpDir,
		AlphaVantageDailyLimit:        25,
		AlphaVantageRequestsPerMinute: 5,
		Cache:                         &config.CacheConfig{CleanupSchedule: "@every 1h"},
		Archive:                       &config.ArchiveConfig{},
	}

	container, jobs, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, container.Close()) })

	assert.NotNil(t, container.CacheDB)
	assert.NotNil(t, container.ClientDataRepo)
	assert.NotNil(t, container.AlphaVantage)
	assert.NotNil(t, container.CoinGecko)
	assert.NotNil(t, container.FMP)
	assert.NotNil(t, container.HistoryProvider)
	assert.NotNil(t, container.OptimizerService)
	assert.Nil(t, container.ResultArchive)
	assert.FileExists(t, filepath.Join(tmpDir, "cache.db"))

	require.NotNil(t, jobs.CacheCleanup)
	require.NotNil(t, jobs.DatabaseMaintenance)

	status := container.Scheduler.Status()
	require.Len(t, status, 2)
	assert.Equal(t, "client_data_cleanup", status[0].Name)
	assert.Equal(t, "@every 1h", status[0].Schedule)
	assert.Equal(t, "database_maintenance", status[1].Name)

	// jobs run against the migrated database
	assert.NoError(t, container.Scheduler.RunNow(jobs.CacheCleanup))
}

func TestWire_ArchiveEnabled(t *testing.T) {
	cfg := &config.Config{
		DataDir:                       t.TempDir(),
		AlphaVantageRequestsPerMinute: 5,
		Archive: &config.ArchiveConfig{
			Bucket:          "runs",
			Endpoint:        "http://127.0.0.1:1",
			AccessKeyID:     "key",
			SecretAccessKey: "secret",
			Region:          "auto",
		},
	}

	container, _, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, container.Close()) })

	assert.NotNil(t, container.ResultArchive)
}

func TestInitializeDatabases_BadPath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, writeFile(blocker))

	_, err := InitializeDatabases(&config.Config{DataDir: blocker}, zerolog.Nop())
	assert.Error(t, err)
}

func writeFile(path string) error {
	return os.WriteFile(path, []byte("x"), 0o644)
}
