package di

import (
	"errors"

	"github.com/aristath/quantwand/internal/clientdata"
	"github.com/aristath/quantwand/internal/clients/alphavantage"
	"github.com/aristath/quantwand/internal/clients/coingecko"
	"github.com/aristath/quantwand/internal/clients/fmp"
	"github.com/aristath/quantwand/internal/database"
	"github.com/aristath/quantwand/internal/metrics"
	"github.com/aristath/quantwand/internal/modules/history"
	"github.com/aristath/quantwand/internal/modules/optimization"
	"github.com/aristath/quantwand/internal/reliability"
	"github.com/aristath/quantwand/internal/scheduler"
)

// Container holds all application dependencies
type Container struct {
	// Database
	CacheDB *database.DB // Upstream responses and price history with expiry

	// Repositories
	ClientDataRepo *clientdata.Repository

	// Clients - External API integrations
	AlphaVantage *alphavantage.Client
	CoinGecko    *coingecko.Client
	FMP          *fmp.Client

	// Services
	Metrics          *metrics.Registry
	HistoryProvider  *history.Provider
	Sampler          *optimization.Sampler
	OptimizerService *optimization.OptimizerService
	ResultArchive    *reliability.ResultArchive // nil when archiving is disabled
	Scheduler        *scheduler.Scheduler
}

// JobInstances holds the registered background jobs
type JobInstances struct {
	CacheCleanup        *clientdata.CleanupJob
	DatabaseMaintenance *reliability.MaintenanceJob
}

// Close stops the scheduler, waits for pending archive uploads and closes the database.
func (c *Container) Close() error {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.OptimizerService != nil {
		c.OptimizerService.Wait()
	}

	var errs []error
	if c.CacheDB != nil {
		if err := c.CacheDB.WALCheckpoint("TRUNCATE"); err != nil {
			errs = append(errs, err)
		}
		if err := c.CacheDB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
