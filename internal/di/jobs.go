package di

import (
	"fmt"

	"github.com/aristath/quantwand/internal/clientdata"
	"github.com/aristath/quantwand/internal/config"
	"github.com/aristath/quantwand/internal/reliability"
	"github.com/rs/zerolog"
)

// Maintenance defaults
const (
	maintenanceSchedule = "0 30 3 * * *" // daily at 03:30
	vacuumFreePercent   = 20.0
)

// RegisterJobs registers background jobs with the scheduler. The scheduler is not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	instances := &JobInstances{}

	cleanupSchedule := "@hourly"
	if cfg.Cache != nil && cfg.Cache.CleanupSchedule != "" {
		cleanupSchedule = cfg.Cache.CleanupSchedule
	}

	instances.CacheCleanup = clientdata.NewCleanupJob(container.ClientDataRepo, log)
	if err := container.Scheduler.AddJob(cleanupSchedule, instances.CacheCleanup); err != nil {
		return nil, fmt.Errorf("failed to register cache cleanup job: %w", err)
	}

	instances.DatabaseMaintenance = reliability.NewMaintenanceJob(container.CacheDB, cfg.DataDir, vacuumFreePercent, log)
	if err := container.Scheduler.AddJob(maintenanceSchedule, instances.DatabaseMaintenance); err != nil {
		return nil, fmt.Errorf("failed to register database maintenance job: %w", err)
	}

	log.Info().Int("jobs", len(container.Scheduler.Status())).Msg("Background jobs registered")

	return instances, nil
}
