package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/quantwand/internal/database"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

// Disk space thresholds for the data directory
const (
	criticalFreeBytes = 200 << 20 // 200MB
	lowFreeBytes      = 1 << 30   // 1GB
)

// MaintenanceJob keeps the cache database healthy: ping, WAL checkpoint,
// free-space check and, when the freelist grows large, VACUUM.
type MaintenanceJob struct {
	db            *database.DB
	dataDir       string
	vacuumPercent float64
	log           zerolog.Logger
}

// NewMaintenanceJob creates a maintenance job for db. VACUUM runs when free
// pages exceed vacuumPercent of the file (0 disables VACUUM).
func NewMaintenanceJob(db *database.DB, dataDir string, vacuumPercent float64, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		db:            db,
		dataDir:       dataDir,
		vacuumPercent: vacuumPercent,
		log:           log.With().Str("job", "database_maintenance").Logger(),
	}
}

// Run executes the maintenance steps.
func (j *MaintenanceJob) Run() error {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := j.db.QuickCheck(ctx); err != nil {
		return fmt.Errorf("database %s unreachable: %w", j.db.Name(), err)
	}

	if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
		// not critical, retried next run
		j.log.Warn().Err(err).Msg("WAL checkpoint failed")
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	if err := j.maybeVacuum(); err != nil {
		return err
	}

	j.log.Info().
		Dur("duration", time.Since(startTime)).
		Msg("Database maintenance completed")
	return nil
}

// Name returns the job name for scheduler
func (j *MaintenanceJob) Name() string {
	return "database_maintenance"
}

func (j *MaintenanceJob) checkDiskSpace() error {
	if j.dataDir == "" {
		return nil
	}
	usage, err := disk.Usage(j.dataDir)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	j.log.Debug().Uint64("free_bytes", usage.Free).Msg("Disk space check")

	if usage.Free < criticalFreeBytes {
		j.log.Error().Uint64("free_bytes", usage.Free).Msg("Insufficient disk space for cache database")
		return fmt.Errorf("only %d bytes free in %s", usage.Free, j.dataDir)
	}
	if usage.Free < lowFreeBytes {
		j.log.Warn().Uint64("free_bytes", usage.Free).Msg("Disk space running low")
	}
	return nil
}

func (j *MaintenanceJob) maybeVacuum() error {
	if j.vacuumPercent <= 0 {
		return nil
	}
	stats, err := j.db.GetStats()
	if err != nil {
		return err
	}
	if stats.PageCount == 0 {
		return nil
	}
	freePct := float64(stats.FreelistCount) / float64(stats.PageCount) * 100
	if freePct < j.vacuumPercent {
		return nil
	}

	sizeBefore := stats.PageCount * stats.PageSize
	if _, err := j.db.Conn().Exec("VACUUM"); err != nil {
		return fmt.Errorf("VACUUM failed: %w", err)
	}

	after, err := j.db.GetStats()
	if err == nil {
		j.log.Info().
			Int64("size_before", sizeBefore).
			Int64("size_after", after.PageCount*after.PageSize).
			Float64("free_pct", freePct).
			Msg("VACUUM completed")
	}
	return nil
}
