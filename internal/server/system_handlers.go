package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/aristath/quantwand/internal/database"
	"github.com/aristath/quantwand/internal/modules/history"
	"github.com/aristath/quantwand/internal/scheduler"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// CacheStatsSource exposes the history cache counters.
type CacheStatsSource interface {
	CacheStats() history.CacheStats
}

// JobStatusSource exposes scheduled job outcomes.
type JobStatusSource interface {
	Status() []scheduler.JobStatus
}

// QuotaSource exposes the remaining upstream request budget.
type QuotaSource interface {
	GetRemainingRequests() int
}

// SystemStatusResponse is the body of GET /api/system/status
type SystemStatusResponse struct {
	Status            string              `json:"status"`
	Uptime            string              `json:"uptime"`
	UptimeSeconds     int64               `json:"uptime_seconds"`
	Goroutines        int                 `json:"goroutines"`
	CPUPercent        float64             `json:"cpu_percent"`
	MemoryPercent     float64             `json:"memory_percent"`
	HeapAllocMB       float64             `json:"heap_alloc_mb"`
	DiskFreeMB        float64             `json:"disk_free_mb,omitempty"`
	HistoryCache      *history.CacheStats `json:"history_cache,omitempty"`
	UpstreamRemaining *int                `json:"upstream_requests_remaining,omitempty"`
	LastChecked       string              `json:"last_checked"`
}

// JobsStatusResponse is the body of GET /api/system/jobs
type JobsStatusResponse struct {
	TotalJobs int                   `json:"total_jobs"`
	Jobs      []scheduler.JobStatus `json:"jobs"`
}

// SystemHandlers handles system monitoring endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	cacheDB     *database.DB
	cacheStats  CacheStatsSource
	jobs        JobStatusSource
	quota       QuotaSource
}

// NewSystemHandlers creates a new system handlers instance. Every source may be nil.
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	cacheDB *database.DB,
	cacheStats CacheStatsSource,
	jobs JobStatusSource,
	quota QuotaSource,
) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("handler", "system").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		cacheDB:     cacheDB,
		cacheStats:  cacheStats,
		jobs:        jobs,
		quota:       quota,
	}
}

// HandleSystemStatus returns process and host status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	uptime := time.Since(h.startupTime)
	cpuPercent, memPercent := h.getSystemStats()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	response := SystemStatusResponse{
		Status:        "healthy",
		Uptime:        uptime.Truncate(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		Goroutines:    runtime.NumGoroutine(),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		HeapAllocMB:   float64(ms.HeapAlloc) / 1024 / 1024,
		LastChecked:   time.Now().Format(time.RFC3339),
	}

	if h.dataDir != "" {
		if usage, err := disk.Usage(h.dataDir); err == nil {
			response.DiskFreeMB = float64(usage.Free) / 1024 / 1024
		} else {
			h.log.Warn().Err(err).Msg("Failed to get disk usage")
		}
	}
	if h.cacheStats != nil {
		stats := h.cacheStats.CacheStats()
		response.HistoryCache = &stats
	}
	if h.quota != nil {
		remaining := h.quota.GetRemainingRequests()
		response.UpstreamRemaining = &remaining
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleJobsStatus returns scheduler job status
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	jobs := []scheduler.JobStatus{}
	if h.jobs != nil {
		jobs = h.jobs.Status()
	}

	h.writeJSON(w, http.StatusOK, JobsStatusResponse{
		TotalJobs: len(jobs),
		Jobs:      jobs,
	})
}

// HandleDatabaseStats returns cache database statistics
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	if h.cacheDB == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Cache database not configured"})
		return
	}

	stats, err := h.cacheDB.GetStats()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get database stats")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to get database stats"})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":         h.cacheDB.Name(),
		"path":         h.cacheDB.Path(),
		"stats":        stats,
		"last_checked": time.Now().Format(time.RFC3339),
	})
}

// getSystemStats calculates CPU and RAM usage percentages.
// A short CPU sampling window keeps the endpoint responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
