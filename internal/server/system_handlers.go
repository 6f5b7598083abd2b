package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/rebalancer/internal/modules/rebalancing"
)

// CycleStatus reports on rebalance cycles
type CycleStatus interface {
	Running() bool
	LastResult() *rebalancing.CycleResult
}

// JobCounter reports how many scheduled jobs are registered
type JobCounter interface {
	Entries() int
}

// HealthChecker checks a database
type HealthChecker interface {
	QuickCheck(ctx context.Context) error
}

// SystemHandlers serves host and pipeline status
type SystemHandlers struct {
	log       zerolog.Logger
	dataDir   string
	journal   HealthChecker
	cycles    CycleStatus
	jobs      JobCounter
	startedAt time.Time
}

// NewSystemHandlers creates system handlers. journal and jobs may be nil.
func NewSystemHandlers(dataDir string, journal HealthChecker, cycles CycleStatus, jobs JobCounter, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		dataDir:   dataDir,
		journal:   journal,
		cycles:    cycles,
		jobs:      jobs,
		startedAt: time.Now(),
	}
}

// LastCycleSummary is the short form of the most recent successful cycle
type LastCycleSummary struct {
	CycleID    string    `json:"cycle_id"`
	Trigger    string    `json:"trigger"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	Orders     int       `json:"orders"`
	Submitted  int       `json:"submitted"`
	DryRun     bool      `json:"dry_run"`
}

// SystemStatusResponse is the body of GET /api/system/status
type SystemStatusResponse struct {
	Status        string            `json:"status"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	CPUPercent    float64           `json:"cpu_percent"`
	MemoryPercent float64           `json:"memory_percent"`
	DiskPercent   float64           `json:"disk_percent"`
	DiskFreeMB    float64           `json:"disk_free_mb"`
	Journal       string            `json:"journal"`
	CycleRunning  bool              `json:"cycle_running"`
	ScheduledJobs int               `json:"scheduled_jobs"`
	LastCycle     *LastCycleSummary `json:"last_cycle,omitempty"`
}

// HandleSystemStatus returns host usage, journal health and cycle state
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Journal:       "ok",
	}

	response.CPUPercent, response.MemoryPercent = h.getSystemStats()
	response.DiskPercent, response.DiskFreeMB = h.getDiskStats()

	if h.journal != nil {
		if err := h.journal.QuickCheck(r.Context()); err != nil {
			h.log.Warn().Err(err).Msg("Journal health check failed")
			response.Status = "degraded"
			response.Journal = err.Error()
		}
	}

	if h.jobs != nil {
		response.ScheduledJobs = h.jobs.Entries()
	}

	if h.cycles != nil {
		response.CycleRunning = h.cycles.Running()
		if last := h.cycles.LastResult(); last != nil {
			response.LastCycle = &LastCycleSummary{
				CycleID:    last.CycleID,
				Trigger:    last.Trigger,
				StartedAt:  last.StartedAt,
				DurationMs: last.Duration.Milliseconds(),
				Orders:     len(last.Orders),
				Submitted:  len(last.Submitted),
				DryRun:     last.DryRun,
			}
		}
	}

	h.writeJSON(w, response)
}

// getSystemStats returns CPU and RAM usage percentages
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	// 100ms keeps the endpoint responsive while still giving a usable reading
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

// getDiskStats returns usage of the volume holding the data directory
func (h *SystemHandlers) getDiskStats() (float64, float64) {
	usage, err := disk.Usage(h.dataDir)
	if err != nil {
		h.log.Warn().Err(err).Str("dir", h.dataDir).Msg("Failed to get disk usage")
		return 0, 0
	}
	return usage.UsedPercent, float64(usage.Free) / 1024 / 1024
}

// writeJSON writes a JSON response
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
