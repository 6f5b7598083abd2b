package di

import (
	"fmt"
	"time"

	"github.com/aristath/rebalancer/internal/config"
	"github.com/aristath/rebalancer/internal/scheduler"
	"github.com/rs/zerolog"
)

// RegisterJobs creates the scheduler, registers journal maintenance and, when a
// schedule is configured, the rebalance job. The scheduler is not started here.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.Scheduler = scheduler.New(log)

	retention := time.Duration(cfg.JournalRetentionDays) * 24 * time.Hour
	container.MaintenanceJob = scheduler.NewJournalMaintenanceJob(container.JournalDB.Conn(), container.Journal, retention, log)
	if err := container.Scheduler.AddJob(scheduler.JournalMaintenanceSchedule, container.MaintenanceJob); err != nil {
		return fmt.Errorf("failed to register journal maintenance job: %w", err)
	}

	// Bound a scheduled cycle by the sum of its blocking points plus headroom for fetching
	timeout := cfg.ConnectTimeout + cfg.PositionsTimeout + cfg.OrdersTimeout + cycleHeadroom
	container.RebalanceJob = scheduler.NewRebalanceJob(container.RebalancingService, timeout, log)

	if cfg.RebalanceSchedule == "" {
		log.Info().Msg("No rebalance schedule configured, cycles run on demand only")
		return nil
	}

	if err := container.Scheduler.AddJob(cfg.RebalanceSchedule, container.RebalanceJob); err != nil {
		return fmt.Errorf("failed to register rebalance job: %w", err)
	}
	return nil
}
