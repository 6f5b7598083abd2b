package di

import (
	"github.com/aristath/rebalancer/internal/clients/chaikin"
	"github.com/aristath/rebalancer/internal/clients/ibgateway"
	"github.com/aristath/rebalancer/internal/clients/yahoo"
	"github.com/aristath/rebalancer/internal/config"
	"github.com/aristath/rebalancer/internal/database"
	"github.com/aristath/rebalancer/internal/events"
	"github.com/aristath/rebalancer/internal/metrics"
	"github.com/aristath/rebalancer/internal/modules/ratings"
	"github.com/aristath/rebalancer/internal/modules/rebalancing"
	"github.com/aristath/rebalancer/internal/modules/trading"
	"github.com/aristath/rebalancer/internal/reports"
	"github.com/aristath/rebalancer/internal/scheduler"
)

// Container holds all dependencies for the application.
// It is created by Wire and is the single source of truth for service instances.
type Container struct {
	// Databases
	JournalDB *database.DB

	// Policy
	Policy *config.Policy
	Filter ratings.Filter

	// Clients
	RatingsClient *chaikin.Client
	PriceClient   *yahoo.Client
	Gateway       *ibgateway.Client

	// Infrastructure
	EventManager *events.Manager
	Metrics      *metrics.Recorder
	ReportSink   *reports.CSVSink

	// Services
	Journal            *trading.Journal
	Executor           *trading.Executor
	RebalancingService *rebalancing.Service

	// Jobs
	Scheduler      *scheduler.Scheduler
	RebalanceJob   *scheduler.RebalanceJob
	MaintenanceJob *scheduler.JournalMaintenanceJob
}

// Close releases everything the container owns. Safe to call on a partially wired container.
func (c *Container) Close() {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.RebalancingService != nil {
		c.RebalancingService.Close()
	}
	if c.Gateway != nil {
		_ = c.Gateway.Disconnect()
	}
	if c.JournalDB != nil {
		_ = c.JournalDB.Close()
	}
}
