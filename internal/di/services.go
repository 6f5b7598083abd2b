package di

import (
	"fmt"

	"github.com/aristath/rebalancer/internal/clients/chaikin"
	"github.com/aristath/rebalancer/internal/clients/ibgateway"
	"github.com/aristath/rebalancer/internal/clients/yahoo"
	"github.com/aristath/rebalancer/internal/config"
	"github.com/aristath/rebalancer/internal/events"
	"github.com/aristath/rebalancer/internal/metrics"
	"github.com/aristath/rebalancer/internal/modules/ratings"
	"github.com/aristath/rebalancer/internal/modules/rebalancing"
	"github.com/aristath/rebalancer/internal/modules/trading"
	"github.com/aristath/rebalancer/internal/reports"
	"github.com/rs/zerolog"
)

// InitializeServices creates clients and services in dependency order
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	policy, err := config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		return fmt.Errorf("failed to load policy: %w", err)
	}
	container.Policy = policy
	container.Filter = ratings.NewFilter(policy.Exclude, policy.MinScore)

	container.EventManager = events.NewManager(log)
	container.Metrics = metrics.New()

	// Clients
	container.RatingsClient = chaikin.NewClient(cfg.ChaikinBaseURL, cfg.ChaikinEmail, cfg.ChaikinPassword, log)

	yahooCfg := yahoo.DefaultConfig()
	yahooCfg.BaseURL = cfg.YahooBaseURL
	container.PriceClient = yahoo.NewClient(yahooCfg, log)

	container.Gateway = ibgateway.NewClient(cfg.IBGatewayURL, cfg.ConnectTimeout, log)

	// Report output
	container.ReportSink = reports.NewCSVSink(cfg.ReportPath, log)

	// Trading
	container.Journal = trading.NewJournal(container.JournalDB.Conn(), log)
	container.Executor = trading.NewExecutor(
		container.Gateway,
		container.Journal,
		container.EventManager,
		container.Metrics,
		log,
	)

	// Rebalancing
	container.RebalancingService = rebalancing.NewService(
		container.RatingsClient,
		container.PriceClient,
		container.Gateway,
		container.Executor,
		container.ReportSink,
		container.EventManager,
		container.Metrics,
		rebalancing.ServiceConfig{
			Filter:           container.Filter,
			Weights:          policy.Weights,
			LiquidateDropped: policy.LiquidateDropped,
			DryRun:           cfg.DryRun,
			PositionsTimeout: cfg.PositionsTimeout,
			OrdersTimeout:    cfg.OrdersTimeout,
			ConnectTimeout:   cfg.ConnectTimeout,
			PriceWorkers:     cfg.PriceFetchWorkers,
		},
		log,
	)

	log.Info().
		Int("min_score", policy.MinScore).
		Strs("exclude", policy.Exclude).
		Bool("dry_run", cfg.DryRun).
		Msg("Services initialized")
	return nil
}
