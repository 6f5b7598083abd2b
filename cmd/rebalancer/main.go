// Package main runs a single rebalance cycle and exits.
//
// The cycle fetches ratings, writes the target allocation report, loads
// positions from the broker gateway, and submits the orders that move the
// portfolio onto the target. Configuration comes from the environment (and an
// optional .env file); CHAIKIN_EMAIL and CHAIKIN_PASSWORD are required.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aristath/rebalancer/internal/config"
	"github.com/aristath/rebalancer/internal/di"
	"github.com/aristath/rebalancer/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}

	// Interrupting cancels the cycle; the gateway is still disconnected on the way out
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	result, err := container.RebalancingService.Run(ctx)
	stop()
	container.Close()

	if err != nil {
		log.Error().Err(err).Msg("Rebalance failed")
		os.Exit(1)
	}

	log.Info().
		Str("cycle_id", result.CycleID).
		Int("orders", len(result.Orders)).
		Int("submitted", len(result.Submitted)).
		Str("report", container.ReportSink.Path()).
		Msg("Rebalance complete")
}
