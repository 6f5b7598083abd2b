package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/aristath/rebalancer/internal/modules/rebalancing"
	"github.com/rs/zerolog"
)

// CycleRunner runs rebalance cycles
type CycleRunner interface {
	RunWithTrigger(ctx context.Context, trigger string) (*rebalancing.CycleResult, error)
}

// RebalanceJob runs one rebalance cycle per tick
type RebalanceJob struct {
	runner  CycleRunner
	timeout time.Duration
	log     zerolog.Logger
}

// NewRebalanceJob creates a job bounding each cycle by timeout
func NewRebalanceJob(runner CycleRunner, timeout time.Duration, log zerolog.Logger) *RebalanceJob {
	return &RebalanceJob{
		runner:  runner,
		timeout: timeout,
		log:     log.With().Str("job", "rebalance").Logger(),
	}
}

// Name returns the job name
func (j *RebalanceJob) Name() string {
	return "rebalance"
}

// Run executes one cycle. A tick that lands while a cycle is still running is skipped.
func (j *RebalanceJob) Run() error {
	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	result, err := j.runner.RunWithTrigger(ctx, rebalancing.TriggerSchedule)
	if errors.Is(err, rebalancing.ErrCycleInProgress) {
		j.log.Warn().Msg("Previous cycle still running, skipping")
		return nil
	}
	if err != nil {
		return err
	}

	j.log.Info().
		Str("cycle_id", result.CycleID).
		Int("orders", len(result.Orders)).
		Msg("Scheduled rebalance completed")
	return nil
}
