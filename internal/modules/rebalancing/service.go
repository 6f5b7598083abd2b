// Package rebalancing reconciles a ratings-driven target allocation against
// the live brokerage portfolio and drives one rebalance cycle end to end.
package rebalancing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond"
	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/events"
	"github.com/aristath/rebalancer/internal/metrics"
	"github.com/aristath/rebalancer/internal/modules/allocation"
	"github.com/aristath/rebalancer/internal/modules/portfolio"
	"github.com/aristath/rebalancer/internal/modules/ratings"
	"github.com/aristath/rebalancer/internal/modules/trading"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrCycleInProgress is returned when Run is called while another cycle is still running
var ErrCycleInProgress = errors.New("rebalance cycle already in progress")

// Cycle triggers
const (
	TriggerCLI      = "cli"
	TriggerAPI      = "api"
	TriggerSchedule = "schedule"
)

// ServiceConfig holds the knobs of a rebalance cycle
type ServiceConfig struct {
	Filter           ratings.Filter
	Weights          map[int]float64
	LiquidateDropped bool
	DryRun           bool
	PositionsTimeout time.Duration
	OrdersTimeout    time.Duration
	ConnectTimeout   time.Duration
	PriceWorkers     int
}

// CycleResult summarizes one completed cycle
type CycleResult struct {
	CycleID   string                   `json:"cycle_id"`
	Trigger   string                   `json:"trigger"`
	Target    domain.TargetAllocation  `json:"target"`
	Snapshot  *portfolio.Snapshot      `json:"snapshot,omitempty"`
	Orders    []domain.Order           `json:"orders"`
	Submitted []trading.SubmittedOrder `json:"submitted"`
	DryRun    bool                     `json:"dry_run"`
	StartedAt time.Time                `json:"started_at"`
	Duration  time.Duration            `json:"duration"`
}

// Service orchestrates a rebalance cycle:
// ratings → target allocation → report → positions → orders → completion.
type Service struct {
	source   domain.RatingsSource
	prices   domain.PriceProvider
	gateway  domain.BrokerGateway
	executor *trading.Executor
	report   domain.ReportSink
	events   *events.Manager
	recorder *metrics.Recorder
	cfg      ServiceConfig
	pool     *pond.WorkerPool
	log      zerolog.Logger

	running atomic.Bool

	mu   sync.RWMutex
	last *CycleResult
}

// NewService creates a new rebalancing service.
// report, eventManager and recorder may be nil.
func NewService(
	source domain.RatingsSource,
	prices domain.PriceProvider,
	gateway domain.BrokerGateway,
	executor *trading.Executor,
	report domain.ReportSink,
	eventManager *events.Manager,
	recorder *metrics.Recorder,
	cfg ServiceConfig,
	log zerolog.Logger,
) *Service {
	workers := cfg.PriceWorkers
	if workers < 1 {
		workers = 1
	}
	svcLog := log.With().Str("service", "rebalancing").Logger()

	pool := pond.New(workers, 0,
		pond.MinWorkers(1),
		pond.IdleTimeout(30*time.Second),
		pond.PanicHandler(func(p interface{}) {
			svcLog.Error().Interface("panic", p).Msg("Price lookup worker panicked")
		}),
	)

	return &Service{
		source:   source,
		prices:   prices,
		gateway:  gateway,
		executor: executor,
		report:   report,
		events:   eventManager,
		recorder: recorder,
		cfg:      cfg,
		pool:     pool,
		log:      svcLog,
	}
}

// Run executes one cycle triggered from the command line
func (s *Service) Run(ctx context.Context) (*CycleResult, error) {
	return s.RunWithTrigger(ctx, TriggerCLI)
}

// RunWithTrigger executes one cycle. Only one cycle runs at a time.
// The gateway is always disconnected before returning once connected.
func (s *Service) RunWithTrigger(ctx context.Context, trigger string) (*CycleResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrCycleInProgress
	}
	defer s.running.Store(false)

	result := &CycleResult{
		CycleID:   uuid.New().String(),
		Trigger:   trigger,
		DryRun:    s.cfg.DryRun,
		StartedAt: time.Now(),
	}
	log := s.log.With().Str("cycle_id", result.CycleID).Logger()

	log.Info().Str("trigger", trigger).Bool("dry_run", s.cfg.DryRun).Msg("Starting rebalance cycle")
	s.events.Emit("rebalancing", &events.CycleStartedData{
		CycleID: result.CycleID,
		DryRun:  s.cfg.DryRun,
		Trigger: trigger,
	})

	err := s.runCycle(ctx, result, log)
	result.Duration = time.Since(result.StartedAt)

	completed := &events.CycleCompletedData{
		CycleID:    result.CycleID,
		Orders:     len(result.Orders),
		Submitted:  len(result.Submitted),
		DryRun:     result.DryRun,
		DurationMs: result.Duration.Milliseconds(),
	}

	if err != nil {
		msg := err.Error()
		completed.Error = &msg
		s.recorder.RecordCycle("failed", result.Duration)
		s.events.EmitError("rebalancing", err, map[string]interface{}{"cycle_id": result.CycleID})
		s.events.Emit("rebalancing", completed)
		log.Error().Err(err).Dur("duration", result.Duration).Msg("Rebalance cycle failed")
		return result, err
	}

	outcome := "success"
	if result.DryRun {
		outcome = "dry_run"
	}
	s.recorder.RecordCycle(outcome, result.Duration)
	s.events.Emit("rebalancing", completed)

	s.mu.Lock()
	s.last = result
	s.mu.Unlock()

	log.Info().
		Int("orders", len(result.Orders)).
		Int("submitted", len(result.Submitted)).
		Dur("duration", result.Duration).
		Msg("Rebalance cycle completed")

	return result, nil
}

func (s *Service) runCycle(ctx context.Context, result *CycleResult, log zerolog.Logger) error {
	target, err := s.computeTarget(ctx, result.CycleID, log)
	if err != nil {
		return err
	}
	result.Target = target

	if s.report != nil {
		if err := s.report.Write(target); err != nil {
			return fmt.Errorf("failed to write allocation report: %w", err)
		}
		s.events.Emit("rebalancing", &events.ReportWrittenData{CycleID: result.CycleID, Rows: len(target)})
	}

	connectCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	err = s.gateway.Connect(connectCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect to broker gateway: %w", err)
	}
	defer func() {
		if err := s.gateway.Disconnect(); err != nil {
			log.Warn().Err(err).Msg("Failed to disconnect from broker gateway")
		}
	}()

	cache := NewPriceCache(s.prices, s.pool, s.recorder, log)

	snapshot, err := s.loadPositions(ctx, cache)
	if err != nil {
		return err
	}
	result.Snapshot = snapshot
	s.recorder.SetPortfolioValue(snapshot.TotalMarketValue)
	s.events.Emit("rebalancing", &events.PositionsLoadedData{
		CycleID:          result.CycleID,
		Count:            len(snapshot.Symbols),
		TotalMarketValue: snapshot.TotalMarketValue,
	})
	log.Info().
		Int("positions", len(snapshot.Symbols)).
		Float64("total_market_value", snapshot.TotalMarketValue).
		Msg("Positions loaded")

	cache.Prefetch(ctx, unpricedTargets(target, snapshot))

	orders, err := Diff(ctx, target, snapshot.Positions, snapshot.TotalMarketValue, cache)
	if err != nil {
		return fmt.Errorf("failed to reconcile positions: %w", err)
	}

	var liquidating int
	if s.cfg.LiquidateDropped {
		dropped := LiquidationOrders(target, snapshot)
		liquidating = len(dropped)
		orders = append(orders, dropped...)
	}
	result.Orders = orders
	s.emitPlanned(result.CycleID, orders, liquidating)

	for _, o := range orders {
		log.Info().Str("symbol", o.Symbol).Str("action", string(o.Action)).Int64("shares", o.Shares).Msg("Planned order")
	}

	if s.cfg.DryRun || len(orders) == 0 {
		return nil
	}

	submitted, submitErr := s.executor.Submit(ctx, result.CycleID, orders)
	result.Submitted = submitted

	waitErr := s.executor.Wait(ctx, s.cfg.OrdersTimeout)
	if submitErr != nil {
		return submitErr
	}
	if waitErr != nil {
		return fmt.Errorf("failed waiting for order completion: %w", waitErr)
	}
	return nil
}

// computeTarget fetches ratings and turns them into a target allocation
func (s *Service) computeTarget(ctx context.Context, cycleID string, log zerolog.Logger) (domain.TargetAllocation, error) {
	entries, err := s.source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ratings: %w", err)
	}

	lookup := ratings.NewLookup(entries)
	admitted := s.cfg.Filter.Apply(lookup)
	s.events.Emit("rebalancing", &events.RatingsFetchedData{
		CycleID:  cycleID,
		Total:    lookup.Len(),
		Admitted: len(admitted),
	})
	log.Info().Int("ratings", lookup.Len()).Int("admitted", len(admitted)).Msg("Ratings fetched")

	target, err := allocation.Compute(admitted, s.cfg.Weights)
	if err != nil {
		return nil, fmt.Errorf("failed to compute target allocation: %w", err)
	}

	s.recorder.SetTargetSymbols(len(target))
	s.events.Emit("rebalancing", &events.AllocationReadyData{
		CycleID: cycleID,
		Targets: target.Map(),
		Total:   target.Sum(),
	})
	return target, nil
}

// loadPositions streams positions through a collector and finalizes the book
func (s *Service) loadPositions(ctx context.Context, prices domain.PriceProvider) (*portfolio.Snapshot, error) {
	collector := portfolio.NewCollector(prices, s.log)

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	err := s.gateway.StreamPositions(streamCtx,
		func(p domain.BrokerPosition) { collector.HandlePosition(streamCtx, p) },
		collector.HandleComplete,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to request positions: %w", err)
	}

	snapshot, err := collector.Wait(ctx, s.cfg.PositionsTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to load positions: %w", err)
	}
	return snapshot, nil
}

func (s *Service) emitPlanned(cycleID string, orders []domain.Order, liquidating int) {
	var buys, sells int
	for _, o := range orders {
		if o.Action == domain.OrderActionBuy {
			buys++
		} else {
			sells++
		}
	}
	s.events.Emit("rebalancing", &events.OrdersPlannedData{
		CycleID:     cycleID,
		Buys:        buys,
		Sells:       sells,
		Liquidating: liquidating,
	})
}

// LastResult returns the most recent successful cycle, if any
func (s *Service) LastResult() *CycleResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Running reports whether a cycle is in progress
func (s *Service) Running() bool {
	return s.running.Load()
}

// Close stops the price lookup pool
func (s *Service) Close() {
	s.pool.StopAndWait()
}

// unpricedTargets lists target symbols the book cannot price by itself
func unpricedTargets(target domain.TargetAllocation, snapshot *portfolio.Snapshot) []string {
	var symbols []string
	for _, w := range target {
		if pos, ok := snapshot.Get(w.Symbol); ok && pos.Price > 0 {
			continue
		}
		symbols = append(symbols, w.Symbol)
	}
	return symbols
}
