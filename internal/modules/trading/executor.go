package trading

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/events"
	"github.com/aristath/rebalancer/internal/metrics"
	"github.com/rs/zerolog"
)

// SubmittedOrder pairs an order with the id the broker assigned to it
type SubmittedOrder struct {
	OrderID int64        `json:"order_id"`
	Order   domain.Order `json:"order"`
}

// Executor submits order batches through the broker gateway and follows
// their status notifications until every order is final.
type Executor struct {
	gateway  domain.BrokerGateway
	journal  *Journal
	counter  *CompletionCounter
	events   *events.Manager
	recorder *metrics.Recorder
	log      zerolog.Logger

	mu       sync.Mutex
	cycleID  string
	orders   map[int64]domain.Order
	statuses map[int64]domain.OrderStatus
	early    map[int64]domain.OrderStatusUpdate // statuses that beat SubmitOrder's return
}

// NewExecutor creates an executor and registers it for the gateway's order status callbacks.
// journal, eventManager and recorder may be nil.
func NewExecutor(
	gateway domain.BrokerGateway,
	journal *Journal,
	eventManager *events.Manager,
	recorder *metrics.Recorder,
	log zerolog.Logger,
) *Executor {
	e := &Executor{
		gateway:  gateway,
		journal:  journal,
		counter:  NewCompletionCounter(),
		events:   eventManager,
		recorder: recorder,
		log:      log.With().Str("service", "order_executor").Logger(),
		orders:   make(map[int64]domain.Order),
		statuses: make(map[int64]domain.OrderStatus),
		early:    make(map[int64]domain.OrderStatusUpdate),
	}
	gateway.OnOrderStatus(e.HandleStatus)
	return e
}

// Submit sends every order one-way and arms the completion counter for the batch.
// On a submission failure the remaining orders are skipped, the counter is
// shrunk to what was actually sent, and the error is returned alongside the
// orders already submitted; those must still be awaited with Wait.
func (e *Executor) Submit(ctx context.Context, cycleID string, orders []domain.Order) ([]SubmittedOrder, error) {
	e.mu.Lock()
	e.cycleID = cycleID
	e.orders = make(map[int64]domain.Order, len(orders))
	e.statuses = make(map[int64]domain.OrderStatus, len(orders))
	e.early = make(map[int64]domain.OrderStatusUpdate)
	e.counter.SetOrderCount(len(orders))
	e.mu.Unlock()

	submitted := make([]SubmittedOrder, 0, len(orders))
	for _, order := range orders {
		orderID, err := e.gateway.SubmitOrder(ctx, order)
		if err != nil {
			e.counter.Resize(len(submitted))
			e.log.Error().
				Err(err).
				Str("symbol", order.Symbol).
				Int("submitted", len(submitted)).
				Int("skipped", len(orders)-len(submitted)).
				Msg("Order submission failed, remaining orders skipped")
			return submitted, fmt.Errorf("failed to submit %s %d %s: %w", order.Action, order.Shares, order.Symbol, err)
		}

		submitted = append(submitted, SubmittedOrder{OrderID: orderID, Order: order})

		if e.journal != nil {
			if err := e.journal.RecordSubmitted(ctx, cycleID, orderID, order); err != nil {
				e.log.Error().Err(err).Int64("order_id", orderID).Msg("Failed to journal order")
			}
		}

		e.log.Info().
			Int64("order_id", orderID).
			Str("symbol", order.Symbol).
			Str("action", string(order.Action)).
			Int64("shares", order.Shares).
			Msg("Order submitted")
		e.recorder.RecordOrderSubmitted(string(order.Action))
		e.events.Emit("trading", &events.OrderSubmittedData{
			CycleID: cycleID,
			OrderID: orderID,
			Symbol:  order.Symbol,
			Action:  string(order.Action),
			Shares:  order.Shares,
		})

		e.track(orderID, order)
	}

	return submitted, nil
}

// track registers a submitted order and replays any status that arrived first
func (e *Executor) track(orderID int64, order domain.Order) {
	e.mu.Lock()
	e.orders[orderID] = order
	e.statuses[orderID] = domain.OrderStatusSubmitted
	u, early := e.early[orderID]
	delete(e.early, orderID)
	e.mu.Unlock()

	if early {
		e.HandleStatus(u)
	}
}

// HandleStatus is the gateway's order status callback
func (e *Executor) HandleStatus(u domain.OrderStatusUpdate) {
	e.mu.Lock()
	cycleID := e.cycleID
	prev, known := e.statuses[u.OrderID]
	if !known {
		if prior, ok := e.early[u.OrderID]; cycleID != "" && !(ok && isFinal(prior.Status)) {
			e.early[u.OrderID] = u
		}
		e.mu.Unlock()
		return
	}
	if isFinal(prev) {
		e.mu.Unlock()
		return
	}
	e.statuses[u.OrderID] = u.Status
	e.mu.Unlock()

	terminal := u.Status.IsTerminal()
	if terminal {
		e.counter.MarkTerminal(u.OrderID)
		e.recorder.RecordOrderTerminal(string(u.Status))
	}

	if e.journal != nil {
		if err := e.journal.UpdateStatus(context.Background(), cycleID, u); err != nil {
			e.log.Error().Err(err).Int64("order_id", u.OrderID).Msg("Failed to journal order status")
		}
	}

	e.log.Info().
		Int64("order_id", u.OrderID).
		Str("status", string(u.Status)).
		Float64("filled", u.Filled).
		Float64("remaining", u.Remaining).
		Msg("Order status")
	e.events.Emit("trading", &events.OrderStatusData{
		OrderID:   u.OrderID,
		Status:    string(u.Status),
		Filled:    u.Filled,
		Remaining: u.Remaining,
		Terminal:  terminal,
	})
}

// Wait blocks until every submitted order of the batch is final.
// On timeout or cancellation, orders still open are journaled as abandoned
// and logged; a timeout returns domain.ErrConnectionTimeout.
func (e *Executor) Wait(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-e.counter.Done():
		return nil
	case <-timer.C:
		e.abandonOpen()
		return fmt.Errorf("orders not completed within %s: %w", timeout, domain.ErrConnectionTimeout)
	case <-ctx.Done():
		e.abandonOpen()
		return ctx.Err()
	}
}

// Open returns the ids of submitted orders that are not final yet
func (e *Executor) Open() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	var open []int64
	for id, status := range e.statuses {
		if !isFinal(status) {
			open = append(open, id)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i] < open[j] })
	return open
}

// Status returns the last known status of an order
func (e *Executor) Status(orderID int64) (domain.OrderStatus, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.statuses[orderID]
	return s, ok
}

// Counter returns the completion counter of the current batch
func (e *Executor) Counter() *CompletionCounter {
	return e.counter
}

func (e *Executor) abandonOpen() {
	open := e.Open()
	if len(open) == 0 {
		return
	}

	e.mu.Lock()
	cycleID := e.cycleID
	for _, id := range open {
		order := e.orders[id]
		e.statuses[id] = domain.OrderStatusAbandoned
		e.log.Warn().
			Str("cycle_id", cycleID).
			Int64("order_id", id).
			Str("symbol", order.Symbol).
			Str("action", string(order.Action)).
			Int64("shares", order.Shares).
			Msg("Order abandoned without a final status")
	}
	e.mu.Unlock()

	for range open {
		e.recorder.RecordOrderTerminal(string(domain.OrderStatusAbandoned))
	}

	if e.journal != nil {
		if err := e.journal.MarkAbandoned(context.Background(), cycleID, open); err != nil {
			e.log.Error().Err(err).Msg("Failed to journal abandoned orders")
		}
	}
	e.events.Emit("trading", &events.OrdersAbandonedData{CycleID: cycleID, OrderIDs: open})
}

func isFinal(s domain.OrderStatus) bool {
	return s.IsTerminal() || s == domain.OrderStatusAbandoned
}
