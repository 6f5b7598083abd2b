package trading

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/events"
	testingpkg "github.com/aristath/rebalancer/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func sampleOrders() []domain.Order {
	return []domain.Order{
		{Symbol: "A", Action: domain.OrderActionSell, Shares: 50},
		{Symbol: "B", Action: domain.OrderActionBuy, Shares: 25},
		{Symbol: "C", Action: domain.OrderActionBuy, Shares: 3},
	}
}

func TestExecutor_SubmitAndWait(t *testing.T) {
	gateway := testingpkg.NewMockGateway().FillAll()
	journal := newTestJournal(t)
	exec := NewExecutor(gateway, journal, nil, nil, testLogger())
	ctx := context.Background()

	submitted, err := exec.Submit(ctx, "cycle-1", sampleOrders())
	require.NoError(t, err)
	require.Len(t, submitted, 3)
	assert.Equal(t, sampleOrders(), gateway.Submitted())

	require.NoError(t, exec.Wait(ctx, time.Second))
	assert.Empty(t, exec.Open())

	expected, completed, fired := exec.Counter().Snapshot()
	assert.Equal(t, 3, expected)
	assert.Equal(t, 3, completed)
	assert.True(t, fired)

	// Final statuses are journaled asynchronously with the counter; poll briefly
	require.Eventually(t, func() bool {
		entries, err := journal.ListByCycle(ctx, "cycle-1")
		if err != nil || len(entries) != 3 {
			return false
		}
		for _, e := range entries {
			if e.Status != domain.OrderStatusFilled {
				return false
			}
		}
		return true
	}, time.Second, 10*time.Millisecond)
}

func TestExecutor_NonTerminalStatusesDoNotComplete(t *testing.T) {
	gateway := testingpkg.NewMockGateway().WithAutoStatus(func(id int64, o domain.Order) []domain.OrderStatusUpdate {
		return []domain.OrderStatusUpdate{
			{OrderID: id, Status: domain.OrderStatusPreSubmitted},
			{OrderID: id, Status: domain.OrderStatusSubmitted, Filled: 1, Remaining: float64(o.Shares - 1)},
		}
	})
	exec := NewExecutor(gateway, nil, nil, nil, testLogger())
	ctx := context.Background()

	submitted, err := exec.Submit(ctx, "cycle-1", sampleOrders())
	require.NoError(t, err)

	err = exec.Wait(ctx, 50*time.Millisecond)
	assert.True(t, errors.Is(err, domain.ErrConnectionTimeout))

	for _, s := range submitted {
		status, ok := exec.Status(s.OrderID)
		require.True(t, ok)
		assert.Equal(t, domain.OrderStatusAbandoned, status)
	}
	assert.Empty(t, exec.Open())
}

func TestExecutor_TimeoutJournalsAbandoned(t *testing.T) {
	gateway := testingpkg.NewMockGateway()
	journal := newTestJournal(t)
	manager := events.NewManager(testLogger())

	var mu sync.Mutex
	var abandoned []int64
	manager.Subscribe(func(e events.Event) {
		if data, ok := e.Data.(*events.OrdersAbandonedData); ok {
			mu.Lock()
			abandoned = data.OrderIDs
			mu.Unlock()
		}
	})

	exec := NewExecutor(gateway, journal, manager, nil, testLogger())
	ctx := context.Background()

	submitted, err := exec.Submit(ctx, "cycle-1", sampleOrders()[:2])
	require.NoError(t, err)

	// First order fills, second never reports
	gateway.Emit(domain.OrderStatusUpdate{OrderID: submitted[0].OrderID, Status: domain.OrderStatusFilled, Filled: 50})

	err = exec.Wait(ctx, 50*time.Millisecond)
	require.True(t, errors.Is(err, domain.ErrConnectionTimeout))

	entries, err := journal.ListByCycle(ctx, "cycle-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.OrderStatusFilled, entries[0].Status)
	assert.Equal(t, domain.OrderStatusAbandoned, entries[1].Status)

	mu.Lock()
	assert.Equal(t, []int64{submitted[1].OrderID}, abandoned)
	mu.Unlock()

	// A late final status does not resurrect the abandoned order
	gateway.Emit(domain.OrderStatusUpdate{OrderID: submitted[1].OrderID, Status: domain.OrderStatusFilled})
	status, _ := exec.Status(submitted[1].OrderID)
	assert.Equal(t, domain.OrderStatusAbandoned, status)
}

func TestExecutor_SubmitFailureMidBatch(t *testing.T) {
	gateway := testingpkg.NewMockGateway().FillAll().WithSubmitErrorAt(1, errors.New("socket closed"))
	exec := NewExecutor(gateway, nil, nil, nil, testLogger())
	ctx := context.Background()

	submitted, err := exec.Submit(ctx, "cycle-1", sampleOrders())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "socket closed")
	require.Len(t, submitted, 1)
	assert.Len(t, gateway.Submitted(), 1)

	// The one order that went out is still tracked to completion
	require.NoError(t, exec.Wait(ctx, time.Second))
	expected, completed, _ := exec.Counter().Snapshot()
	assert.Equal(t, 1, expected)
	assert.Equal(t, 1, completed)
}

func TestExecutor_DuplicateAndUnknownStatuses(t *testing.T) {
	gateway := testingpkg.NewMockGateway()
	exec := NewExecutor(gateway, nil, nil, nil, testLogger())
	ctx := context.Background()

	submitted, err := exec.Submit(ctx, "cycle-1", sampleOrders()[:2])
	require.NoError(t, err)

	gateway.Emit(domain.OrderStatusUpdate{OrderID: 9999, Status: domain.OrderStatusFilled})
	gateway.Emit(domain.OrderStatusUpdate{OrderID: submitted[0].OrderID, Status: domain.OrderStatusFilled})
	gateway.Emit(domain.OrderStatusUpdate{OrderID: submitted[0].OrderID, Status: domain.OrderStatusFilled})

	_, completed, fired := exec.Counter().Snapshot()
	assert.Equal(t, 1, completed)
	assert.False(t, fired)

	gateway.Emit(domain.OrderStatusUpdate{OrderID: submitted[1].OrderID, Status: domain.OrderStatusCancelled})
	require.NoError(t, exec.Wait(ctx, time.Second))
}

func TestExecutor_EmptyBatch(t *testing.T) {
	exec := NewExecutor(testingpkg.NewMockGateway(), nil, nil, nil, testLogger())

	submitted, err := exec.Submit(context.Background(), "cycle-1", nil)
	require.NoError(t, err)
	assert.Empty(t, submitted)
	assert.NoError(t, exec.Wait(context.Background(), 10*time.Millisecond))
}

func TestExecutor_NewBatchResetsCounter(t *testing.T) {
	gateway := testingpkg.NewMockGateway().FillAll()
	exec := NewExecutor(gateway, nil, nil, nil, testLogger())
	ctx := context.Background()

	_, err := exec.Submit(ctx, "cycle-1", sampleOrders())
	require.NoError(t, err)
	require.NoError(t, exec.Wait(ctx, time.Second))

	gateway.WithAutoStatus(nil)
	_, err = exec.Submit(ctx, "cycle-2", sampleOrders()[:1])
	require.NoError(t, err)

	_, completed, fired := exec.Counter().Snapshot()
	assert.Equal(t, 0, completed)
	assert.False(t, fired)
}
