package trading

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/aristath/rebalancer/internal/database"
	"github.com/aristath/rebalancer/internal/domain"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupJournalDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// :memory: is per connection
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.ApplySchema(db, "journal"))
	return db
}

func newTestJournal(t *testing.T) *Journal {
	return NewJournal(setupJournalDB(t), zerolog.New(nil).Level(zerolog.Disabled))
}

func TestJournal_RecordAndList(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.RecordSubmitted(ctx, "c1", 10, domain.Order{Symbol: "aapl", Action: domain.OrderActionBuy, Shares: 5}))
	require.NoError(t, j.RecordSubmitted(ctx, "c1", 11, domain.Order{Symbol: "MSFT", Action: domain.OrderActionSell, Shares: 2}))
	require.NoError(t, j.RecordSubmitted(ctx, "c2", 12, domain.Order{Symbol: "XOM", Action: domain.OrderActionBuy, Shares: 1}))

	entries, err := j.ListByCycle(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, int64(10), entries[0].OrderID)
	assert.Equal(t, "AAPL", entries[0].Symbol)
	assert.Equal(t, domain.OrderActionBuy, entries[0].Action)
	assert.Equal(t, domain.OrderStatusSubmitted, entries[0].Status)
	assert.Equal(t, 5.0, entries[0].Remaining)
	assert.False(t, entries[0].SubmittedAt.IsZero())

	recent, err := j.ListRecent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	none, err := j.ListByCycle(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestJournal_UpdateStatusKeepsFinal(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	require.NoError(t, j.RecordSubmitted(ctx, "c1", 1, domain.Order{Symbol: "A", Action: domain.OrderActionBuy, Shares: 10}))

	require.NoError(t, j.UpdateStatus(ctx, "c1", domain.OrderStatusUpdate{OrderID: 1, Status: domain.OrderStatusFilled, Filled: 10}))
	require.NoError(t, j.UpdateStatus(ctx, "c1", domain.OrderStatusUpdate{OrderID: 1, Status: domain.OrderStatusSubmitted}))

	entries, err := j.ListByCycle(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.OrderStatusFilled, entries[0].Status)
	assert.Equal(t, 10.0, entries[0].Filled)
	assert.Equal(t, 0.0, entries[0].Remaining)
}

func TestJournal_MarkAbandoned(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	for id := int64(1); id <= 3; id++ {
		require.NoError(t, j.RecordSubmitted(ctx, "c1", id, domain.Order{Symbol: "A", Action: domain.OrderActionBuy, Shares: 1}))
	}
	require.NoError(t, j.UpdateStatus(ctx, "c1", domain.OrderStatusUpdate{OrderID: 1, Status: domain.OrderStatusFilled}))

	require.NoError(t, j.MarkAbandoned(ctx, "c1", []int64{1, 2, 3}))
	require.NoError(t, j.MarkAbandoned(ctx, "c1", nil))

	entries, err := j.ListByCycle(ctx, "c1")
	require.NoError(t, err)

	statuses := map[int64]domain.OrderStatus{}
	for _, e := range entries {
		statuses[e.OrderID] = e.Status
	}
	assert.Equal(t, domain.OrderStatusFilled, statuses[1])
	assert.Equal(t, domain.OrderStatusAbandoned, statuses[2])
	assert.Equal(t, domain.OrderStatusAbandoned, statuses[3])
}

func TestJournal_RejectsDuplicateOrder(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	order := domain.Order{Symbol: "A", Action: domain.OrderActionBuy, Shares: 1}

	require.NoError(t, j.RecordSubmitted(ctx, "c1", 1, order))
	assert.Error(t, j.RecordSubmitted(ctx, "c1", 1, order))
}

func TestJournal_Prune(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	for id := int64(1); id <= 3; id++ {
		require.NoError(t, j.RecordSubmitted(ctx, "c1", id, domain.Order{Symbol: "A", Action: domain.OrderActionBuy, Shares: 1}))
	}
	require.NoError(t, j.UpdateStatus(ctx, "c1", domain.OrderStatusUpdate{OrderID: 1, Status: domain.OrderStatusFilled}))
	require.NoError(t, j.MarkAbandoned(ctx, "c1", []int64{2}))

	// Nothing is older than an hour ago
	n, err := j.Prune(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	// Open orders survive any cutoff
	n, err = j.Prune(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	entries, err := j.ListByCycle(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(3), entries[0].OrderID)
}
