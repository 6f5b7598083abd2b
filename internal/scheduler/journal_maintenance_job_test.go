package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/database"
	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/trading"
)

type MockJournalPruner struct {
	mock.Mock
}

func (m *MockJournalPruner) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func setupJournalConn(t *testing.T) *sql.DB {
	conn, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, database.ApplySchema(conn, "journal"))
	return conn
}

func TestJournalMaintenanceJob_PrunesSettledOrders(t *testing.T) {
	conn := setupJournalConn(t)
	journal := trading.NewJournal(conn, testLogger())
	ctx := context.Background()

	require.NoError(t, journal.RecordSubmitted(ctx, "c1", 1, domain.Order{Symbol: "A", Action: domain.OrderActionBuy, Shares: 1}))
	require.NoError(t, journal.RecordSubmitted(ctx, "c1", 2, domain.Order{Symbol: "B", Action: domain.OrderActionBuy, Shares: 1}))
	require.NoError(t, journal.UpdateStatus(ctx, "c1", domain.OrderStatusUpdate{OrderID: 1, Status: domain.OrderStatusFilled}))

	// Backdate everything so it falls outside the retention window
	_, err := conn.Exec("UPDATE orders SET updated_at = ?", time.Now().Add(-48*time.Hour).Unix())
	require.NoError(t, err)

	job := NewJournalMaintenanceJob(conn, journal, 24*time.Hour, testLogger())
	assert.Equal(t, "journal_maintenance", job.Name())
	require.NoError(t, job.Run())

	entries, err := journal.ListByCycle(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].OrderID, "open orders are kept")
}

func TestJournalMaintenanceJob_Retention(t *testing.T) {
	tests := []struct {
		name        string
		retention   time.Duration
		pruneErr    error
		expectPrune bool
		expectErr   bool
	}{
		{name: "disabled", retention: 0},
		{name: "prunes", retention: time.Hour, expectPrune: true},
		{name: "prune fails", retention: time.Hour, pruneErr: errors.New("locked"), expectPrune: true, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pruner := new(MockJournalPruner)
			if tt.expectPrune {
				pruner.On("Prune", mock.Anything, mock.AnythingOfType("time.Time")).Return(int64(3), tt.pruneErr)
			}

			job := NewJournalMaintenanceJob(setupJournalConn(t), pruner, tt.retention, testLogger())
			err := job.Run()

			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			pruner.AssertExpectations(t)
			if !tt.expectPrune {
				pruner.AssertNotCalled(t, "Prune", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestJournalMaintenanceJob_ClosedDatabase(t *testing.T) {
	conn, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	job := NewJournalMaintenanceJob(conn, nil, time.Hour, testLogger())
	assert.Error(t, job.Run())
}
