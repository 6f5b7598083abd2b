package trading

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/rs/zerolog"
)

// JournalEntry is one journaled order
type JournalEntry struct {
	CycleID     string             `json:"cycle_id"`
	OrderID     int64              `json:"order_id"`
	Symbol      string             `json:"symbol"`
	Action      domain.OrderAction `json:"action"`
	Shares      int64              `json:"shares"`
	Status      domain.OrderStatus `json:"status"`
	Filled      float64            `json:"filled"`
	Remaining   float64            `json:"remaining"`
	SubmittedAt time.Time          `json:"submitted_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// ordersColumns must match scanEntry
const ordersColumns = `cycle_id, order_id, symbol, action, shares, status, filled, remaining, submitted_at, updated_at`

// finalStatuses are never overwritten by a later update
const finalStatuses = `'Filled', 'Cancelled', 'ApiCancelled', 'Inactive', 'Abandoned'`

// Journal records submitted orders and their outcome in the journal database
type Journal struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewJournal creates a new order journal
func NewJournal(db *sql.DB, log zerolog.Logger) *Journal {
	return &Journal{
		db:  db,
		log: log.With().Str("repo", "order_journal").Logger(),
	}
}

// RecordSubmitted inserts a freshly submitted order
func (j *Journal) RecordSubmitted(ctx context.Context, cycleID string, orderID int64, order domain.Order) error {
	now := time.Now().Unix()

	query := `
		INSERT INTO orders
		(cycle_id, order_id, symbol, action, shares, status, filled, remaining, submitted_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
	`

	_, err := j.db.ExecContext(ctx, query,
		cycleID,
		orderID,
		strings.ToUpper(order.Symbol),
		string(order.Action),
		order.Shares,
		string(domain.OrderStatusSubmitted),
		float64(order.Shares),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to journal order %d: %w", orderID, err)
	}
	return nil
}

// UpdateStatus applies a broker status update. Final statuses are kept.
func (j *Journal) UpdateStatus(ctx context.Context, cycleID string, u domain.OrderStatusUpdate) error {
	query := `
		UPDATE orders
		SET status = ?, filled = ?, remaining = ?, updated_at = ?
		WHERE cycle_id = ? AND order_id = ? AND status NOT IN (` + finalStatuses + `)
	`

	_, err := j.db.ExecContext(ctx, query,
		string(u.Status),
		u.Filled,
		u.Remaining,
		time.Now().Unix(),
		cycleID,
		u.OrderID,
	)
	if err != nil {
		return fmt.Errorf("failed to update order %d: %w", u.OrderID, err)
	}
	return nil
}

// MarkAbandoned flags orders that never reached a final status
func (j *Journal) MarkAbandoned(ctx context.Context, cycleID string, orderIDs []int64) error {
	if len(orderIDs) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(orderIDs)), ",")
	query := `
		UPDATE orders
		SET status = ?, updated_at = ?
		WHERE cycle_id = ? AND order_id IN (` + placeholders + `) AND status NOT IN (` + finalStatuses + `)
	`

	args := make([]interface{}, 0, len(orderIDs)+3)
	args = append(args, string(domain.OrderStatusAbandoned), time.Now().Unix(), cycleID)
	for _, id := range orderIDs {
		args = append(args, id)
	}

	res, err := j.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to mark orders abandoned: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil {
		j.log.Warn().
			Str("cycle_id", cycleID).
			Int64("orders", n).
			Msg("Orders marked abandoned")
	}
	return nil
}

// Prune deletes orders in a final status last updated before cutoff
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM orders WHERE updated_at < ? AND status IN (` + finalStatuses + `)`

	res, err := j.db.ExecContext(ctx, query, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned orders: %w", err)
	}
	return n, nil
}

// ListByCycle returns the orders of one cycle in submission order
func (j *Journal) ListByCycle(ctx context.Context, cycleID string) ([]JournalEntry, error) {
	query := "SELECT " + ordersColumns + " FROM orders WHERE cycle_id = ? ORDER BY submitted_at ASC, order_id ASC"
	return j.query(ctx, query, cycleID)
}

// ListRecent returns the most recent orders across cycles
func (j *Journal) ListRecent(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := "SELECT " + ordersColumns + " FROM orders ORDER BY submitted_at DESC, order_id DESC LIMIT ?"
	return j.query(ctx, query, limit)
}

func (j *Journal) query(ctx context.Context, query string, args ...interface{}) ([]JournalEntry, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	entries := []JournalEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (JournalEntry, error) {
	var e JournalEntry
	var action, status string
	var submittedAt, updatedAt int64

	err := rows.Scan(
		&e.CycleID,
		&e.OrderID,
		&e.Symbol,
		&action,
		&e.Shares,
		&status,
		&e.Filled,
		&e.Remaining,
		&submittedAt,
		&updatedAt,
	)
	if err != nil {
		return e, err
	}

	e.Action = domain.OrderAction(action)
	e.Status = domain.OrderStatus(status)
	e.SubmittedAt = time.Unix(submittedAt, 0).UTC()
	e.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return e, nil
}
