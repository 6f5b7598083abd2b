// Package portfolio accumulates broker positions into a priced, write-once book.
package portfolio

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/aristath/rebalancer/internal/domain"
	"gonum.org/v1/gonum/floats"
)

// ErrBookFinalized is returned when a finalized book is written to or finalized again
var ErrBookFinalized = errors.New("position book already finalized")

// Snapshot is the finalized state of a book
type Snapshot struct {
	Positions        map[string]domain.Position `json:"positions"`
	Symbols          []string                   `json:"symbols"` // Arrival order
	TotalMarketValue float64                    `json:"total_market_value"`
}

// Get returns the position for a symbol
func (s *Snapshot) Get(symbol string) (domain.Position, bool) {
	p, ok := s.Positions[symbol]
	return p, ok
}

// Book holds the current holdings for one reconciliation cycle.
// It is safe for concurrent use; a new cycle needs a new Book.
type Book struct {
	mu        sync.Mutex
	positions map[string]domain.Position
	symbols   []string
	accounts  map[string]struct{}
	finalized bool
}

// NewBook creates an empty book
func NewBook() *Book {
	return &Book{
		positions: make(map[string]domain.Position),
		accounts:  make(map[string]struct{}),
	}
}

// Ingest records one position priced at ingestion time.
// A repeated symbol keeps its arrival slot and takes the latest values.
func (b *Book) Ingest(account, symbol string, quantity int64, price float64) error {
	if symbol == "" {
		return fmt.Errorf("position without symbol")
	}
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return fmt.Errorf("invalid price %v for %s", price, symbol)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.finalized {
		return ErrBookFinalized
	}

	if _, seen := b.positions[symbol]; !seen {
		b.symbols = append(b.symbols, symbol)
	}
	if account != "" {
		b.accounts[account] = struct{}{}
	}
	b.positions[symbol] = domain.Position{
		Symbol:      symbol,
		Quantity:    quantity,
		Price:       price,
		MarketValue: price * float64(quantity),
	}
	return nil
}

// Len returns the number of distinct symbols ingested
func (b *Book) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.symbols)
}

// Accounts returns the number of distinct accounts seen
func (b *Book) Accounts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.accounts)
}

// Finalize totals market value and computes each position's share of it.
// Fails with domain.ErrEmptyPortfolio when the total is zero.
func (b *Book) Finalize() (*Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.finalized {
		return nil, ErrBookFinalized
	}

	values := make([]float64, 0, len(b.symbols))
	for _, sym := range b.symbols {
		values = append(values, b.positions[sym].MarketValue)
	}
	total := floats.Sum(values)
	if total == 0 {
		return nil, domain.ErrEmptyPortfolio
	}

	b.finalized = true

	snap := &Snapshot{
		Positions:        make(map[string]domain.Position, len(b.symbols)),
		Symbols:          append([]string(nil), b.symbols...),
		TotalMarketValue: total,
	}
	for _, sym := range b.symbols {
		p := b.positions[sym]
		p.CurrentPct = p.MarketValue / total * 100
		b.positions[sym] = p
		snap.Positions[sym] = p
	}
	return snap, nil
}
