package portfolio

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/rs/zerolog"
)

// Collector is the single ingestion path from the broker's position stream into a Book.
// Prices are looked up synchronously as each position arrives.
type Collector struct {
	book   *Book
	prices domain.PriceProvider
	log    zerolog.Logger

	done     chan struct{}
	doneOnce sync.Once

	mu  sync.Mutex
	err error
}

// NewCollector creates a collector feeding a fresh book
func NewCollector(prices domain.PriceProvider, log zerolog.Logger) *Collector {
	return &Collector{
		book:   NewBook(),
		prices: prices,
		log:    log.With().Str("component", "position_collector").Logger(),
		done:   make(chan struct{}),
	}
}

// Book returns the underlying book
func (c *Collector) Book() *Book {
	return c.book
}

// HandlePosition prices and ingests one broker position.
// The first failure is kept and reported by Wait; later positions are ignored.
func (c *Collector) HandlePosition(ctx context.Context, p domain.BrokerPosition) {
	if c.failed() {
		return
	}

	quantity := int64(math.Trunc(p.Quantity))
	if float64(quantity) != p.Quantity {
		c.log.Warn().
			Str("symbol", p.Symbol).
			Float64("quantity", p.Quantity).
			Msg("Fractional position truncated to whole shares")
	}

	price := 0.0
	if quantity != 0 {
		var err error
		price, err = c.prices.CurrentPrice(ctx, p.Symbol)
		if err != nil {
			c.fail(&domain.MissingPriceError{Symbol: p.Symbol, Err: err})
			return
		}
		if price <= 0 {
			c.fail(&domain.MissingPriceError{Symbol: p.Symbol})
			return
		}
	}

	if err := c.book.Ingest(p.Account, p.Symbol, quantity, price); err != nil {
		c.fail(fmt.Errorf("failed to ingest position %s: %w", p.Symbol, err))
		return
	}

	c.log.Debug().
		Str("account", p.Account).
		Str("symbol", p.Symbol).
		Int64("quantity", quantity).
		Float64("price", price).
		Msg("Position ingested")
}

// HandleComplete marks the end of the position stream. Safe to call more than once.
func (c *Collector) HandleComplete() {
	c.doneOnce.Do(func() {
		close(c.done)
	})
}

// Wait blocks until the position stream ends, then finalizes the book.
// Returns domain.ErrConnectionTimeout when the stream does not end in time.
func (c *Collector) Wait(ctx context.Context, timeout time.Duration) (*Snapshot, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.done:
	case <-timer.C:
		return nil, fmt.Errorf("positions not received within %s: %w", timeout, domain.ErrConnectionTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	c.mu.Lock()
	err := c.err
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if n := c.book.Accounts(); n > 1 {
		c.log.Warn().Int("accounts", n).Msg("Positions span multiple accounts, treating as one book")
	}

	return c.book.Finalize()
}

func (c *Collector) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
		c.log.Error().Err(err).Msg("Position ingestion failed")
	}
}

func (c *Collector) failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err != nil
}
