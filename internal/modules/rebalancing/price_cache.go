package rebalancing

import (
	"context"
	"sync"

	"github.com/alitto/pond"
	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/metrics"
	"github.com/rs/zerolog"
)

type priceResult struct {
	price float64
	err   error
}

// PriceCache is a read-through cache over a PriceProvider for one cycle.
// Failures are cached too, so a symbol is looked up at most once per cycle.
type PriceCache struct {
	provider domain.PriceProvider
	pool     *pond.WorkerPool
	recorder *metrics.Recorder
	log      zerolog.Logger

	mu     sync.Mutex
	prices map[string]priceResult
}

// NewPriceCache creates a cache that prefetches on pool
func NewPriceCache(provider domain.PriceProvider, pool *pond.WorkerPool, recorder *metrics.Recorder, log zerolog.Logger) *PriceCache {
	return &PriceCache{
		provider: provider,
		pool:     pool,
		recorder: recorder,
		log:      log.With().Str("component", "price_cache").Logger(),
		prices:   make(map[string]priceResult),
	}
}

// CurrentPrice implements domain.PriceProvider
func (c *PriceCache) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	c.mu.Lock()
	res, ok := c.prices[symbol]
	c.mu.Unlock()
	if ok {
		c.recorder.RecordPriceLookup("hit")
		return res.price, res.err
	}

	price, err := c.provider.CurrentPrice(ctx, symbol)
	if err != nil {
		c.recorder.RecordPriceLookup("error")
	} else {
		c.recorder.RecordPriceLookup("miss")
	}

	c.mu.Lock()
	// A concurrent lookup may have landed first; keep it
	if prior, ok := c.prices[symbol]; ok {
		c.mu.Unlock()
		return prior.price, prior.err
	}
	c.prices[symbol] = priceResult{price: price, err: err}
	c.mu.Unlock()

	return price, err
}

// Prefetch looks up every symbol concurrently on the worker pool and waits for all of them.
// Failures are cached for the caller to hit, not returned here.
func (c *PriceCache) Prefetch(ctx context.Context, symbols []string) {
	if len(symbols) == 0 {
		return
	}

	group := c.pool.Group()
	for _, sym := range symbols {
		sym := sym
		group.Submit(func() {
			if _, err := c.CurrentPrice(ctx, sym); err != nil {
				c.log.Warn().Err(err).Str("symbol", sym).Msg("Price prefetch failed")
			}
		})
	}
	group.Wait()
}

// Len returns the number of cached symbols
func (c *PriceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.prices)
}
