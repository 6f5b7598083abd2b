package rebalancing

import (
	"context"
	"fmt"
	"math"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/portfolio"
)

// Diff reconciles a target allocation against current positions.
//
// Targets are visited in slice order and produce at most one order each.
// The value gap for a symbol is total*pct/100 minus its current market value,
// converted to whole shares by truncation toward zero. Held symbols are priced
// at their held price; anything else, including held positions without a
// price, is priced through prices. A symbol whose gap is zero needs no price.
//
// Held symbols absent from target are left alone; see LiquidationOrders.
func Diff(
	ctx context.Context,
	target domain.TargetAllocation,
	positions map[string]domain.Position,
	totalMarketValue float64,
	prices domain.PriceProvider,
) ([]domain.Order, error) {
	if !(totalMarketValue > 0) || math.IsInf(totalMarketValue, 0) {
		return nil, fmt.Errorf("cannot reconcile against total market value %v: %w", totalMarketValue, domain.ErrEmptyPortfolio)
	}

	orders := make([]domain.Order, 0, len(target))
	seen := make(map[string]struct{}, len(target))

	for _, w := range target {
		if _, dup := seen[w.Symbol]; dup {
			continue
		}
		seen[w.Symbol] = struct{}{}

		desired := totalMarketValue * w.Percentage / 100
		pos, held := positions[w.Symbol]
		current := 0.0
		if held {
			current = pos.MarketValue
		}

		gap := desired - current
		if gap == 0 {
			continue
		}

		price, err := priceFor(ctx, w.Symbol, pos, held, prices)
		if err != nil {
			return nil, err
		}

		shares := int64(math.Trunc(gap / price))
		if order, ok := domain.NewOrderFromDelta(w.Symbol, shares); ok {
			orders = append(orders, order)
		}
	}

	return orders, nil
}

func priceFor(ctx context.Context, symbol string, pos domain.Position, held bool, prices domain.PriceProvider) (float64, error) {
	if held && pos.Price > 0 {
		return pos.Price, nil
	}
	if prices == nil {
		return 0, &domain.MissingPriceError{Symbol: symbol}
	}

	price, err := prices.CurrentPrice(ctx, symbol)
	if err != nil {
		return 0, &domain.MissingPriceError{Symbol: symbol, Err: err}
	}
	if !(price > 0) || math.IsInf(price, 0) {
		return 0, &domain.MissingPriceError{Symbol: symbol}
	}
	return price, nil
}

// LiquidationOrders flattens every held position whose symbol left the target:
// longs are sold, shorts are bought back. Orders follow the snapshot's arrival order.
func LiquidationOrders(target domain.TargetAllocation, snapshot *portfolio.Snapshot) []domain.Order {
	if snapshot == nil {
		return nil
	}

	targeted := make(map[string]struct{}, len(target))
	for _, w := range target {
		targeted[w.Symbol] = struct{}{}
	}

	var orders []domain.Order
	for _, sym := range snapshot.Symbols {
		if _, ok := targeted[sym]; ok {
			continue
		}
		if order, ok := domain.NewOrderFromDelta(sym, -snapshot.Positions[sym].Quantity); ok {
			orders = append(orders, order)
		}
	}
	return orders
}
