// Package domain provides core domain models and types.
package domain

// RatingEntry is one normalized record from the ratings feed
type RatingEntry struct {
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	RatingLabel string `json:"rating_label"`
	RatingScore int    `json:"rating_score"`
}

// ScoredSymbol is a symbol that passed the watchlist filter, with the score
// that drives its allocation weight
type ScoredSymbol struct {
	Symbol string `json:"symbol"`
	Score  int    `json:"score"`
}

// TargetWeight is the desired share of total portfolio value for one symbol, in percent
type TargetWeight struct {
	Symbol     string  `json:"symbol"`
	Percentage float64 `json:"percentage"`
}

// TargetAllocation is an ordered set of target weights.
// Order is significant: reconciliation walks it front to back.
type TargetAllocation []TargetWeight

// Sum returns the total of all percentages
func (t TargetAllocation) Sum() float64 {
	total := 0.0
	for _, w := range t {
		total += w.Percentage
	}
	return total
}

// Symbols returns the symbols in allocation order
func (t TargetAllocation) Symbols() []string {
	symbols := make([]string, 0, len(t))
	for _, w := range t {
		symbols = append(symbols, w.Symbol)
	}
	return symbols
}

// Map returns the allocation as symbol -> percentage
func (t TargetAllocation) Map() map[string]float64 {
	m := make(map[string]float64, len(t))
	for _, w := range t {
		m[w.Symbol] = w.Percentage
	}
	return m
}

// Position represents a held position enriched with live price and allocation
type Position struct {
	Symbol      string  `json:"symbol"`
	Quantity    int64   `json:"quantity"`
	Price       float64 `json:"price"`
	MarketValue float64 `json:"market_value"`
	CurrentPct  float64 `json:"current_pct"`
}

// OrderAction is the side of an order
type OrderAction string

const (
	OrderActionBuy  OrderAction = "BUY"
	OrderActionSell OrderAction = "SELL"
)

// Order is a signed share-quantity instruction produced by reconciliation
type Order struct {
	Symbol string      `json:"symbol"`
	Action OrderAction `json:"action"`
	Shares int64       `json:"shares"`
}

// NewOrderFromDelta builds an order from a signed share delta.
// Returns false when the delta is zero.
func NewOrderFromDelta(symbol string, delta int64) (Order, bool) {
	switch {
	case delta > 0:
		return Order{Symbol: symbol, Action: OrderActionBuy, Shares: delta}, true
	case delta < 0:
		return Order{Symbol: symbol, Action: OrderActionSell, Shares: -delta}, true
	default:
		return Order{}, false
	}
}

// OrderStatus is the broker-reported state of an order
type OrderStatus string

const (
	OrderStatusPendingSubmit OrderStatus = "PendingSubmit"
	OrderStatusPreSubmitted  OrderStatus = "PreSubmitted"
	OrderStatusSubmitted     OrderStatus = "Submitted"
	OrderStatusFilled        OrderStatus = "Filled"
	OrderStatusCancelled     OrderStatus = "Cancelled"
	OrderStatusApiCancelled  OrderStatus = "ApiCancelled"
	OrderStatusInactive      OrderStatus = "Inactive"
	// OrderStatusAbandoned is local only: the wait timed out before a terminal status arrived
	OrderStatusAbandoned OrderStatus = "Abandoned"
)

// IsTerminal reports whether no further fill activity is expected after this status
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusApiCancelled, OrderStatusInactive:
		return true
	}
	return false
}

// OrderStatusUpdate is an out-of-band status notification for a submitted order
type OrderStatusUpdate struct {
	OrderID   int64       `json:"order_id"`
	Status    OrderStatus `json:"status"`
	Filled    float64     `json:"filled"`
	Remaining float64     `json:"remaining"`
}
