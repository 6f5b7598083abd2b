package domain

import "context"

// RatingsSource fetches the current ratings snapshot.
// Fails with ErrAuthentication or ErrSourceUnavailable.
type RatingsSource interface {
	Fetch(ctx context.Context) ([]RatingEntry, error)
}

// PriceProvider returns the current price for a symbol.
// Implementations may return the last close when no live price exists.
// Fails with ErrPriceUnavailable.
type PriceProvider interface {
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// PriceProviderFunc adapts a function to PriceProvider
type PriceProviderFunc func(ctx context.Context, symbol string) (float64, error)

// CurrentPrice implements PriceProvider
func (f PriceProviderFunc) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	return f(ctx, symbol)
}

// BrokerGateway abstracts the broker session.
// Position and order status callbacks are delivered asynchronously on the
// gateway's own goroutine.
type BrokerGateway interface {
	// Connect opens the session and completes the handshake
	Connect(ctx context.Context) error

	// Disconnect closes the session. Safe to call more than once.
	Disconnect() error

	// StreamPositions requests all positions. onPosition is called once per
	// position, onComplete once after the last one.
	StreamPositions(ctx context.Context, onPosition func(BrokerPosition), onComplete func()) error

	// SubmitOrder sends an order one-way and returns its order id.
	// Completion is only observable through OnOrderStatus.
	SubmitOrder(ctx context.Context, order Order) (int64, error)

	// OnOrderStatus registers the order status callback
	OnOrderStatus(handler func(OrderStatusUpdate))
}

// ReportSink persists the rebalance plan for import elsewhere
type ReportSink interface {
	Write(target TargetAllocation) error
}
