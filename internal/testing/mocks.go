package testing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aristath/rebalancer/internal/domain"
)

// MockGateway is an in-memory BrokerGateway.
// Positions and order statuses are delivered from separate goroutines,
// the way a real session's read loop delivers them.
type MockGateway struct {
	mu sync.Mutex

	positions       []domain.BrokerPosition
	skipPositionEnd bool
	connectErr      error
	streamErr       error
	submitErr       error
	submitErrAt     int
	autoStatus      func(orderID int64, order domain.Order) []domain.OrderStatusUpdate

	nextID      int64
	submitted   []domain.Order
	handler     func(domain.OrderStatusUpdate)
	connects    int
	disconnects int
}

// NewMockGateway creates a gateway reporting the given positions
func NewMockGateway(positions ...domain.BrokerPosition) *MockGateway {
	return &MockGateway{
		positions:   positions,
		submitErrAt: -1,
		nextID:      100,
	}
}

// FillAll makes every submitted order report Submitted then Filled
func (m *MockGateway) FillAll() *MockGateway {
	return m.WithAutoStatus(func(orderID int64, order domain.Order) []domain.OrderStatusUpdate {
		return []domain.OrderStatusUpdate{
			{OrderID: orderID, Status: domain.OrderStatusSubmitted, Remaining: float64(order.Shares)},
			{OrderID: orderID, Status: domain.OrderStatusFilled, Filled: float64(order.Shares)},
		}
	})
}

// WithAutoStatus sets the statuses reported after each submission
func (m *MockGateway) WithAutoStatus(fn func(orderID int64, order domain.Order) []domain.OrderStatusUpdate) *MockGateway {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoStatus = fn
	return m
}

// WithoutPositionEnd never signals the end of the position stream
func (m *MockGateway) WithoutPositionEnd() *MockGateway {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipPositionEnd = true
	return m
}

// WithConnectError makes Connect fail
func (m *MockGateway) WithConnectError(err error) *MockGateway {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectErr = err
	return m
}

// WithStreamError makes StreamPositions fail
func (m *MockGateway) WithStreamError(err error) *MockGateway {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamErr = err
	return m
}

// WithSubmitErrorAt makes the n-th submission (zero based) fail
func (m *MockGateway) WithSubmitErrorAt(n int, err error) *MockGateway {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitErrAt = n
	m.submitErr = err
	return m
}

// Connect implements domain.BrokerGateway
func (m *MockGateway) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
	return m.connectErr
}

// Disconnect implements domain.BrokerGateway
func (m *MockGateway) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects++
	return nil
}

// StreamPositions implements domain.BrokerGateway
func (m *MockGateway) StreamPositions(ctx context.Context, onPosition func(domain.BrokerPosition), onComplete func()) error {
	m.mu.Lock()
	positions := append([]domain.BrokerPosition(nil), m.positions...)
	skipEnd := m.skipPositionEnd
	err := m.streamErr
	m.mu.Unlock()

	if err != nil {
		return err
	}

	go func() {
		for _, p := range positions {
			onPosition(p)
		}
		if !skipEnd {
			onComplete()
		}
	}()
	return nil
}

// SubmitOrder implements domain.BrokerGateway
func (m *MockGateway) SubmitOrder(ctx context.Context, order domain.Order) (int64, error) {
	m.mu.Lock()
	if m.submitErrAt >= 0 && len(m.submitted) == m.submitErrAt {
		err := m.submitErr
		if err == nil {
			err = errors.New("submit failed")
		}
		m.mu.Unlock()
		return 0, fmt.Errorf("mock gateway: %w", err)
	}

	m.nextID++
	id := m.nextID
	m.submitted = append(m.submitted, order)
	auto := m.autoStatus
	m.mu.Unlock()

	if auto != nil {
		updates := auto(id, order)
		go func() {
			for _, u := range updates {
				m.Emit(u)
			}
		}()
	}
	return id, nil
}

// OnOrderStatus implements domain.BrokerGateway
func (m *MockGateway) OnOrderStatus(handler func(domain.OrderStatusUpdate)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// Emit delivers a status update to the registered handler
func (m *MockGateway) Emit(u domain.OrderStatusUpdate) {
	m.mu.Lock()
	handler := m.handler
	m.mu.Unlock()

	if handler != nil {
		handler(u)
	}
}

// Submitted returns the orders submitted so far
func (m *MockGateway) Submitted() []domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Order(nil), m.submitted...)
}

// Connects returns how many times Connect was called
func (m *MockGateway) Connects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

// Disconnects returns how many times Disconnect was called
func (m *MockGateway) Disconnects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnects
}

// MockPriceProvider serves prices from a map and counts lookups
type MockPriceProvider struct {
	mu     sync.Mutex
	prices map[string]float64
	errs   map[string]error
	calls  map[string]int
}

// NewMockPriceProvider creates a provider with fixed prices
func NewMockPriceProvider(prices map[string]float64) *MockPriceProvider {
	if prices == nil {
		prices = map[string]float64{}
	}
	return &MockPriceProvider{
		prices: prices,
		errs:   map[string]error{},
		calls:  map[string]int{},
	}
}

// SetError makes lookups for symbol fail
func (m *MockPriceProvider) SetError(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[symbol] = err
}

// CurrentPrice implements domain.PriceProvider
func (m *MockPriceProvider) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[symbol]++

	if err, ok := m.errs[symbol]; ok {
		return 0, err
	}
	price, ok := m.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no price for %s: %w", symbol, domain.ErrPriceUnavailable)
	}
	return price, nil
}

// Calls returns how many lookups were made for symbol
func (m *MockPriceProvider) Calls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[symbol]
}

// MockRatingsSource returns a fixed ratings snapshot
type MockRatingsSource struct {
	Entries []domain.RatingEntry
	Err     error
}

// Fetch implements domain.RatingsSource
func (m *MockRatingsSource) Fetch(ctx context.Context) ([]domain.RatingEntry, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Entries, nil
}

// MockReportSink records written allocations
type MockReportSink struct {
	mu      sync.Mutex
	written []domain.TargetAllocation
	Err     error
}

// Write implements domain.ReportSink
func (m *MockReportSink) Write(target domain.TargetAllocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.written = append(m.written, target)
	return nil
}

// Written returns every allocation written so far
func (m *MockReportSink) Written() []domain.TargetAllocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.TargetAllocation(nil), m.written...)
}
