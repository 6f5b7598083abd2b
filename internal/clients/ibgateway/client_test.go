package ibgateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

// fakeBridge is an in-process stand-in for the TWS websocket bridge
type fakeBridge struct {
	t           *testing.T
	nextValidID int64
	silent      bool
	positions   []positionPayload

	mu        sync.Mutex
	placed    []placeOrderPayload
	cancelled bool
}

func (b *fakeBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	if !b.silent {
		b.write(ctx, conn, eventNextValidID, nextValidIDPayload{OrderID: b.nextValidID})
	}

	for {
		_, message, err := conn.Read(ctx)
		if err != nil {
			return
		}
		event, payload, err := decodeFrame(message)
		require.NoError(b.t, err)

		switch event {
		case eventReqPositions:
			b.write(ctx, conn, eventError, errorPayload{ReqID: -1, ErrorCode: 2104, ErrorString: "Market data farm connection is OK"})
			for _, p := range b.positions {
				b.write(ctx, conn, eventPosition, p)
			}
			b.write(ctx, conn, eventPositionEnd, nil)
		case eventCancelPositions:
			b.mu.Lock()
			b.cancelled = true
			b.mu.Unlock()
		case eventPlaceOrder:
			var p placeOrderPayload
			require.NoError(b.t, json.Unmarshal(payload, &p))
			b.mu.Lock()
			b.placed = append(b.placed, p)
			b.mu.Unlock()
			// A fill changes the holding, which TWS reports as a fresh position update
			b.write(ctx, conn, eventPosition, positionPayload{Account: "DU1", Contract: contractPayload{Symbol: p.Contract.Symbol, SecType: "STK"}, Position: 1})
			b.write(ctx, conn, eventOrderStatus, orderStatusPayload{OrderID: p.OrderID, Status: "Submitted", Remaining: float64(p.Order.TotalQuantity)})
			b.write(ctx, conn, eventOrderStatus, orderStatusPayload{OrderID: p.OrderID, Status: "Filled", Filled: float64(p.Order.TotalQuantity)})
		}
	}
}

func (b *fakeBridge) write(ctx context.Context, conn *websocket.Conn, event string, payload interface{}) {
	data, err := encodeFrame(event, payload)
	require.NoError(b.t, err)
	_ = conn.Write(ctx, websocket.MessageText, data)
}

func (b *fakeBridge) Cancelled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelled
}

func (b *fakeBridge) Placed() []placeOrderPayload {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]placeOrderPayload(nil), b.placed...)
}

func startBridge(t *testing.T, bridge *fakeBridge) string {
	bridge.t = t
	server := httptest.NewServer(bridge)
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func TestClient_PositionsAndOrders(t *testing.T) {
	bridge := &fakeBridge{
		nextValidID: 42,
		positions: []positionPayload{
			{Account: "DU1", Contract: contractPayload{Symbol: "AAPL", SecType: "STK"}, Position: 10, AvgCost: 150},
			{Account: "DU1", Contract: contractPayload{Symbol: "MSFT", SecType: "STK"}, Position: 5, AvgCost: 300},
		},
	}
	client := NewClient(startBridge(t, bridge), time.Second, testLogger())

	ctx := context.Background()
	require.NoError(t, client.Connect(ctx))
	defer client.Disconnect()

	var mu sync.Mutex
	var positions []domain.BrokerPosition
	var statuses []domain.OrderStatusUpdate
	ended := make(chan struct{})
	filled := make(chan struct{}, 2)

	client.OnOrderStatus(func(u domain.OrderStatusUpdate) {
		mu.Lock()
		statuses = append(statuses, u)
		mu.Unlock()
		if u.Status == domain.OrderStatusFilled {
			filled <- struct{}{}
		}
	})

	require.NoError(t, client.StreamPositions(ctx,
		func(p domain.BrokerPosition) {
			mu.Lock()
			positions = append(positions, p)
			mu.Unlock()
		},
		func() { close(ended) },
	))

	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("positionEnd not delivered")
	}

	mu.Lock()
	assert.Equal(t, []domain.BrokerPosition{
		{Account: "DU1", Symbol: "AAPL", Quantity: 10, AvgCost: 150},
		{Account: "DU1", Symbol: "MSFT", Quantity: 5, AvgCost: 300},
	}, positions)
	mu.Unlock()

	id1, err := client.SubmitOrder(ctx, domain.Order{Symbol: "AAPL", Action: domain.OrderActionSell, Shares: 3})
	require.NoError(t, err)
	id2, err := client.SubmitOrder(ctx, domain.Order{Symbol: "GOOG", Action: domain.OrderActionBuy, Shares: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id1)
	assert.Equal(t, int64(43), id2)

	for i := 0; i < 2; i++ {
		select {
		case <-filled:
		case <-time.After(2 * time.Second):
			t.Fatal("fill not delivered")
		}
	}

	placed := bridge.Placed()
	require.Len(t, placed, 2)
	assert.Equal(t, contractPayload{Symbol: "AAPL", SecType: "STK", Exchange: "SMART", Currency: "USD"}, placed[0].Contract)
	assert.Equal(t, orderPayload{Action: "SELL", TotalQuantity: 3, OrderType: "MKT"}, placed[0].Order)

	mu.Lock()
	assert.Len(t, statuses, 4)
	assert.Len(t, positions, 2, "updates after positionEnd are not delivered")
	mu.Unlock()

	assert.Eventually(t, bridge.Cancelled, 2*time.Second, 10*time.Millisecond)
}

func TestClient_HandshakeTimeout(t *testing.T) {
	client := NewClient(startBridge(t, &fakeBridge{silent: true}), 50*time.Millisecond, testLogger())

	err := client.Connect(context.Background())
	assert.ErrorIs(t, err, domain.ErrConnectionTimeout)

	_, err = client.SubmitOrder(context.Background(), domain.Order{Symbol: "A", Action: domain.OrderActionBuy, Shares: 1})
	assert.Error(t, err)
}

func TestClient_DisconnectIsIdempotent(t *testing.T) {
	client := NewClient(startBridge(t, &fakeBridge{nextValidID: 1}), time.Second, testLogger())

	assert.NoError(t, client.Disconnect())
	require.NoError(t, client.Connect(context.Background()))
	assert.NoError(t, client.Disconnect())
	assert.NoError(t, client.Disconnect())

	// A new cycle can reconnect
	require.NoError(t, client.Connect(context.Background()))
	assert.NoError(t, client.Disconnect())
}

func TestClient_DialFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	server.Close()

	err := NewClient(url, time.Second, testLogger()).Connect(context.Background())
	assert.Error(t, err)
}

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		message string
		event   string
		wantErr bool
	}{
		{"event with payload", `["orderStatus",{"orderId":1}]`, "orderStatus", false},
		{"event without payload", `["positionEnd"]`, "positionEnd", false},
		{"not an array", `{"event":"x"}`, "", true},
		{"empty array", `[]`, "", true},
		{"non-string event", `[1,{}]`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, _, err := decodeFrame([]byte(tt.message))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.event, event)
		})
	}
}

func TestInformational(t *testing.T) {
	assert.True(t, informational(2104))
	assert.True(t, informational(2158))
	assert.False(t, informational(201))
	assert.False(t, informational(1100))
}
