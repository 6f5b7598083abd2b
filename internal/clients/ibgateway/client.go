// Package ibgateway provides a BrokerGateway over the TWS websocket bridge.
//
// The bridge relays the TWS API as JSON frames of the form ["event", payload].
// Incoming: nextValidId, position, positionEnd, orderStatus, error.
// Outgoing: reqPositions, cancelPositions, placeOrder.
package ibgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	writeWait             = 10 * time.Second
	defaultConnectTimeout = 5 * time.Second
)

// Client implements domain.BrokerGateway
type Client struct {
	url            string
	connectTimeout time.Duration
	log            zerolog.Logger

	writeMu sync.Mutex

	mu            sync.Mutex
	conn          *websocket.Conn
	cancelFunc    context.CancelFunc
	readDone      chan struct{}
	handshake     chan struct{}
	nextOrderID   int64
	onPosition    func(domain.BrokerPosition)
	onPositionEnd func()
	statusHandler func(domain.OrderStatusUpdate)
}

// NewClient creates a gateway client for the bridge at url (ws://host:port/path)
func NewClient(url string, connectTimeout time.Duration, log zerolog.Logger) *Client {
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	return &Client{
		url:            url,
		connectTimeout: connectTimeout,
		log:            log.With().Str("client", "ibgateway").Logger(),
	}
}

// Connect dials the bridge and waits for the nextValidId handshake.
// Fails with domain.ErrConnectionTimeout when the handshake does not arrive in time.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	c.log.Info().Str("url", c.url).Msg("Connecting to broker gateway")

	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("failed to dial %s: %w", c.url, domain.ErrConnectionTimeout)
		}
		return fmt.Errorf("failed to dial %s: %w", c.url, err)
	}
	conn.SetReadLimit(1 << 20)

	connCtx, connCancel := context.WithCancel(context.Background())
	handshake := make(chan struct{})
	readDone := make(chan struct{})

	c.mu.Lock()
	c.conn = conn
	c.cancelFunc = connCancel
	c.readDone = readDone
	c.handshake = handshake
	c.nextOrderID = 0
	c.mu.Unlock()

	go c.readLoop(connCtx, conn, readDone)

	select {
	case <-handshake:
		c.log.Info().Msg("Connected to broker gateway")
		return nil
	case <-ctx.Done():
		_ = c.Disconnect()
		return fmt.Errorf("no nextValidId within %s: %w", c.connectTimeout, domain.ErrConnectionTimeout)
	}
}

// Disconnect closes the session. Safe to call more than once.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	cancel := c.cancelFunc
	readDone := c.readDone
	c.conn = nil
	c.cancelFunc = nil
	c.readDone = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.log.Info().Msg("Disconnecting from broker gateway")

	// The read loop must keep running for the close handshake to complete
	err := conn.Close(websocket.StatusNormalClosure, "")
	cancel()
	<-readDone

	if err != nil && websocket.CloseStatus(err) == -1 {
		c.log.Debug().Err(err).Msg("Close handshake did not complete")
	}
	return nil
}

// StreamPositions implements domain.BrokerGateway.
// The subscription ends at positionEnd: later position updates are not delivered.
func (c *Client) StreamPositions(ctx context.Context, onPosition func(domain.BrokerPosition), onComplete func()) error {
	c.mu.Lock()
	c.onPosition = onPosition
	c.onPositionEnd = onComplete
	c.mu.Unlock()

	if err := c.send(ctx, eventReqPositions, nil); err != nil {
		return fmt.Errorf("failed to request positions: %w", err)
	}
	return nil
}

// SubmitOrder implements domain.BrokerGateway.
// Orders are routed as market orders on the default stock contract.
func (c *Client) SubmitOrder(ctx context.Context, order domain.Order) (int64, error) {
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return 0, fmt.Errorf("not connected to broker gateway")
	}
	orderID := c.nextOrderID
	c.nextOrderID++
	c.mu.Unlock()

	contract := domain.NewStockContract(order.Symbol)
	payload := placeOrderPayload{
		OrderID: orderID,
		Contract: contractPayload{
			Symbol:   contract.Symbol,
			SecType:  contract.SecType,
			Exchange: contract.Exchange,
			Currency: contract.Currency,
		},
		Order: orderPayload{
			Action:        string(order.Action),
			TotalQuantity: order.Shares,
			OrderType:     orderTypeMarket,
		},
	}

	if err := c.send(ctx, eventPlaceOrder, payload); err != nil {
		return 0, fmt.Errorf("failed to place order %d: %w", orderID, err)
	}
	return orderID, nil
}

// OnOrderStatus implements domain.BrokerGateway
func (c *Client) OnOrderStatus(handler func(domain.OrderStatusUpdate)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusHandler = handler
}

func (c *Client) send(ctx context.Context, event string, payload interface{}) error {
	data, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected to broker gateway")
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("failed to send %s: %w", event, err)
	}
	return nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		msgType, message, err := conn.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			switch {
			case closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway:
				c.log.Debug().Int("status", int(closeStatus)).Msg("Gateway connection closed")
			case ctx.Err() != nil:
				c.log.Debug().Msg("Read loop cancelled")
			default:
				c.log.Error().Err(err).Msg("Unexpected gateway read error")
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		if err := c.handleMessage(message); err != nil {
			c.log.Error().Err(err).Str("message", string(message)).Msg("Failed to handle gateway message")
		}
	}
}

func (c *Client) handleMessage(message []byte) error {
	event, payload, err := decodeFrame(message)
	if err != nil {
		return err
	}

	switch event {
	case eventNextValidID:
		var p nextValidIDPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("failed to parse nextValidId: %w", err)
		}
		c.mu.Lock()
		c.nextOrderID = p.OrderID
		if c.handshake != nil {
			close(c.handshake)
			c.handshake = nil
		}
		c.mu.Unlock()
		c.log.Debug().Int64("order_id", p.OrderID).Msg("Next valid order id")

	case eventPosition:
		var p positionPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("failed to parse position: %w", err)
		}
		c.mu.Lock()
		handler := c.onPosition
		c.mu.Unlock()
		if handler != nil {
			handler(domain.BrokerPosition{
				Account:  p.Account,
				Symbol:   p.Contract.Symbol,
				Quantity: p.Position,
				AvgCost:  p.AvgCost,
			})
		}

	case eventPositionEnd:
		c.mu.Lock()
		handler := c.onPositionEnd
		c.onPosition = nil
		c.onPositionEnd = nil
		c.mu.Unlock()
		if handler != nil {
			handler()
		}
		// TWS keeps pushing updates as orders fill unless told to stop
		if err := c.send(context.Background(), eventCancelPositions, nil); err != nil {
			c.log.Debug().Err(err).Msg("Failed to cancel position updates")
		}

	case eventOrderStatus:
		var p orderStatusPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("failed to parse orderStatus: %w", err)
		}
		c.mu.Lock()
		handler := c.statusHandler
		c.mu.Unlock()
		if handler != nil {
			handler(domain.OrderStatusUpdate{
				OrderID:   p.OrderID,
				Status:    domain.OrderStatus(p.Status),
				Filled:    p.Filled,
				Remaining: p.Remaining,
			})
		}

	case eventError:
		var p errorPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("failed to parse error: %w", err)
		}
		ev := c.log.Warn()
		if informational(p.ErrorCode) {
			ev = c.log.Debug()
		}
		ev.Int64("req_id", p.ReqID).Int("code", p.ErrorCode).Str("message", p.ErrorString).Msg("Gateway error")

	default:
		c.log.Debug().Str("event", event).Msg("Ignoring gateway event")
	}
	return nil
}
