package ibgateway

import (
	"encoding/json"
	"fmt"
)

// Bridge events. Every frame is a JSON array: ["event", payload].
const (
	eventNextValidID     = "nextValidId"
	eventPosition        = "position"
	eventPositionEnd     = "positionEnd"
	eventOrderStatus     = "orderStatus"
	eventError           = "error"
	eventReqPositions    = "reqPositions"
	eventCancelPositions = "cancelPositions"
	eventPlaceOrder      = "placeOrder"
)

const orderTypeMarket = "MKT"

type nextValidIDPayload struct {
	OrderID int64 `json:"orderId"`
}

type contractPayload struct {
	Symbol   string `json:"symbol"`
	SecType  string `json:"secType"`
	Exchange string `json:"exchange"`
	Currency string `json:"currency"`
}

type positionPayload struct {
	Account  string          `json:"account"`
	Contract contractPayload `json:"contract"`
	Position float64         `json:"position"`
	AvgCost  float64         `json:"avgCost"`
}

type orderStatusPayload struct {
	OrderID      int64   `json:"orderId"`
	Status       string  `json:"status"`
	Filled       float64 `json:"filled"`
	Remaining    float64 `json:"remaining"`
	AvgFillPrice float64 `json:"avgFillPrice"`
}

type errorPayload struct {
	ReqID       int64  `json:"reqId"`
	ErrorCode   int    `json:"errorCode"`
	ErrorString string `json:"errorString"`
}

type orderPayload struct {
	Action        string `json:"action"`
	TotalQuantity int64  `json:"totalQuantity"`
	OrderType     string `json:"orderType"`
}

type placeOrderPayload struct {
	OrderID  int64           `json:"orderId"`
	Contract contractPayload `json:"contract"`
	Order    orderPayload    `json:"order"`
}

func encodeFrame(event string, payload interface{}) ([]byte, error) {
	if payload == nil {
		payload = struct{}{}
	}
	data, err := json.Marshal([]interface{}{event, payload})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s frame: %w", event, err)
	}
	return data, nil
}

func decodeFrame(message []byte) (string, json.RawMessage, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(message, &raw); err != nil {
		return "", nil, fmt.Errorf("failed to parse message array: %w", err)
	}
	if len(raw) < 1 {
		return "", nil, fmt.Errorf("empty message array")
	}

	var event string
	if err := json.Unmarshal(raw[0], &event); err != nil {
		return "", nil, fmt.Errorf("failed to parse event name: %w", err)
	}

	var payload json.RawMessage
	if len(raw) > 1 {
		payload = raw[1]
	}
	return event, payload, nil
}

// informational reports whether an error code is a status notice rather than a failure
// (market data farm and HMDS connection messages are in the 2100 range).
func informational(code int) bool {
	return code >= 2100 && code < 2200
}
