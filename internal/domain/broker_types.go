package domain

// Broker-agnostic types delivered by a BrokerGateway

// BrokerPosition is one raw position row as reported by the broker
type BrokerPosition struct {
	Account  string  // Account the position is held in
	Symbol   string  // Security symbol
	Quantity float64 // Position size (negative for shorts)
	AvgCost  float64 // Average cost, informational only
}

// BrokerContract describes how an order is routed
type BrokerContract struct {
	Symbol   string
	SecType  string // "STK"
	Exchange string // "SMART"
	Currency string // "USD"
}

// NewStockContract returns the default routing used for all orders: US stock via SMART
func NewStockContract(symbol string) BrokerContract {
	return BrokerContract{
		Symbol:   symbol,
		SecType:  "STK",
		Exchange: "SMART",
		Currency: "USD",
	}
}
