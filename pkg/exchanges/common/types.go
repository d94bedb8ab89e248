package common

import (
	"strings"
	"time"
)

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType denotes basic order types. The bot only places market orders.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
)

// OrderStatus normalizes exchange status into a small set.
type OrderStatus string

const (
	StatusNew      OrderStatus = "NEW"
	StatusPartial  OrderStatus = "PARTIAL"
	StatusFilled   OrderStatus = "FILLED"
	StatusCanceled OrderStatus = "CANCELED"
	StatusRejected OrderStatus = "REJECTED"
	StatusExpired  OrderStatus = "EXPIRED"
	StatusUnknown  OrderStatus = "UNKNOWN"
)

// OrderRequest captures an order intent to be sent to an exchange.
type OrderRequest struct {
	Symbol   string
	Side     Side
	Type     OrderType
	Qty      float64
	ClientID string // optional client order id
}

// OrderResult returns the exchange ack.
type OrderResult struct {
	ExchangeOrderID string
	Status          OrderStatus
	ClientID        string
	ExecutedQty     float64
	QuoteQty        float64 // cumulative quote spent or received
	TransactTime    time.Time
}

// AvgPrice derives the fill price from cumulative quote and base quantities.
func (r OrderResult) AvgPrice() float64 {
	if r.ExecutedQty <= 0 {
		return 0
	}
	return r.QuoteQty / r.ExecutedQty
}

// Balance is an asset balance split into free and locked amounts.
type Balance struct {
	Asset  string
	Free   float64
	Locked float64
}

// TradingRules are the per-symbol exchange filters relevant to market orders.
type TradingRules struct {
	Symbol      string
	BaseAsset   string
	QuoteAsset  string
	MinQty      float64
	MaxQty      float64
	StepSize    float64
	MinNotional float64
}

var knownQuotes = []string{"USDT", "USDC", "BUSD", "FDUSD", "USD", "BTC", "ETH", "BNB"}

// SplitSymbol splits a concatenated pair such as BTCUSDT into base and quote assets.
func SplitSymbol(symbol string) (base, quote string) {
	s := strings.ToUpper(symbol)
	for _, q := range knownQuotes {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return s[:len(s)-len(q)], q
		}
	}
	return s, ""
}
