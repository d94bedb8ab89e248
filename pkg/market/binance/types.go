package market

// Kline represents a single candlestick with the Binance fields the bot uses.
type Kline struct {
	Symbol      string
	OpenTime    int64 // ms
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64 // base asset volume
	CloseTime   int64   // ms
	QuoteVolume float64
	Trades      int
	Closed      bool // false while the bucket is still forming (stream only)
}

// Depth is an order book snapshot, best levels first.
type Depth struct {
	LastUpdateID int64
	Bids         [][2]float64 // [price, qty]
	Asks         [][2]float64 // [price, qty]
}

// SymbolInfo carries the exchangeInfo filters relevant to market orders.
type SymbolInfo struct {
	Symbol      string
	Status      string
	BaseAsset   string
	QuoteAsset  string
	MinQty      float64
	MaxQty      float64
	StepSize    float64
	MinNotional float64
}
