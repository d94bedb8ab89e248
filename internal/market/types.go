package market

import (
	"context"
	"time"
)

// Candle is OHLCV data for one completed time bucket.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// CandleUpdate is one stream tick. Closed marks the final update of a bucket.
type CandleUpdate struct {
	Symbol string
	Candle Candle
	Closed bool
}

// Level is one order book price level.
type Level struct {
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
}

// Snapshot is an immutable view of one pair's recent candles and price.
// Candles are sorted ascending by OpenTime with no duplicates.
type Snapshot struct {
	Symbol     string    `json:"symbol"`
	LastPrice  float64   `json:"last_price"`
	Candles    []Candle  `json:"candles"`
	LastUpdate time.Time `json:"last_update"`
}

// Closes returns the close series.
func (s *Snapshot) Closes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Close
	}
	return out
}

// Stale reports whether the snapshot is older than maxAge at now.
func (s *Snapshot) Stale(now time.Time, maxAge time.Duration) bool {
	return s == nil || maxAge > 0 && now.Sub(s.LastUpdate) > maxAge
}

// DataSource is the market data capability consumed by ingestion and the driver.
type DataSource interface {
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	// StreamCandles yields updates until ctx ends or the connection drops; the
	// channel is closed in both cases and the caller decides whether to restart.
	StreamCandles(ctx context.Context, symbol, interval string) (<-chan CandleUpdate, func(), error)
	GetOrderBook(ctx context.Context, symbol string, depth int) (bids, asks []Level, err error)
}
