// Package markettest builds candle fixtures for tests.
package markettest

import (
	"time"

	"github.com/Jorgeperez0825/botnext/internal/market"
)

var Start = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// FromCloses builds one-minute candles that open and close at the given price
// with a fixed high/low offset and constant volume.
func FromCloses(closes []float64, wick, volume float64) []market.Candle {
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{
			OpenTime: Start.Add(time.Duration(i) * time.Minute),
			Open:     c,
			High:     c + wick,
			Low:      c - wick,
			Close:    c,
			Volume:   volume,
		}
	}
	return out
}

// Flat is a series with no price movement at all.
func Flat(n int, price float64) []market.Candle {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = price
	}
	return FromCloses(closes, 0, 10)
}

// OversoldReversal is a long steady decline, one sharp bounce ten bars back and
// a slow drift lower that leaves price just above its level ten bars ago. It
// reads RSI well under 30, %K under 20, ADX far above 25 and a positive ROC(10).
func OversoldReversal() []market.Candle {
	closes := make([]float64, 0, 80)
	for i := 0; i < 70; i++ {
		closes = append(closes, 300-float64(i))
	}
	closes = append(closes, closes[len(closes)-1]+2)
	for i := 0; i < 9; i++ {
		closes = append(closes, closes[len(closes)-1]-0.2)
	}
	return FromCloses(closes, 0.1, 100)
}

// Snapshot wraps candles as a pair snapshot priced at the last close.
func Snapshot(symbol string, candles []market.Candle) *market.Snapshot {
	last := 0.0
	at := Start
	if n := len(candles); n > 0 {
		last = candles[n-1].Close
		at = candles[n-1].OpenTime.Add(time.Minute)
	}
	return &market.Snapshot{Symbol: symbol, LastPrice: last, Candles: candles, LastUpdate: at}
}

// Book builds n levels per side stepping away from mid. Quantities are per
// level.
func Book(mid, tick float64, n int, bidQty, askQty float64) (bids, asks []market.Level) {
	for i := 0; i < n; i++ {
		bids = append(bids, market.Level{Price: mid - tick*float64(i+1), Qty: bidQty})
		asks = append(asks, market.Level{Price: mid + tick*float64(i+1), Qty: askQty})
	}
	return bids, asks
}
