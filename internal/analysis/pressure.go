package analysis

import (
	"github.com/Jorgeperez0825/botnext/internal/market"
)

// MinDepthLevels is the number of levels required on each side of the book.
const MinDepthLevels = 10

// OrderBookPressure summarizes depth imbalance. BuyPressure+SellPressure is 1
// except for degraded results, which read 0.5/0.5.
type OrderBookPressure struct {
	BuyPressure   float64 `json:"buy_pressure"`
	SellPressure  float64 `json:"sell_pressure"`
	SpreadPercent float64 `json:"spread_percent"`
	Degraded      bool    `json:"degraded,omitempty"`
	Reason        string  `json:"reason,omitempty"`
}

// Score maps pressure to [-2, 2] for the blender.
func (p OrderBookPressure) Score() float64 {
	return (p.BuyPressure - p.SellPressure) * 2.0
}

// Estimator converts top-of-book depth into buy/sell pressure.
type Estimator struct {
	// MaxSpreadPercent above which the book is treated as too wide to enter.
	MaxSpreadPercent float64
	Levels           int
}

func NewEstimator(maxSpreadPercent float64) *Estimator {
	return &Estimator{MaxSpreadPercent: maxSpreadPercent, Levels: MinDepthLevels}
}

// Estimate is a pure function of the given depth. Levels are expected best
// first on both sides.
func (e *Estimator) Estimate(bids, asks []market.Level) OrderBookPressure {
	levels := e.Levels
	if levels <= 0 {
		levels = MinDepthLevels
	}
	if len(bids) < levels || len(asks) < levels {
		return OrderBookPressure{BuyPressure: 0.5, SellPressure: 0.5, Degraded: true, Reason: "insufficient depth"}
	}

	bestBid, bestAsk := bids[0].Price, asks[0].Price
	if bestBid <= 0 {
		return OrderBookPressure{BuyPressure: 0.5, SellPressure: 0.5, Degraded: true, Reason: "invalid best bid"}
	}
	spread := (bestAsk - bestBid) / bestBid * 100

	if spread > e.MaxSpreadPercent {
		return OrderBookPressure{BuyPressure: 0, SellPressure: 1, SpreadPercent: spread, Reason: "spread too wide"}
	}

	var bidVol, askVol float64
	for i := 0; i < levels; i++ {
		bidVol += bids[i].Qty
		askVol += asks[i].Qty
	}
	total := bidVol + askVol
	if total == 0 {
		return OrderBookPressure{BuyPressure: 0.5, SellPressure: 0.5, SpreadPercent: spread, Degraded: true, Reason: "empty depth"}
	}
	buy := bidVol / total
	return OrderBookPressure{BuyPressure: buy, SellPressure: 1 - buy, SpreadPercent: spread}
}
