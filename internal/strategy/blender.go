package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/Jorgeperez0825/botnext/internal/analysis"
	"github.com/Jorgeperez0825/botnext/internal/sentiment"
)

// Inputs gathers one evaluation's component outputs.
type Inputs struct {
	Symbol    string
	Technical analysis.ScoreResult
	Condition analysis.MarketCondition
	Pressure  analysis.OrderBookPressure
	Sentiment sentiment.Reading
	At        time.Time
}

// Blender is the decision core. It is pure: the same Inputs always give the
// same TradeSignal. IDs are assigned by the caller.
type Blender struct {
	Tuning Tuning
}

func NewBlender(t Tuning) *Blender {
	return &Blender{Tuning: t}
}

// Weights picks the profile for the sentiment availability.
func (b *Blender) Weights(sentimentAvailable bool) Weights {
	if sentimentAvailable {
		return b.Tuning.WithSentiment
	}
	return b.Tuning.WithoutSentiment
}

// BuyThreshold narrows toward zero as volatility (percent) rises. The factor
// is clamped to [0,1] so extreme volatility cannot invert the thresholds.
func (b *Blender) BuyThreshold(volatility float64) float64 {
	vf := math.Max(0, math.Min(volatility/100, 1))
	return b.Tuning.BaseThreshold * (1 - vf)
}

// Blend never panics; any failure yields HOLD with zero confidence.
func (b *Blender) Blend(in Inputs) (sig TradeSignal) {
	defer func() {
		if r := recover(); r != nil {
			sig = TradeSignal{Symbol: in.Symbol, Action: ActionHold, Reason: fmt.Sprintf("blend panic: %v", r), CreatedAt: in.At}
		}
	}()

	w := b.Weights(in.Sentiment.Available)
	sent := 0.0
	if in.Sentiment.Available {
		sent = in.Sentiment.Value
	}
	tech := in.Technical.Score
	mkt := in.Condition.Score()
	book := in.Pressure.Score()

	final := sent*w.Sentiment + tech*w.Technical + mkt*w.Market + book*w.OrderBook
	threshold := b.BuyThreshold(in.Condition.Volatility)

	comps := Components{
		Technical:          tech,
		Market:             mkt,
		OrderBook:          book,
		Sentiment:          sent,
		SentimentAvailable: in.Sentiment.Available,
		Volatility:         in.Condition.Volatility,
		Weights:            w,
	}
	if !finite(final) || !finite(threshold) {
		return TradeSignal{Symbol: in.Symbol, Action: ActionHold, Components: comps, Reason: "non-finite score", CreatedAt: in.At}
	}

	action := ActionHold
	switch {
	case final > threshold:
		action = ActionBuy
	case final < -threshold:
		action = ActionSell
	}

	return TradeSignal{
		Symbol:     in.Symbol,
		Action:     action,
		Confidence: math.Max(0, math.Min(math.Abs(final)*b.Tuning.ConfidenceMultiplier, 1)),
		Score:      final,
		Threshold:  threshold,
		Components: comps,
		CreatedAt:  in.At,
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
