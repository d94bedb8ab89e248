package analysis

import (
	"fmt"

	"github.com/Jorgeperez0825/botnext/internal/indicators"
	"github.com/Jorgeperez0825/botnext/internal/market"
)

type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendNeutral Trend = "neutral"
)

type VolumeRegime string

const (
	VolumeHigh   VolumeRegime = "high"
	VolumeLow    VolumeRegime = "low"
	VolumeNormal VolumeRegime = "normal"
)

// MinConditionCandles covers the slow EMA.
const MinConditionCandles = 50

// MarketCondition is the regime read from the candle window. Volatility is
// the population std-dev of percent returns, in percent.
type MarketCondition struct {
	Trend        Trend        `json:"trend"`
	Strength     float64      `json:"strength"`
	Volatility   float64      `json:"volatility"`
	VolumeRegime VolumeRegime `json:"volume_regime"`
	Support      float64      `json:"support"`
	Resistance   float64      `json:"resistance"`
	Degraded     bool         `json:"degraded,omitempty"`
	Reason       string       `json:"reason,omitempty"`
}

// Score maps the trend to [-2, 2] for the blender.
func (c MarketCondition) Score() float64 {
	switch c.Trend {
	case TrendBullish:
		return c.Strength * 2.0
	case TrendBearish:
		return -c.Strength * 2.0
	}
	return 0
}

// NeutralCondition is returned whenever classification cannot complete.
func NeutralCondition(reason string) MarketCondition {
	return MarketCondition{Trend: TrendNeutral, Strength: 0.5, VolumeRegime: VolumeNormal, Degraded: true, Reason: reason}
}

type Classifier struct {
	FastEMA    int
	SlowEMA    int
	MinCandles int
}

func NewClassifier() *Classifier {
	return &Classifier{FastEMA: 20, SlowEMA: 50, MinCandles: MinConditionCandles}
}

// Classify never fails; problems yield NeutralCondition.
func (c *Classifier) Classify(snap *market.Snapshot) (cond MarketCondition) {
	defer func() {
		if r := recover(); r != nil {
			cond = NeutralCondition(fmt.Sprintf("classifier panic: %v", r))
		}
	}()

	if snap == nil || len(snap.Candles) < c.MinCandles {
		return NeutralCondition("insufficient candles")
	}
	closes := snap.Closes()
	fast, okFast := indicators.EMA(closes, c.FastEMA)
	slow, okSlow := indicators.EMA(closes, c.SlowEMA)
	if !okFast || !okSlow || slow == 0 {
		return NeutralCondition("ema unavailable")
	}

	last := snap.LastPrice
	if last <= 0 {
		last = closes[len(closes)-1]
	}

	cond = MarketCondition{Trend: TrendNeutral, Strength: 0.5}
	switch {
	case last > slow && fast > slow:
		cond.Trend = TrendBullish
		cond.Strength = min((last-slow)/slow, 1.0)
	case last < slow && fast < slow:
		cond.Trend = TrendBearish
		cond.Strength = min((slow-last)/slow, 1.0)
	}

	cond.Volatility = indicators.StdDev(indicators.PercentChanges(closes))
	cond.VolumeRegime = volumeRegime(snap.Candles)

	lc := snap.Candles[len(snap.Candles)-1]
	pivot := (lc.High + lc.Low + lc.Close) / 3
	cond.Resistance = 2*pivot - lc.Low
	cond.Support = 2*pivot - lc.High
	return cond
}

func volumeRegime(candles []market.Candle) VolumeRegime {
	vols := make([]float64, len(candles))
	for i, c := range candles {
		vols[i] = c.Volume
	}
	mean := indicators.Mean(vols)
	last := vols[len(vols)-1]
	switch {
	case mean <= 0:
		return VolumeNormal
	case last > 1.5*mean:
		return VolumeHigh
	case last < 0.5*mean:
		return VolumeLow
	}
	return VolumeNormal
}
