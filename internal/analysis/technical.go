package analysis

import (
	"fmt"
	"math"

	"github.com/Jorgeperez0825/botnext/internal/indicators"
	"github.com/Jorgeperez0825/botnext/internal/market"
)

// MinScoreCandles is the shortest history the technical scorer accepts.
const MinScoreCandles = 30

// ScoreResult is the technical score in [-1, 1]. Degraded results carry a
// zero score and the reason.
type ScoreResult struct {
	Score         float64             `json:"score"`
	Degraded      bool                `json:"degraded,omitempty"`
	Reason        string              `json:"reason,omitempty"`
	Readings      indicators.Readings `json:"readings"`
	Contributions map[string]float64  `json:"contributions,omitempty"`
}

// Scorer turns the indicator basket into a single bounded score.
type Scorer struct {
	Periods    indicators.Periods
	MinCandles int
	// ADXThreshold gates the ROC momentum term.
	ADXThreshold float64
}

func NewScorer() *Scorer {
	return &Scorer{
		Periods:      indicators.DefaultPeriods(),
		MinCandles:   MinScoreCandles,
		ADXThreshold: 25,
	}
}

// Score is deterministic for identical input.
func (s *Scorer) Score(candles []market.Candle) ScoreResult {
	if len(candles) < s.MinCandles {
		return ScoreResult{Degraded: true, Reason: fmt.Sprintf("need %d candles, have %d", s.MinCandles, len(candles))}
	}

	high, low, closes := splitHLC(candles)
	r := indicators.Compute(high, low, closes, s.Periods)
	contrib := map[string]float64{
		"rsi":   rsiContribution(r),
		"macd":  macdContribution(r, closes[len(closes)-1]),
		"stoch": stochContribution(r),
		"trend": s.trendContribution(r),
	}

	sum := 0.0
	for _, v := range contrib {
		sum += v
	}
	if math.IsNaN(sum) || math.IsInf(sum, 0) {
		return ScoreResult{Degraded: true, Reason: "non-finite indicator", Readings: r}
	}
	return ScoreResult{Score: clamp(sum, -1, 1), Readings: r, Contributions: contrib}
}

func rsiContribution(r indicators.Readings) float64 {
	if !r.RSIOK {
		return 0
	}
	switch {
	case r.RSI <= 30:
		return 0.8
	case r.RSI <= 40:
		return 0.4
	case r.RSI >= 70:
		return -0.7
	case r.RSI >= 60:
		return -0.3
	}
	return 0
}

func macdContribution(r indicators.Readings, lastClose float64) float64 {
	if !r.MACDOK {
		return 0
	}
	// values within float noise of each other count as equal
	eps := 1e-12 * math.Max(1, math.Abs(lastClose))
	diff := r.MACD - r.MACDSignal
	switch {
	case diff > eps:
		return 0.6
	case diff < -eps:
		return -0.4
	}
	return 0
}

func stochContribution(r indicators.Readings) float64 {
	if !r.StochOK {
		return 0
	}
	switch {
	case r.StochK < 20:
		return 0.7
	case r.StochK > 80:
		return -0.5
	}
	return 0
}

func (s *Scorer) trendContribution(r indicators.Readings) float64 {
	if !r.ADXOK || r.ADX <= s.ADXThreshold || !r.ROCOK {
		return 0
	}
	if r.ROC > 0 {
		return 0.6
	}
	return -0.4
}

func splitHLC(candles []market.Candle) (high, low, closes []float64) {
	high = make([]float64, len(candles))
	low = make([]float64, len(candles))
	closes = make([]float64, len(candles))
	for i, c := range candles {
		high[i], low[i], closes[i] = c.High, c.Low, c.Close
	}
	return high, low, closes
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
