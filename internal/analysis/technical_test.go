package analysis

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jorgeperez0825/botnext/internal/indicators"
	"github.com/Jorgeperez0825/botnext/internal/market/markettest"
)

func TestScoreNeedsThirtyCandles(t *testing.T) {
	res := NewScorer().Score(markettest.Flat(29, 100))
	assert.True(t, res.Degraded)
	assert.Equal(t, 0.0, res.Score)

	res = NewScorer().Score(markettest.Flat(30, 100))
	assert.False(t, res.Degraded)
}

func TestScoreFlatSeriesIsNeutral(t *testing.T) {
	res := NewScorer().Score(markettest.Flat(120, 100))
	require.False(t, res.Degraded)
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, 50.0, res.Readings.RSI)
	assert.Equal(t, 50.0, res.Readings.StochK)
}

func TestScoreOversoldReversal(t *testing.T) {
	res := NewScorer().Score(markettest.OversoldReversal())
	require.False(t, res.Degraded)
	r := res.Readings
	assert.LessOrEqual(t, r.RSI, 30.0)
	assert.Less(t, r.StochK, 20.0)
	assert.Greater(t, r.ADX, 25.0)
	assert.Greater(t, r.ROC, 0.0)
	assert.Equal(t, 0.8, res.Contributions["rsi"])
	assert.Equal(t, 0.6, res.Contributions["trend"])
	assert.Equal(t, 1.0, res.Score)
}

func TestScoreAlwaysClamped(t *testing.T) {
	s := NewScorer()
	rng := rand.New(rand.NewSource(7))
	series := [][]float64{
		ramp(60, 100, 5),  // RSI 100
		ramp(60, 400, -5), // RSI 0
	}
	for i := 0; i < 200; i++ {
		closes := []float64{100}
		vol := rng.Float64() * 0.1
		for j := 0; j < 30+rng.Intn(100); j++ {
			closes = append(closes, closes[len(closes)-1]*(1+(rng.Float64()*2-1)*vol))
		}
		series = append(series, closes)
	}
	for _, closes := range series {
		res := s.Score(markettest.FromCloses(closes, 0.5, 10))
		assert.GreaterOrEqual(t, res.Score, -1.0)
		assert.LessOrEqual(t, res.Score, 1.0)
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	candles := markettest.OversoldReversal()
	assert.Equal(t, NewScorer().Score(candles), NewScorer().Score(candles))
}

func TestContributionPolicies(t *testing.T) {
	cases := []struct {
		rsi  float64
		want float64
	}{{0, 0.8}, {30, 0.8}, {35, 0.4}, {40, 0.4}, {50, 0}, {60, -0.3}, {69.9, -0.3}, {70, -0.7}, {100, -0.7}}
	for _, c := range cases {
		assert.Equal(t, c.want, rsiContribution(indicators.Readings{RSI: c.rsi, RSIOK: true}), "rsi %v", c.rsi)
	}

	assert.Equal(t, 0.6, macdContribution(indicators.Readings{MACD: 1, MACDSignal: 0.5, MACDOK: true}, 100))
	assert.Equal(t, -0.4, macdContribution(indicators.Readings{MACD: 0.5, MACDSignal: 1, MACDOK: true}, 100))
	assert.Equal(t, 0.0, macdContribution(indicators.Readings{MACD: 1, MACDSignal: 1, MACDOK: true}, 100))
	assert.Equal(t, 0.0, macdContribution(indicators.Readings{MACD: 1}, 100))

	assert.Equal(t, 0.7, stochContribution(indicators.Readings{StochK: 10, StochOK: true}))
	assert.Equal(t, -0.5, stochContribution(indicators.Readings{StochK: 90, StochOK: true}))
	assert.Equal(t, 0.0, stochContribution(indicators.Readings{StochK: 20, StochOK: true}))

	s := NewScorer()
	assert.Equal(t, 0.0, s.trendContribution(indicators.Readings{ADX: 25, ADXOK: true, ROC: 3, ROCOK: true}))
	assert.Equal(t, 0.6, s.trendContribution(indicators.Readings{ADX: 30, ADXOK: true, ROC: 3, ROCOK: true}))
	assert.Equal(t, -0.4, s.trendContribution(indicators.Readings{ADX: 30, ADXOK: true, ROC: 0, ROCOK: true}))
}

func ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}
