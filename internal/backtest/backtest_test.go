package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jorgeperez0825/botnext/internal/market"
	"github.com/Jorgeperez0825/botnext/internal/market/markettest"
	"github.com/Jorgeperez0825/botnext/internal/strategy"
)

// trendOnly blends the market regime alone with no threshold, so a steady
// trend always produces an actionable signal.
func trendOnly() strategy.Tuning {
	t := strategy.DefaultTuning()
	t.WithoutSentiment = strategy.Weights{Market: 1}
	t.BaseThreshold = 0
	return t
}

func linear(n int, start, step float64) []market.Candle {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = start + step*float64(i)
	}
	return markettest.FromCloses(closes, 0.1, 100)
}

func TestRunRejectsShortHistory(t *testing.T) {
	r := NewRunner(strategy.DefaultTuning(), DefaultConfig(), nil)
	_, err := r.Run(context.Background(), "BTCUSDT", markettest.Flat(20, 100))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotEnoughHistory))
}

func TestFlatSeriesNeverTrades(t *testing.T) {
	r := NewRunner(strategy.DefaultTuning(), DefaultConfig(), nil)
	res, err := r.Run(context.Background(), "btcusdt", markettest.Flat(80, 100))
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", res.Symbol)
	assert.Equal(t, 80, res.Candles)
	assert.Equal(t, 31, res.Signals[strategy.ActionHold])
	assert.Zero(t, res.Trades)
	assert.Empty(t, res.Fills)
	assert.Zero(t, res.ProfitLoss)
}

func TestUptrendBuysOnceAndClosesAtEnd(t *testing.T) {
	cfg := Config{InvestmentAmount: 149}
	r := NewRunner(trendOnly(), cfg, nil)

	res, err := r.Run(context.Background(), "BTCUSDT", linear(60, 100, 1))
	require.NoError(t, err)

	assert.Equal(t, 11, res.Signals[strategy.ActionBuy])
	require.Len(t, res.Fills, 2)
	assert.Equal(t, strategy.ActionBuy, res.Fills[0].Side)
	assert.InDelta(t, 149, res.Fills[0].Price, 1e-9)
	assert.InDelta(t, 1, res.Fills[0].Quantity, 1e-9)
	assert.Equal(t, strategy.ActionSell, res.Fills[1].Side)
	assert.Equal(t, "end of data", res.Fills[1].Reason)

	// Fills are stamped at the close of the candle they trade on.
	assert.Equal(t, markettest.Start.Add(50*time.Minute), res.Fills[0].At)
	assert.Equal(t, markettest.Start.Add(60*time.Minute), res.Fills[1].At)

	assert.Equal(t, 1, res.Trades)
	assert.InDelta(t, 10, res.ProfitLoss, 1e-9)
	assert.InDelta(t, 100, res.WinRate, 1e-9)
	assert.InDelta(t, 10, res.AvgProfit, 1e-9)
	assert.Zero(t, res.AvgLoss)
	assert.Zero(t, res.MaxDrawdown)
}

func TestTakeProfitExitsAndReenters(t *testing.T) {
	cfg := Config{InvestmentAmount: 149, MinProfitPercent: 5}
	r := NewRunner(trendOnly(), cfg, nil)

	res, err := r.Run(context.Background(), "BTCUSDT", linear(60, 100, 1))
	require.NoError(t, err)

	require.Len(t, res.Fills, 4)
	assert.Contains(t, res.Fills[1].Reason, "take profit")
	assert.InDelta(t, 157, res.Fills[1].Price, 1e-9)
	assert.InDelta(t, 157, res.Fills[2].Price, 1e-9)
	assert.Equal(t, "end of data", res.Fills[3].Reason)

	assert.Equal(t, 2, res.Trades)
	assert.InDelta(t, 8+2*149.0/157.0, res.ProfitLoss, 1e-9)
}

func TestFeesAndSlippageReducePnL(t *testing.T) {
	cfg := Config{InvestmentAmount: 149, FeeRate: 0.001, SlippageBps: 10}
	r := NewRunner(trendOnly(), cfg, nil)

	res, err := r.Run(context.Background(), "BTCUSDT", linear(60, 100, 1))
	require.NoError(t, err)
	require.Len(t, res.Fills, 2)

	buy, sell := res.Fills[0], res.Fills[1]
	assert.InDelta(t, 149*1.001, buy.Price, 1e-9)
	assert.InDelta(t, 159*0.999, sell.Price, 1e-9)
	assert.InDelta(t, 149*0.001, buy.Fee, 1e-9)

	want := (sell.Price-buy.Price)*buy.Quantity - buy.Fee - sell.Fee
	assert.InDelta(t, want, res.ProfitLoss, 1e-9)
	assert.Less(t, res.ProfitLoss, 10.0)
}

func TestDowntrendSellsWithoutPositionAreIgnored(t *testing.T) {
	r := NewRunner(trendOnly(), Config{InvestmentAmount: 10}, nil)

	res, err := r.Run(context.Background(), "ETHUSDT", linear(60, 200, -1))
	require.NoError(t, err)
	assert.Equal(t, 11, res.Signals[strategy.ActionSell])
	assert.Zero(t, res.Trades)
	assert.Empty(t, res.Fills)
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewRunner(strategy.DefaultTuning(), DefaultConfig(), nil)
	_, err := r.Run(ctx, "BTCUSDT", markettest.Flat(80, 100))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadHistoryFromSource(t *testing.T) {
	src := market.NewMockSource(7)
	candles, err := LoadHistory(context.Background(), src, "btcusdt", "1m", 200)
	require.NoError(t, err)
	assert.Len(t, candles, 200)
	for i := 1; i < len(candles); i++ {
		assert.True(t, candles[i].OpenTime.After(candles[i-1].OpenTime))
	}

	r := NewRunner(strategy.DefaultTuning(), DefaultConfig(), nil)
	res, err := r.Run(context.Background(), "BTCUSDT", candles)
	require.NoError(t, err)
	total := 0
	for _, n := range res.Signals {
		total += n
	}
	assert.Equal(t, 151, total)
}

type rangeStub struct {
	candles    []market.Candle
	start, end time.Time
}

func (r *rangeStub) GetCandlesRange(_ context.Context, _, _ string, start, end time.Time) ([]market.Candle, error) {
	r.start, r.end = start, end
	// Out of order on purpose; LoadRange sorts.
	out := append([]market.Candle(nil), r.candles...)
	out[0], out[len(out)-1] = out[len(out)-1], out[0]
	return out, nil
}

func TestLoadRangeSortsAndValidates(t *testing.T) {
	stub := &rangeStub{candles: markettest.Flat(10, 100)}
	start := markettest.Start
	end := start.Add(10 * time.Minute)

	candles, err := LoadRange(context.Background(), stub, "btcusdt", "1m", start, end)
	require.NoError(t, err)
	require.Len(t, candles, 10)
	assert.Equal(t, start, candles[0].OpenTime)
	assert.Equal(t, start, stub.start)
	assert.Equal(t, end, stub.end)

	_, err = LoadRange(context.Background(), stub, "BTCUSDT", "1m", end, start)
	assert.Error(t, err)
}
