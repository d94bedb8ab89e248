// Package backtest replays historical candles through the live scoring path
// with simulated fills.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Jorgeperez0825/botnext/internal/analysis"
	"github.com/Jorgeperez0825/botnext/internal/market"
	"github.com/Jorgeperez0825/botnext/internal/risk"
	"github.com/Jorgeperez0825/botnext/internal/sentiment"
	"github.com/Jorgeperez0825/botnext/internal/strategy"
	"github.com/Jorgeperez0825/botnext/pkg/logging"
)

// ErrNotEnoughHistory is returned when the series cannot cover the warmup.
var ErrNotEnoughHistory = errors.New("not enough candles for backtest")

// Config mirrors the live trading knobs that affect entries and exits.
type Config struct {
	InvestmentAmount float64
	MinConfidence    float64
	FeeRate          float64
	SlippageBps      float64
	MaxLossPercent   float64
	MinProfitPercent float64
	// Window is the rolling candle window handed to the analyzers.
	Window int
}

func DefaultConfig() Config {
	return Config{
		InvestmentAmount: 10,
		MinConfidence:    0.35,
		FeeRate:          0.001,
		MaxLossPercent:   2,
		MinProfitPercent: 1.5,
		Window:           120,
	}
}

// Fill is one simulated execution.
type Fill struct {
	Side       strategy.Action `json:"side"`
	Price      float64         `json:"price"`
	Quantity   float64         `json:"quantity"`
	Fee        float64         `json:"fee"`
	PnL        float64         `json:"pnl,omitempty"`
	Confidence float64         `json:"confidence,omitempty"`
	Reason     string          `json:"reason"`
	At         time.Time       `json:"at"`
}

// Result summarizes a run. WinRate is a percentage.
type Result struct {
	Symbol      string                  `json:"symbol"`
	Candles     int                     `json:"candles"`
	Signals     map[strategy.Action]int `json:"signals"`
	Fills       []Fill                  `json:"fills"`
	Trades      int                     `json:"trades"`
	ProfitLoss  float64                 `json:"profit_loss"`
	WinRate     float64                 `json:"win_rate"`
	AvgProfit   float64                 `json:"avg_profit"`
	AvgLoss     float64                 `json:"avg_loss"`
	MaxDrawdown float64                 `json:"max_drawdown"`
}

// Runner owns the analyzers for one replay. It is not safe for concurrent Runs.
type Runner struct {
	Scorer     *analysis.Scorer
	Classifier *analysis.Classifier
	Blender    *strategy.Blender
	Config     Config
	Logger     logrus.FieldLogger
}

func NewRunner(tuning strategy.Tuning, cfg Config, logger logrus.FieldLogger) *Runner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runner{
		Scorer:     analysis.NewScorer(),
		Classifier: analysis.NewClassifier(),
		Blender:    strategy.NewBlender(tuning),
		Config:     cfg,
		Logger:     logger,
	}
}

// warmup is the number of candles needed before the first evaluation.
// bucketWidth is the smallest gap between consecutive candle opens.
func bucketWidth(candles []market.Candle) time.Duration {
	var width time.Duration
	for i := 1; i < len(candles); i++ {
		if gap := candles[i].OpenTime.Sub(candles[i-1].OpenTime); gap > 0 && (width == 0 || gap < width) {
			width = gap
		}
	}
	return width
}

func (r *Runner) warmup() int {
	return max(r.Scorer.MinCandles, r.Classifier.MinCandles)
}

type openPosition struct {
	entry    float64
	qty      float64
	entryFee float64
}

// Run evaluates every candle after the warmup as if its close were the live
// price. Historical depth and sentiment are not available, so the order book
// reads neutral and the no-sentiment weights apply. A position still open at
// the end is closed at the last close.
func (r *Runner) Run(ctx context.Context, symbol string, candles []market.Candle) (Result, error) {
	symbol = strings.ToUpper(symbol)
	candles = market.Normalize(candles, 0)
	warmup := r.warmup()
	if len(candles) < warmup {
		return Result{}, fmt.Errorf("%w: have %d, need %d", ErrNotEnoughHistory, len(candles), warmup)
	}

	width := bucketWidth(candles)
	window := max(r.Config.Window, warmup)
	exits := risk.NewExitMonitor(r.Config.MaxLossPercent, r.Config.MinProfitPercent)
	tracker := risk.NewTracker()
	res := Result{Symbol: symbol, Candles: len(candles), Signals: make(map[strategy.Action]int)}
	log := logging.Stage(r.Logger, symbol, "backtest")

	var pos *openPosition
	closePosition := func(price float64, at time.Time, reason string) {
		fill := r.sell(pos, price, at, reason)
		res.Fills = append(res.Fills, fill)
		tracker.Record(risk.TradeResult{Symbol: symbol, Size: fill.Quantity, Price: fill.Price, PnL: fill.PnL, Fee: fill.Fee + pos.entryFee})
		exits.Untrack(symbol)
		pos = nil
	}

	for i := warmup - 1; i < len(candles); i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		c := candles[i]
		// Fills happen at the close, which is the end of the bucket.
		at := c.OpenTime.Add(width)

		if pos != nil {
			if d := exits.Check(symbol, c.Close); d != nil {
				closePosition(c.Close, at, d.Reason)
			}
		}

		snap := &market.Snapshot{
			Symbol:     symbol,
			LastPrice:  c.Close,
			Candles:    candles[max(0, i+1-window) : i+1],
			LastUpdate: at,
		}
		sig := r.Blender.Blend(strategy.Inputs{
			Symbol:    symbol,
			Technical: r.Scorer.Score(snap.Candles),
			Condition: r.Classifier.Classify(snap),
			Pressure:  analysis.OrderBookPressure{BuyPressure: 0.5, SellPressure: 0.5, Degraded: true, Reason: "no historical depth"},
			Sentiment: sentiment.Reading{Reason: "not replayed"},
			At:        at,
		})
		res.Signals[sig.Action]++

		if !sig.Action.Actionable() || sig.Confidence <= r.Config.MinConfidence {
			continue
		}
		switch {
		case sig.Action == strategy.ActionBuy && pos == nil:
			var fill Fill
			pos, fill = r.buy(c.Close, at, sig)
			if pos == nil {
				continue
			}
			res.Fills = append(res.Fills, fill)
			exits.Track(symbol, pos.entry, pos.qty, at)
		case sig.Action == strategy.ActionSell && pos != nil:
			closePosition(c.Close, at, fmt.Sprintf("sell signal (confidence %.2f)", sig.Confidence))
		}
	}

	if pos != nil {
		last := candles[len(candles)-1]
		closePosition(last.Close, last.OpenTime.Add(width), "end of data")
	}

	m := tracker.Snapshot()
	res.Trades = m.Trades
	res.ProfitLoss = m.TotalRealizedPnL
	res.WinRate = m.WinRate()
	res.AvgProfit = m.AvgProfit()
	res.AvgLoss = m.AvgLoss()
	res.MaxDrawdown = m.MaxDrawdown

	log.WithFields(logrus.Fields{
		"candles":     res.Candles,
		"trades":      res.Trades,
		"profit_loss": res.ProfitLoss,
		"win_rate":    res.WinRate,
	}).Info("backtest finished")
	return res, nil
}

func (r *Runner) buy(last float64, at time.Time, sig strategy.TradeSignal) (*openPosition, Fill) {
	price := last * (1 + r.Config.SlippageBps/1e4)
	if price <= 0 || r.Config.InvestmentAmount <= 0 {
		return nil, Fill{}
	}
	qty := r.Config.InvestmentAmount / price
	fee := qty * price * r.Config.FeeRate
	return &openPosition{entry: price, qty: qty, entryFee: fee}, Fill{
		Side:       strategy.ActionBuy,
		Price:      price,
		Quantity:   qty,
		Fee:        fee,
		Confidence: sig.Confidence,
		Reason:     fmt.Sprintf("buy signal (confidence %.2f)", sig.Confidence),
		At:         at,
	}
}

// sell closes pos; PnL is net of both legs' fees.
func (r *Runner) sell(pos *openPosition, last float64, at time.Time, reason string) Fill {
	price := last * (1 - r.Config.SlippageBps/1e4)
	fee := pos.qty * price * r.Config.FeeRate
	return Fill{
		Side:     strategy.ActionSell,
		Price:    price,
		Quantity: pos.qty,
		Fee:      fee,
		PnL:      (price-pos.entry)*pos.qty - fee - pos.entryFee,
		Reason:   reason,
		At:       at,
	}
}
