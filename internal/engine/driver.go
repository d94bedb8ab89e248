package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Jorgeperez0825/botnext/internal/analysis"
	"github.com/Jorgeperez0825/botnext/internal/events"
	"github.com/Jorgeperez0825/botnext/internal/market"
	"github.com/Jorgeperez0825/botnext/internal/monitor"
	"github.com/Jorgeperez0825/botnext/internal/order"
	"github.com/Jorgeperez0825/botnext/internal/risk"
	"github.com/Jorgeperez0825/botnext/internal/sentiment"
	"github.com/Jorgeperez0825/botnext/internal/state"
	"github.com/Jorgeperez0825/botnext/internal/strategy"
	"github.com/Jorgeperez0825/botnext/pkg/db"
	exchange "github.com/Jorgeperez0825/botnext/pkg/exchanges/common"
	"github.com/Jorgeperez0825/botnext/pkg/logging"
)

const recentHistory = 5

// Deps are the collaborators of the driver. Source, Store and Trading are
// required; the rest fall back to defaults built from Config.
type Deps struct {
	Source     market.DataSource
	Cache      SnapshotCache
	Store      Store
	Trading    exchange.Gateway
	Sentiment  *sentiment.Adapter
	Scorer     *analysis.Scorer
	Classifier *analysis.Classifier
	Estimator  *analysis.Estimator
	Blender    *strategy.Blender
	Guard      *risk.Guard
	Executor   *order.Executor
	State      *state.Manager
	Exits      *risk.ExitMonitor
	Tracker    *risk.Tracker
	Conditions ConditionWriter
	Bus        *events.Bus
	Metrics    *monitor.SystemMetrics
	Logger     logrus.FieldLogger
}

// pairContext is everything the driver owns for one pair.
type pairContext struct {
	symbol     string
	store      *market.PairStore
	stopStream context.CancelFunc

	// mu serializes evaluations of the pair between the cycle and API calls.
	mu         sync.Mutex
	lastSignal *strategy.TradeSignal
	lastError  string
}

// Driver runs the trading cycle over every configured pair.
type Driver struct {
	cfg Config
	Deps

	pairs     map[string]*pairContext
	order     []string
	paused    atomic.Bool
	running   atomic.Bool
	lastCycle atomic.Int64
	now       func() time.Time
}

func New(cfg Config, deps Deps) *Driver {
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = time.Minute
	}
	if cfg.WarmupCandles <= 0 {
		cfg.WarmupCandles = 120
	}
	if cfg.OrderBookDepth <= 0 {
		cfg.OrderBookDepth = 20
	}
	if cfg.Interval == "" {
		cfg.Interval = "1m"
	}
	if cfg.MaxConcurrentTrades <= 0 {
		cfg.MaxConcurrentTrades = 2
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Scorer == nil {
		deps.Scorer = analysis.NewScorer()
	}
	if deps.Classifier == nil {
		deps.Classifier = analysis.NewClassifier()
	}
	if deps.Estimator == nil {
		deps.Estimator = analysis.NewEstimator(0.5)
	}
	if deps.Blender == nil {
		deps.Blender = strategy.NewBlender(strategy.DefaultTuning())
	}
	if deps.Sentiment == nil {
		deps.Sentiment = sentiment.NewAdapter(nil, cfg.Timeouts.Sentiment, deps.Logger)
	}
	if deps.Guard == nil {
		deps.Guard = risk.NewGuard(deps.Trading, 0)
	}
	if deps.Executor == nil {
		deps.Executor = order.NewExecutor(deps.Trading, cfg.Timeouts.Order, 0, deps.Logger)
	}
	if deps.State == nil {
		deps.State = state.NewManager(nil)
	}
	if deps.Exits == nil {
		deps.Exits = risk.NewExitMonitor(0, 0)
	}
	if deps.Tracker == nil {
		deps.Tracker = risk.NewTracker()
	}

	d := &Driver{cfg: cfg, Deps: deps, pairs: make(map[string]*pairContext), now: time.Now}
	for _, p := range cfg.Pairs {
		sym := strings.ToUpper(strings.TrimSpace(p))
		if sym == "" || d.pairs[sym] != nil {
			continue
		}
		d.pairs[sym] = &pairContext{symbol: sym, store: market.NewPairStore(sym, cfg.MaxCandles)}
		d.order = append(d.order, sym)
	}
	return d
}

// Init restores active trades from the store and arms the exit monitor.
func (d *Driver) Init(ctx context.Context) error {
	if err := d.State.Load(ctx, d.order); err != nil {
		return err
	}
	for _, t := range d.State.All() {
		d.Exits.Track(t.Symbol, t.EntryPrice, t.Quantity, t.OpenedAt)
		logging.Stage(d.Logger, t.Symbol, "state").WithFields(logrus.Fields{
			"entry":    t.EntryPrice,
			"quantity": t.Quantity,
		}).Info("restored active trade")
	}
	return nil
}

// Run starts one stream per pair and evaluates every pair each CycleInterval
// until ctx is cancelled.
func (d *Driver) Run(ctx context.Context) error {
	d.running.Store(true)
	defer d.running.Store(false)

	if d.cfg.Stream {
		d.startStreams(ctx)
		defer d.stopStreams()
	}

	ticker := time.NewTicker(d.cfg.CycleInterval)
	defer ticker.Stop()

	d.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.RunCycle(ctx)
		}
	}
}

// RunCycle evaluates pairs one after another. A failing pair never stops the
// others.
func (d *Driver) RunCycle(ctx context.Context) {
	if d.paused.Load() {
		d.Logger.WithField(logging.FieldStage, "cycle").Debug("cycle skipped, bot paused")
		return
	}
	start := d.now()
	var timer *monitor.Timer
	if d.Metrics != nil {
		timer = monitor.NewTimer(d.Metrics.CycleLatency)
	}

	for _, sym := range d.order {
		if ctx.Err() != nil {
			return
		}
		if _, err := d.EvaluatePair(ctx, sym); err != nil {
			logging.Stage(d.Logger, sym, "cycle").WithError(err).Warn("pair evaluation failed")
		}
	}

	d.lastCycle.Store(start.UnixNano())
	if d.Metrics != nil {
		d.Metrics.IncrementCycles()
		timer.Stop()
	}
}

// EvaluatePair runs one full evaluation of pair: snapshot, exit check,
// analysis, blending, then the order path when the signal is actionable. The
// signal is persisted whatever happens; evaluation failures persist an ERROR
// signal and return the error.
func (d *Driver) EvaluatePair(ctx context.Context, pair string) (strategy.TradeSignal, error) {
	pc, ok := d.pairs[strings.ToUpper(pair)]
	if !ok {
		return strategy.TradeSignal{}, fmt.Errorf("%w: %s", ErrUnknownPair, pair)
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if d.Metrics != nil {
		defer monitor.NewTimer(d.Metrics.EvaluationLatency).Stop()
	}

	sig, err := d.evaluate(ctx, pc)
	pc.lastSignal = &sig
	pc.lastError = ""
	if err != nil {
		pc.lastError = err.Error()
		d.Bus.Publish(events.EventPairError, events.Alert{Symbol: pc.symbol, Stage: "evaluate", Message: err.Error(), Time: d.now()})
	}
	return sig, err
}

// WithPair runs fn while holding the pair's evaluation lock, so fn never
// interleaves with an evaluation or order of that pair.
func (d *Driver) WithPair(pair string, fn func()) error {
	pc, ok := d.pairs[strings.ToUpper(pair)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPair, pair)
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	fn()
	return nil
}

func (d *Driver) evaluate(ctx context.Context, pc *pairContext) (strategy.TradeSignal, error) {
	now := d.now()
	log := logging.Stage(d.Logger, pc.symbol, "snapshot")

	snap, err := d.snapshot(ctx, pc, now)
	if err != nil {
		return d.fail(ctx, pc.symbol, now, err)
	}
	log.WithFields(logrus.Fields{"candles": len(snap.Candles), "price": snap.LastPrice}).Debug("snapshot ready")

	if err := d.checkExit(ctx, pc, snap); err != nil {
		logging.Stage(d.Logger, pc.symbol, "exit").WithError(err).Warn("exit order failed")
	}

	var (
		tech  analysis.ScoreResult
		cond  analysis.MarketCondition
		press analysis.OrderBookPressure
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tech = d.Scorer.Score(snap.Candles)
		return nil
	})
	g.Go(func() error {
		cond = d.Classifier.Classify(snap)
		return nil
	})
	g.Go(func() error {
		bctx, cancel := withTimeout(gctx, d.cfg.Timeouts.OrderBook)
		defer cancel()
		bids, asks, err := d.Source.GetOrderBook(bctx, pc.symbol, d.cfg.OrderBookDepth)
		if err != nil {
			return fmt.Errorf("order book %s: %w", pc.symbol, exchange.WrapTransport("depth", err))
		}
		press = d.Estimator.Estimate(bids, asks)
		return nil
	})
	if err := g.Wait(); err != nil {
		return d.fail(ctx, pc.symbol, now, err)
	}

	logging.Stage(d.Logger, pc.symbol, "analysis").WithFields(logrus.Fields{
		"technical":     tech.Score,
		"trend":         cond.Trend,
		"strength":      cond.Strength,
		"volatility":    cond.Volatility,
		"buy_pressure":  press.BuyPressure,
		"sell_pressure": press.SellPressure,
		"degraded":      tech.Degraded || cond.Degraded || press.Degraded,
	}).Info("analysis complete")

	if d.Conditions != nil {
		d.Conditions.Write(db.MarketCondition{
			Symbol:       pc.symbol,
			Trend:        string(cond.Trend),
			Strength:     cond.Strength,
			Volatility:   cond.Volatility,
			VolumeRegime: string(cond.VolumeRegime),
			Support:      cond.Support,
			Resistance:   cond.Resistance,
			Degraded:     cond.Degraded,
			CreatedAt:    now,
		})
	}

	reading := d.Sentiment.Sentiment(ctx, d.sentimentContext(ctx, snap, tech, now))

	sig := d.Blender.Blend(strategy.Inputs{
		Symbol:    pc.symbol,
		Technical: tech,
		Condition: cond,
		Pressure:  press,
		Sentiment: reading,
		At:        now,
	})
	sig.ID = strategy.NewSignalID(now)

	logging.Stage(d.Logger, pc.symbol, "signal").WithFields(logrus.Fields{
		"action":     sig.Action,
		"confidence": sig.Confidence,
		"score":      sig.Score,
		"threshold":  sig.Threshold,
		"sentiment":  reading.Available,
	}).Info("signal generated")

	d.persistSignal(ctx, sig)
	d.Bus.Publish(events.EventSignal, sig)
	if d.Metrics != nil {
		d.Metrics.IncrementSignals()
	}

	if err := d.act(ctx, pc, sig, snap.LastPrice); err != nil {
		return sig, err
	}
	return sig, nil
}

// fail persists an ERROR signal for a pair that could not be evaluated.
func (d *Driver) fail(ctx context.Context, symbol string, now time.Time, cause error) (strategy.TradeSignal, error) {
	sig := strategy.ErrorSignal(symbol, cause.Error(), now)
	sig.ID = strategy.NewSignalID(now)
	d.persistSignal(ctx, sig)
	d.Bus.Publish(events.EventSignal, sig)
	return sig, cause
}

// snapshot returns the pair snapshot from memory, then the cache, then a
// fresh REST warmup when both are missing or stale.
func (d *Driver) snapshot(ctx context.Context, pc *pairContext, now time.Time) (*market.Snapshot, error) {
	if snap := pc.store.Load(); usable(snap, now, d.cfg.StaleAfter) {
		return snap, nil
	}

	if d.Cache != nil {
		cctx, cancel := withTimeout(ctx, d.cfg.Timeouts.Store)
		cached, err := d.Cache.GetSnapshot(cctx, pc.symbol)
		cancel()
		if err != nil {
			logging.Stage(d.Logger, pc.symbol, "snapshot").WithError(err).Warn("snapshot cache read failed")
		} else if usable(cached, now, d.cfg.StaleAfter) {
			if snap := pc.store.Replace(cached.Candles, cached.LastPrice, cached.LastUpdate); usable(snap, now, d.cfg.StaleAfter) {
				return snap, nil
			}
		}
	}

	rctx, cancel := withTimeout(ctx, d.cfg.Timeouts.REST)
	defer cancel()
	candles, err := d.Source.GetCandles(rctx, pc.symbol, d.cfg.Interval, d.cfg.WarmupCandles)
	if err != nil {
		return nil, fmt.Errorf("candles %s: %w", pc.symbol, exchange.WrapTransport("klines", err))
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoMarketData, pc.symbol)
	}
	snap := pc.store.Replace(candles, 0, now)

	if d.Cache != nil {
		cctx, cancel := withTimeout(ctx, d.cfg.Timeouts.Store)
		defer cancel()
		if err := d.Cache.PutSnapshot(cctx, snap); err != nil {
			logging.Stage(d.Logger, pc.symbol, "snapshot").WithError(err).Warn("snapshot cache write failed")
		}
	}
	return snap, nil
}

func usable(snap *market.Snapshot, now time.Time, maxAge time.Duration) bool {
	return snap != nil && len(snap.Candles) > 0 && snap.LastPrice > 0 && !snap.Stale(now, maxAge)
}

func (d *Driver) sentimentContext(ctx context.Context, snap *market.Snapshot, tech analysis.ScoreResult, now time.Time) sentiment.Context {
	in := sentiment.Context{Symbol: snap.Symbol, LastPrice: snap.LastPrice, At: now}
	if n := len(snap.Candles); n > 0 {
		in.LastVolume = snap.Candles[n-1].Volume
		if first := snap.Candles[0].Close; first > 0 {
			in.ChangePercent = (snap.LastPrice - first) / first * 100
		}
	}
	if tech.Readings.RSIOK {
		in.RSI = tech.Readings.RSI
	}
	if tech.Readings.ADXOK {
		in.ADX = tech.Readings.ADX
	}

	sctx, cancel := withTimeout(ctx, d.cfg.Timeouts.Store)
	defer cancel()
	if signals, err := d.Store.RecentSignals(sctx, snap.Symbol, recentHistory); err == nil {
		for _, s := range signals {
			in.RecentSignals = append(in.RecentSignals, sentiment.RecentSignal{Action: s.Action, Confidence: s.Confidence, At: s.CreatedAt})
		}
	}
	if trades, err := d.Store.RecentTrades(sctx, snap.Symbol, recentHistory); err == nil {
		for _, t := range trades {
			in.RecentTrades = append(in.RecentTrades, sentiment.RecentTrade{Side: t.Side, Price: t.Price, Qty: t.Quantity, At: t.CreatedAt})
		}
	}
	return in
}

// act runs the order path for an actionable signal above the confidence gate.
func (d *Driver) act(ctx context.Context, pc *pairContext, sig strategy.TradeSignal, price float64) error {
	log := logging.Stage(d.Logger, pc.symbol, "decision")
	if !sig.Action.Actionable() {
		return nil
	}
	if sig.Confidence <= d.cfg.MinConfidence {
		log.WithFields(logrus.Fields{"confidence": sig.Confidence, "min_confidence": d.cfg.MinConfidence}).Info("confidence below gate")
		return nil
	}

	active, hasActive := d.State.Get(pc.symbol)
	var side exchange.Side
	qty := roundQty(d.cfg.InvestmentAmount / price)
	switch sig.Action {
	case strategy.ActionBuy:
		side = exchange.SideBuy
		if hasActive {
			d.reject(pc.symbol, "position already open")
			return nil
		}
		if n := d.State.Count(); n >= d.cfg.MaxConcurrentTrades {
			d.reject(pc.symbol, fmt.Sprintf("max concurrent trades reached (%d)", n))
			return nil
		}
	case strategy.ActionSell:
		side = exchange.SideSell
		if hasActive {
			qty = active.Quantity
		}
	}

	_, err := d.execute(ctx, pc, side, qty, price, sig.ID, fmt.Sprintf("%s signal %.2f", sig.Action, sig.Confidence))
	return err
}

// execute guards, places and records one order, then updates the active
// trade. A guard rejection is not an error.
func (d *Driver) execute(ctx context.Context, pc *pairContext, side exchange.Side, qty, price float64, signalID, reason string) (bool, error) {
	log := logging.Stage(d.Logger, pc.symbol, "guard")

	gctx, cancel := withTimeout(ctx, d.cfg.Timeouts.REST)
	decision, err := d.Guard.Check(gctx, risk.Proposal{Symbol: pc.symbol, Side: side, Quantity: qty, Price: price})
	cancel()
	if err != nil {
		return false, fmt.Errorf("guard %s: %w", pc.symbol, err)
	}
	if !decision.Allowed {
		d.reject(pc.symbol, decision.Reason)
		return false, nil
	}
	log.WithFields(logrus.Fields{"side": side, "quantity": decision.Quantity, "notional": decision.Notional}).Info("order allowed")

	var timer *monitor.Timer
	if d.Metrics != nil {
		timer = monitor.NewTimer(d.Metrics.OrderLatency)
	}
	trade, err := d.Executor.Execute(ctx, order.Request{
		SignalID: signalID,
		Symbol:   pc.symbol,
		Side:     side,
		Quantity: decision.Quantity,
		Price:    price,
		Reason:   reason,
	})
	if timer != nil {
		timer.Stop()
	}
	if err != nil {
		if trade.ID != "" {
			d.persistTrade(ctx, trade)
		}
		return false, fmt.Errorf("order %s %s: %w", side, pc.symbol, err)
	}

	if side == exchange.SideSell {
		if active, ok := d.State.Close(pc.symbol); ok {
			trade.RealizedPnL = (trade.Price-active.EntryPrice)*trade.Quantity - trade.Fee
			trade.HoldSeconds = trade.CreatedAt.Sub(active.OpenedAt).Seconds()
			d.Tracker.Record(risk.TradeResult{Symbol: pc.symbol, Size: trade.Quantity, Price: trade.Price, PnL: trade.RealizedPnL, Fee: trade.Fee})
		}
		d.Exits.Untrack(pc.symbol)
	} else {
		d.State.Open(state.ActiveTrade{
			Symbol:     pc.symbol,
			TradeID:    trade.ID,
			Quantity:   trade.Quantity,
			EntryPrice: trade.Price,
			OpenedAt:   trade.CreatedAt,
		})
		d.Exits.Track(pc.symbol, trade.Price, trade.Quantity, trade.CreatedAt)
	}
	d.persistTrade(ctx, trade)

	d.Bus.Publish(events.EventTrade, trade)
	if d.Metrics != nil {
		d.Metrics.IncrementTrades()
	}
	logging.Stage(d.Logger, pc.symbol, "trade").WithFields(logrus.Fields{
		"side":         trade.Side,
		"quantity":     trade.Quantity,
		"price":        trade.Price,
		"realized_pnl": trade.RealizedPnL,
		"reason":       reason,
	}).Info("trade recorded")
	return true, nil
}

// checkExit closes the active trade with a guarded SELL once price crosses
// its stop-loss or take-profit level.
func (d *Driver) checkExit(ctx context.Context, pc *pairContext, snap *market.Snapshot) error {
	exit := d.Exits.Check(pc.symbol, snap.LastPrice)
	if exit == nil {
		return nil
	}
	logging.Stage(d.Logger, pc.symbol, "exit").WithFields(logrus.Fields{
		"change_percent": exit.ChangePercent,
		"stop_loss":      exit.StopLoss,
	}).Info(exit.Reason)

	qty := exit.Quantity
	if active, ok := d.State.Get(pc.symbol); ok {
		qty = active.Quantity
	}
	_, err := d.execute(ctx, pc, exchange.SideSell, qty, snap.LastPrice, "", exit.Reason)
	return err
}

func (d *Driver) reject(symbol, reason string) {
	logging.Stage(d.Logger, symbol, "guard").WithField("reason", reason).Warn("order rejected")
	d.Bus.Publish(events.EventGuardRejected, events.Alert{Symbol: symbol, Stage: "guard", Message: reason, Time: d.now()})
}

func (d *Driver) persistSignal(ctx context.Context, sig strategy.TradeSignal) {
	sctx, cancel := withTimeout(context.WithoutCancel(ctx), d.cfg.Timeouts.Store)
	defer cancel()
	if d.Metrics != nil {
		defer monitor.NewTimer(d.Metrics.StoreLatency).Stop()
	}
	c := sig.Components
	err := d.Store.AppendSignal(sctx, db.Signal{
		ID:                 sig.ID,
		Symbol:             sig.Symbol,
		Action:             string(sig.Action),
		Confidence:         sig.Confidence,
		Score:              sig.Score,
		Threshold:          sig.Threshold,
		Technical:          c.Technical,
		Market:             c.Market,
		OrderBook:          c.OrderBook,
		Sentiment:          c.Sentiment,
		SentimentAvailable: c.SentimentAvailable,
		Volatility:         c.Volatility,
		Reason:             sig.Reason,
		CreatedAt:          sig.CreatedAt,
	})
	if err != nil {
		logging.Stage(d.Logger, sig.Symbol, "persist").WithError(err).Error("signal not persisted")
	}
}

func (d *Driver) persistTrade(ctx context.Context, t db.Trade) {
	// The order already reached the venue; record it even if the cycle was cancelled.
	sctx, cancel := withTimeout(context.WithoutCancel(ctx), d.cfg.Timeouts.Store)
	defer cancel()
	if err := d.Store.AppendTrade(sctx, t); err != nil {
		logging.Stage(d.Logger, t.Symbol, "persist").WithError(err).WithField("trade_id", t.ID).Error("trade not persisted")
	}
}

func (d *Driver) startStreams(ctx context.Context) {
	for _, sym := range d.order {
		pc := d.pairs[sym]
		sctx, cancel := context.WithCancel(ctx)
		pc.stopStream = cancel
		feed := &market.Feed{
			Source:   d.Source,
			Store:    pc.store,
			Bus:      d.Bus,
			Metrics:  d.Metrics,
			Logger:   d.Logger,
			Interval: d.cfg.Interval,
		}
		if c, ok := d.Cache.(*market.SnapshotCache); ok {
			feed.Cache = c
		}
		go feed.Run(sctx)
	}
}

func (d *Driver) stopStreams() {
	for _, pc := range d.pairs {
		if pc.stopStream != nil {
			pc.stopStream()
			pc.stopStream = nil
		}
	}
}

// roundQty rounds to 6 decimals; the guard floors to the lot step afterwards.
func roundQty(v float64) float64 {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*1e6) / 1e6
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// IsTransient reports errors that only skip the pair for this cycle.
func IsTransient(err error) bool {
	return exchange.IsTransient(err) || errors.Is(err, ErrNoMarketData)
}
