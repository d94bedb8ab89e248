package engine

import (
	"context"
	"strings"
	"time"

	"github.com/Jorgeperez0825/botnext/internal/monitor"
	"github.com/Jorgeperez0825/botnext/pkg/db"
	exchange "github.com/Jorgeperez0825/botnext/pkg/exchanges/common"
)

// Pause stops new cycles; an evaluation already running completes.
func (d *Driver) Pause() {
	d.paused.Store(true)
	d.Logger.WithField("stage", "control").Info("bot paused")
}

func (d *Driver) Resume() {
	d.paused.Store(false)
	d.Logger.WithField("stage", "control").Info("bot resumed")
}

func (d *Driver) Paused() bool { return d.paused.Load() }

// LastPrice returns the newest known price of a configured pair.
func (d *Driver) LastPrice(symbol string) (float64, bool) {
	pc, ok := d.pairs[strings.ToUpper(symbol)]
	if !ok {
		return 0, false
	}
	snap := pc.store.Load()
	if snap == nil || snap.LastPrice <= 0 {
		return 0, false
	}
	return snap.LastPrice, true
}

func (d *Driver) Status(ctx context.Context) Status {
	st := Status{
		Running:      d.running.Load(),
		Paused:       d.paused.Load(),
		DryRun:       d.cfg.DryRun,
		Pairs:        append([]string(nil), d.order...),
		Balance:      d.balances(ctx),
		ActiveTrades: d.State.All(),
		Session:      d.Tracker.Snapshot(),
		ServerTime:   d.now().UTC(),
	}
	if ns := d.lastCycle.Load(); ns > 0 {
		st.LastCycle = time.Unix(0, ns).UTC()
	}

	sctx, cancel := withTimeout(ctx, d.cfg.Timeouts.Store)
	defer cancel()
	if perf, err := d.Store.Performance(sctx); err == nil {
		st.WinRate = perf.WinRate
		st.AvgTradeDuration = perf.AvgHoldSeconds
	} else {
		d.Logger.WithError(err).Warn("performance query failed")
	}
	return st
}

// balances prefers a full listing when the venue offers one and otherwise
// asks for the quote and base assets of every pair.
func (d *Driver) balances(ctx context.Context) map[string]float64 {
	if lister, ok := d.Trading.(interface{ Balances() map[string]float64 }); ok {
		return lister.Balances()
	}
	out := make(map[string]float64)
	if d.Trading == nil {
		return out
	}
	bctx, cancel := withTimeout(ctx, d.cfg.Timeouts.REST)
	defer cancel()
	for _, sym := range d.order {
		base, quote := exchange.SplitSymbol(sym)
		for _, asset := range []string{quote, base} {
			if _, seen := out[asset]; seen || asset == "" {
				continue
			}
			if b, err := d.Trading.GetBalance(bctx, asset); err == nil {
				out[asset] = b.Free
			}
		}
	}
	return out
}

func (d *Driver) Pairs() []PairStatus {
	res := make([]PairStatus, 0, len(d.order))
	for _, sym := range d.order {
		pc := d.pairs[sym]
		ps := PairStatus{Symbol: sym}
		if snap := pc.store.Load(); snap != nil {
			ps.LastPrice = snap.LastPrice
			ps.Candles = len(snap.Candles)
			ps.LastUpdate = snap.LastUpdate
		}
		// Signal fields are left empty while an evaluation holds the pair.
		if pc.mu.TryLock() {
			if pc.lastSignal != nil {
				sig := *pc.lastSignal
				ps.LastSignal = &sig
			}
			ps.LastError = pc.lastError
			pc.mu.Unlock()
		}
		if t, ok := d.State.Get(sym); ok {
			ps.ActiveTrade = &t
		}
		res = append(res, ps)
	}
	return res
}

func (d *Driver) Prices() map[string]float64 {
	out := make(map[string]float64, len(d.order))
	for _, sym := range d.order {
		if p, ok := d.LastPrice(sym); ok {
			out[sym] = p
		}
	}
	return out
}

func (d *Driver) RecentSignals(ctx context.Context, symbol string, n int) ([]db.Signal, error) {
	return d.Store.RecentSignals(ctx, symbol, n)
}

func (d *Driver) RecentTrades(ctx context.Context, symbol string, n int) ([]db.Trade, error) {
	return d.Store.RecentTrades(ctx, symbol, n)
}

func (d *Driver) Performance(ctx context.Context) (db.Performance, error) {
	return d.Store.Performance(ctx)
}

func (d *Driver) MetricsSnapshot() monitor.MetricsSnapshot {
	if d.Metrics == nil {
		return monitor.MetricsSnapshot{Timestamp: d.now()}
	}
	return d.Metrics.GetSnapshot()
}
