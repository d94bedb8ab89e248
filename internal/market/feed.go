package market

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Jorgeperez0825/botnext/internal/events"
	"github.com/Jorgeperez0825/botnext/internal/monitor"
	"github.com/Jorgeperez0825/botnext/pkg/logging"
)

const (
	defaultMinBackoff = time.Second
	defaultMaxBackoff = 30 * time.Second
)

// Feed streams live candles for one pair into its PairStore and reconnects
// with exponential backoff when the stream drops.
type Feed struct {
	Source   DataSource
	Store    *PairStore
	Cache    *SnapshotCache
	Bus      *events.Bus
	Metrics  *monitor.SystemMetrics
	Logger   logrus.FieldLogger
	Interval string

	MinBackoff   time.Duration
	MaxBackoff   time.Duration
	CacheTimeout time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

// Run blocks until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) {
	f.defaults()
	symbol := f.Store.Symbol()
	log := logging.Stage(f.Logger, symbol, "stream")
	backoff := f.MinBackoff

	for ctx.Err() == nil {
		updates, stop, err := f.Source.StreamCandles(ctx, symbol, f.Interval)
		if err == nil {
			f.Bus.Publish(events.EventStreamState, events.StreamState{Symbol: symbol, Connected: true})
			log.Info("stream connected")
			if f.consume(ctx, updates) {
				backoff = f.MinBackoff
			}
			stop()
			if ctx.Err() != nil {
				return
			}
			log.Warn("stream dropped")
		} else {
			log.WithError(err).Warn("stream subscribe failed")
		}

		state := events.StreamState{Symbol: symbol, Connected: false, Backoff: backoff}
		if err != nil {
			state.Error = err.Error()
		} else {
			state.Error = "connection closed"
		}
		f.Bus.Publish(events.EventStreamState, state)

		if !f.sleep(ctx, backoff) {
			return
		}
		backoff *= 2
		if backoff > f.MaxBackoff {
			backoff = f.MaxBackoff
		}
	}
}

// consume applies updates until the channel closes. It reports whether at
// least one update arrived, which resets the backoff.
func (f *Feed) consume(ctx context.Context, updates <-chan CandleUpdate) bool {
	received := false
	for {
		select {
		case <-ctx.Done():
			return received
		case u, ok := <-updates:
			if !ok {
				return received
			}
			received = true
			f.apply(ctx, u)
		}
	}
}

func (f *Feed) apply(ctx context.Context, u CandleUpdate) {
	now := f.now()
	snap, appended := f.Store.Apply(u, now)
	if f.Metrics != nil {
		f.Metrics.IncrementTicks()
	}
	f.Bus.Publish(events.EventPriceTick, events.PriceTick{Symbol: snap.Symbol, Price: snap.LastPrice, Time: now})
	if !appended {
		return
	}
	f.Bus.Publish(events.EventCandleClosed, u.Candle)

	if f.Cache != nil {
		cctx, cancel := context.WithTimeout(ctx, f.CacheTimeout)
		defer cancel()
		if err := f.Cache.PutSnapshot(cctx, snap); err != nil {
			logging.Stage(f.Logger, snap.Symbol, "stream").WithError(err).Warn("snapshot cache write failed")
		}
	}
}

func (f *Feed) defaults() {
	if f.MinBackoff <= 0 {
		f.MinBackoff = defaultMinBackoff
	}
	if f.MaxBackoff < f.MinBackoff {
		f.MaxBackoff = defaultMaxBackoff
	}
	if f.CacheTimeout <= 0 {
		f.CacheTimeout = 2 * time.Second
	}
	if f.Logger == nil {
		f.Logger = logging.Discard()
	}
	if f.now == nil {
		f.now = time.Now
	}
	if f.sleep == nil {
		f.sleep = sleepCtx
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
