package market

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// PairStore owns one pair's snapshot. Writers build a new Snapshot and swap the
// pointer, so readers see either the old or the new candle list, never a mix.
type PairStore struct {
	symbol     string
	maxCandles int
	current    atomic.Pointer[Snapshot]
	writeMu    sync.Mutex
}

func NewPairStore(symbol string, maxCandles int) *PairStore {
	if maxCandles <= 0 {
		maxCandles = 1000
	}
	return &PairStore{symbol: symbol, maxCandles: maxCandles}
}

func (s *PairStore) Symbol() string { return s.symbol }

// Load returns the current snapshot or nil before the first write.
func (s *PairStore) Load() *Snapshot {
	return s.current.Load()
}

// Replace installs a full candle history, normalized, e.g. after a REST warmup
// or a cache hit. Histories older than the current snapshot are ignored.
func (s *PairStore) Replace(candles []Candle, lastPrice float64, at time.Time) *Snapshot {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.current.Load()
	if cur != nil && at.Before(cur.LastUpdate) {
		return cur
	}
	merged := Normalize(candles, s.maxCandles)
	if lastPrice <= 0 && len(merged) > 0 {
		lastPrice = merged[len(merged)-1].Close
	}
	next := &Snapshot{Symbol: s.symbol, LastPrice: lastPrice, Candles: merged, LastUpdate: at}
	s.current.Store(next)
	return next
}

// Apply folds one stream tick into the snapshot. Every tick updates the last
// price; closed candles are appended, or replace the bucket with the same open
// time. A closed candle older than the newest retained one is dropped. It
// reports whether the candle history changed.
func (s *PairStore) Apply(u CandleUpdate, at time.Time) (*Snapshot, bool) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.current.Load()
	next := &Snapshot{Symbol: s.symbol, LastPrice: u.Candle.Close, LastUpdate: at}
	if cur != nil {
		next.Candles = cur.Candles
	}

	appended := false
	if u.Closed {
		n := len(next.Candles)
		switch {
		case n == 0 || u.Candle.OpenTime.After(next.Candles[n-1].OpenTime):
			candles := make([]Candle, 0, min(n+1, s.maxCandles))
			start := 0
			if n+1 > s.maxCandles {
				start = n + 1 - s.maxCandles
			}
			candles = append(candles, next.Candles[start:]...)
			next.Candles = append(candles, u.Candle)
			appended = true
		case u.Candle.OpenTime.Equal(next.Candles[n-1].OpenTime):
			candles := make([]Candle, n)
			copy(candles, next.Candles)
			candles[n-1] = u.Candle
			next.Candles = candles
			appended = true
		}
	}

	s.current.Store(next)
	return next, appended
}

// Normalize sorts candles by open time, keeps the last occurrence of each
// timestamp and truncates to the newest max entries. The input is not modified.
func Normalize(candles []Candle, max int) []Candle {
	out := make([]Candle, len(candles))
	copy(out, candles)
	sort.SliceStable(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })

	dedup := out[:0]
	for _, c := range out {
		if n := len(dedup); n > 0 && dedup[n-1].OpenTime.Equal(c.OpenTime) {
			dedup[n-1] = c
			continue
		}
		dedup = append(dedup, c)
	}
	if max > 0 && len(dedup) > max {
		dedup = dedup[len(dedup)-max:]
	}
	return dedup
}
