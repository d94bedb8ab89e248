package market

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jorgeperez0825/botnext/pkg/cache"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func candleAt(i int, close float64) Candle {
	return Candle{OpenTime: t0.Add(time.Duration(i) * time.Minute), Open: close, High: close, Low: close, Close: close, Volume: 1}
}

func TestNormalizeSortsDedupsAndTruncates(t *testing.T) {
	in := []Candle{candleAt(3, 3), candleAt(1, 1), candleAt(2, 2), candleAt(1, 1.5), candleAt(0, 0)}
	out := Normalize(in, 3)
	require.Len(t, out, 3)
	assert.Equal(t, []float64{1.5, 2, 3}, (&Snapshot{Candles: out}).Closes())
	assert.Equal(t, 3.0, in[0].Close, "input must not be modified")
}

func TestApplyAppendsClosedAndDropsOutOfOrder(t *testing.T) {
	s := NewPairStore("BTCUSDT", 3)
	s.Replace([]Candle{candleAt(0, 10), candleAt(1, 11)}, 0, t0)
	assert.Equal(t, 11.0, s.Load().LastPrice)

	// forming bucket only moves price
	snap, changed := s.Apply(CandleUpdate{Candle: candleAt(2, 12)}, t0.Add(time.Second))
	assert.False(t, changed)
	assert.Len(t, snap.Candles, 2)
	assert.Equal(t, 12.0, snap.LastPrice)

	snap, changed = s.Apply(CandleUpdate{Candle: candleAt(2, 12.5), Closed: true}, t0.Add(2*time.Second))
	assert.True(t, changed)
	assert.Len(t, snap.Candles, 3)

	snap, changed = s.Apply(CandleUpdate{Candle: candleAt(3, 13), Closed: true}, t0.Add(3*time.Second))
	assert.True(t, changed)
	assert.Equal(t, []float64{11, 12.5, 13}, snap.Closes(), "oldest dropped first")

	// late candle is never inserted behind newer history
	snap, changed = s.Apply(CandleUpdate{Candle: candleAt(1, 99), Closed: true}, t0.Add(4*time.Second))
	assert.False(t, changed)
	assert.Equal(t, []float64{11, 12.5, 13}, snap.Closes())

	// same bucket replaces in place
	snap, changed = s.Apply(CandleUpdate{Candle: candleAt(3, 13.5), Closed: true}, t0.Add(5*time.Second))
	assert.True(t, changed)
	assert.Equal(t, []float64{11, 12.5, 13.5}, snap.Closes())
}

func TestApplyNeverMutatesPublishedSnapshot(t *testing.T) {
	s := NewPairStore("ETHUSDT", 5)
	s.Replace([]Candle{candleAt(0, 1), candleAt(1, 2)}, 0, t0)
	before := s.Load()
	s.Apply(CandleUpdate{Candle: candleAt(1, 7), Closed: true}, t0.Add(time.Second))
	assert.Equal(t, []float64{1, 2}, before.Closes())
	assert.Equal(t, []float64{1, 7}, s.Load().Closes())
}

func TestReplaceIgnoresOlderHistory(t *testing.T) {
	s := NewPairStore("BTCUSDT", 10)
	s.Replace([]Candle{candleAt(0, 1)}, 0, t0.Add(time.Minute))
	got := s.Replace([]Candle{candleAt(0, 5)}, 0, t0)
	assert.Equal(t, 1.0, got.LastPrice)
}

func TestConcurrentReadersSeeConsistentSnapshots(t *testing.T) {
	s := NewPairStore("BTCUSDT", 50)
	s.Replace([]Candle{candleAt(0, 0)}, 0, t0)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 500; i++ {
			s.Apply(CandleUpdate{Candle: candleAt(i, float64(i)), Closed: true}, t0.Add(time.Duration(i)*time.Second))
		}
	}()

	last := 0
	for i := 0; i < 500; i++ {
		snap := s.Load()
		n := len(snap.Candles)
		for j := 1; j < n; j++ {
			require.True(t, snap.Candles[j].OpenTime.After(snap.Candles[j-1].OpenTime))
		}
		newest := int(snap.Candles[n-1].Close)
		require.GreaterOrEqual(t, newest, last, "visibility must be monotonic")
		last = newest
	}
	wg.Wait()
}

func TestSnapshotCacheRoundTripAndMiss(t *testing.T) {
	c := &SnapshotCache{Store: cache.NewShardedCache(), TTL: time.Minute}
	ctx := context.Background()

	got, err := c.GetSnapshot(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, got)

	snap := &Snapshot{Symbol: "BTCUSDT", LastPrice: 2, Candles: []Candle{candleAt(0, 2)}, LastUpdate: t0}
	require.NoError(t, c.PutSnapshot(ctx, snap))
	got, err = c.GetSnapshot(ctx, "btcusdt")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2.0, got.LastPrice)
	assert.True(t, got.Candles[0].OpenTime.Equal(t0))
}

func TestSnapshotStale(t *testing.T) {
	var nilSnap *Snapshot
	assert.True(t, nilSnap.Stale(t0, time.Minute))
	s := &Snapshot{LastUpdate: t0}
	assert.False(t, s.Stale(t0.Add(30*time.Second), time.Minute))
	assert.True(t, s.Stale(t0.Add(2*time.Minute), time.Minute))
}
