package market

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jorgeperez0825/botnext/internal/events"
	"github.com/Jorgeperez0825/botnext/pkg/cache"
)

// scriptedSource fails the first subscribe, then serves one batch per connection.
type scriptedSource struct {
	mu       sync.Mutex
	attempts int
	batches  [][]CandleUpdate
}

func (s *scriptedSource) GetCandles(context.Context, string, string, int) ([]Candle, error) {
	return nil, nil
}

func (s *scriptedSource) GetOrderBook(context.Context, string, int) ([]Level, []Level, error) {
	return nil, nil, nil
}

func (s *scriptedSource) StreamCandles(ctx context.Context, symbol, interval string) (<-chan CandleUpdate, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts == 1 {
		return nil, nil, errors.New("dial refused")
	}
	ch := make(chan CandleUpdate, 10)
	if len(s.batches) > 0 {
		for _, u := range s.batches[0] {
			ch <- u
		}
		s.batches = s.batches[1:]
	}
	close(ch)
	return ch, func() {}, nil
}

func TestFeedReconnectsWithBackoffAndAppliesUpdates(t *testing.T) {
	src := &scriptedSource{batches: [][]CandleUpdate{
		{{Candle: candleAt(0, 10), Closed: true}, {Candle: candleAt(1, 11)}},
		{{Candle: candleAt(1, 12), Closed: true}},
	}}
	store := NewPairStore("BTCUSDT", 100)
	snapCache := &SnapshotCache{Store: cache.NewShardedCache()}
	bus := events.NewBus()
	states, unsub := bus.Subscribe(events.EventStreamState, 20)
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	var sleeps []time.Duration
	f := &Feed{
		Source:     src,
		Store:      store,
		Cache:      snapCache,
		Bus:        bus,
		MinBackoff: time.Second,
		MaxBackoff: 4 * time.Second,
		sleep: func(_ context.Context, d time.Duration) bool {
			sleeps = append(sleeps, d)
			if len(sleeps) == 4 {
				cancel()
				return false
			}
			return true
		},
	}
	f.Run(ctx)

	// fail -> 1s, batch1 resets -> 1s, batch2 resets -> 1s, empty -> 2s
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second, 2 * time.Second}, sleeps)
	snap := store.Load()
	require.NotNil(t, snap)
	assert.Equal(t, []float64{10, 12}, snap.Closes())
	assert.Equal(t, 12.0, snap.LastPrice)

	cached, err := snapCache.GetSnapshot(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Len(t, cached.Candles, 2)

	first := <-states
	assert.False(t, first.(events.StreamState).Connected)
}

func TestMockSourceProducesUsableData(t *testing.T) {
	m := NewMockSource(1)
	candles, err := m.GetCandles(context.Background(), "BTCUSDT", "1m", 60)
	require.NoError(t, err)
	require.Len(t, candles, 60)
	for i := 1; i < len(candles); i++ {
		assert.True(t, candles[i].OpenTime.After(candles[i-1].OpenTime))
		assert.GreaterOrEqual(t, candles[i].High, candles[i].Low)
	}
	bids, asks, err := m.GetOrderBook(context.Background(), "BTCUSDT", 10)
	require.NoError(t, err)
	assert.Len(t, bids, 10)
	assert.Len(t, asks, 10)
	assert.Less(t, bids[0].Price, asks[0].Price)
}
