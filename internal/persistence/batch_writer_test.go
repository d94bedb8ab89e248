package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jorgeperez0825/botnext/pkg/db"
	"github.com/Jorgeperez0825/botnext/pkg/logging"
)

type recordingSink struct {
	mu      sync.Mutex
	batches [][]db.MarketCondition
	err     error
}

func (s *recordingSink) AppendConditions(_ context.Context, rows []db.MarketCondition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, rows)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func TestBatchWriterFlushesWhenFull(t *testing.T) {
	sink := &recordingSink{}
	bw := NewBatchWriter(sink, 2, time.Hour, logging.Discard())
	defer bw.Close()

	bw.Write(db.MarketCondition{Symbol: "BTCUSDT"})
	assert.Equal(t, 1, bw.Pending())
	bw.Write(db.MarketCondition{Symbol: "ETHUSDT"})

	assert.Equal(t, 0, bw.Pending())
	require.Equal(t, 1, sink.count())
	assert.Len(t, sink.batches[0], 2)

	m := bw.GetMetrics()
	assert.Equal(t, uint64(2), m.TotalWrites)
	assert.Equal(t, 2, m.LastBatchSize)
}

func TestBatchWriterFlushesOnInterval(t *testing.T) {
	sink := &recordingSink{}
	bw := NewBatchWriter(sink, 100, 10*time.Millisecond, logging.Discard())
	defer bw.Close()

	bw.Write(db.MarketCondition{Symbol: "BTCUSDT"})
	assert.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestBatchWriterCloseFlushesAndCountsErrors(t *testing.T) {
	sink := &recordingSink{err: errors.New("locked")}
	bw := NewBatchWriter(sink, 100, time.Hour, logging.Discard())

	bw.Write(db.MarketCondition{Symbol: "BTCUSDT"})
	require.NoError(t, bw.Close())
	require.NoError(t, bw.Close())

	assert.Equal(t, 1, sink.count())
	assert.Equal(t, uint64(1), bw.GetMetrics().TotalErrors)
}

func TestBatchWriterWritesToSQLite(t *testing.T) {
	d, err := db.New(":memory:")
	require.NoError(t, err)
	defer d.Close()
	require.NoError(t, db.ApplyMigrations(d))

	bw := NewBatchWriter(d, 10, time.Hour, logging.Discard())
	bw.Write(db.MarketCondition{Symbol: "BTCUSDT", Trend: "bullish", VolumeRegime: "normal", CreatedAt: time.Now()})
	require.NoError(t, bw.Close())

	var n int
	require.NoError(t, d.DB.QueryRow(`SELECT COUNT(*) FROM market_conditions`).Scan(&n))
	assert.Equal(t, 1, n)
}
