package persistence

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Jorgeperez0825/botnext/pkg/db"
)

// ConditionSink stores a batch of classifier audit rows.
type ConditionSink interface {
	AppendConditions(ctx context.Context, rows []db.MarketCondition) error
}

// BatchWriter buffers market condition rows and writes them in one
// transaction when the buffer fills or the flush interval elapses.
type BatchWriter struct {
	sink        ConditionSink
	logger      logrus.FieldLogger
	buffer      []db.MarketCondition
	mu          sync.Mutex
	maxSize     int
	flushIntval time.Duration
	timeout     time.Duration
	done        chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup

	totalWrites  atomic.Uint64
	totalBatches atomic.Uint64
	totalErrors  atomic.Uint64
	lastBatch    atomic.Int64
}

// BatchWriterMetrics provides statistics about batch operations.
type BatchWriterMetrics struct {
	TotalWrites   uint64 `json:"total_writes"`
	TotalBatches  uint64 `json:"total_batches"`
	TotalErrors   uint64 `json:"total_errors"`
	LastBatchSize int    `json:"last_batch_size"`
	Pending       int    `json:"pending"`
}

// NewBatchWriter starts the background flusher. maxSize and interval fall
// back to 50 rows and 5s.
func NewBatchWriter(sink ConditionSink, maxSize int, interval time.Duration, logger logrus.FieldLogger) *BatchWriter {
	if maxSize <= 0 {
		maxSize = 50
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	bw := &BatchWriter{
		sink:        sink,
		logger:      logger.WithField("component", "batch_writer"),
		buffer:      make([]db.MarketCondition, 0, maxSize),
		maxSize:     maxSize,
		flushIntval: interval,
		timeout:     10 * time.Second,
		done:        make(chan struct{}),
	}

	bw.wg.Add(1)
	go bw.backgroundFlush()

	return bw
}

// Write queues one row. It never blocks on the database unless the buffer
// is full.
func (bw *BatchWriter) Write(row db.MarketCondition) {
	bw.mu.Lock()
	bw.buffer = append(bw.buffer, row)
	shouldFlush := len(bw.buffer) >= bw.maxSize
	bw.mu.Unlock()

	if shouldFlush {
		_ = bw.Flush()
	}
}

// Flush immediately writes all buffered rows. Rows from a failed batch are
// dropped; the table is an audit trail, not trading state.
func (bw *BatchWriter) Flush() error {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return nil
	}
	rows := bw.buffer
	bw.buffer = make([]db.MarketCondition, 0, bw.maxSize)
	bw.mu.Unlock()

	bw.totalWrites.Add(uint64(len(rows)))
	bw.totalBatches.Add(1)
	bw.lastBatch.Store(int64(len(rows)))

	ctx, cancel := context.WithTimeout(context.Background(), bw.timeout)
	defer cancel()
	if err := bw.sink.AppendConditions(ctx, rows); err != nil {
		bw.totalErrors.Add(1)
		bw.logger.WithError(err).WithField("rows", len(rows)).Warn("condition batch failed")
		return err
	}
	bw.logger.WithField("rows", len(rows)).Debug("condition batch flushed")
	return nil
}

func (bw *BatchWriter) backgroundFlush() {
	defer bw.wg.Done()
	ticker := time.NewTicker(bw.flushIntval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = bw.Flush()
		case <-bw.done:
			_ = bw.Flush()
			return
		}
	}
}

// Pending returns the number of buffered rows.
func (bw *BatchWriter) Pending() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

func (bw *BatchWriter) GetMetrics() BatchWriterMetrics {
	return BatchWriterMetrics{
		TotalWrites:   bw.totalWrites.Load(),
		TotalBatches:  bw.totalBatches.Load(),
		TotalErrors:   bw.totalErrors.Load(),
		LastBatchSize: int(bw.lastBatch.Load()),
		Pending:       bw.Pending(),
	}
}

// Close stops the flusher after a final flush. Safe to call twice.
func (bw *BatchWriter) Close() error {
	bw.closeOnce.Do(func() { close(bw.done) })
	bw.wg.Wait()
	return nil
}
