package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SystemMetrics tracks bot throughput and latency.
type SystemMetrics struct {
	// Latency histograms
	CycleLatency      *LatencyHistogram
	EvaluationLatency *LatencyHistogram
	OrderLatency      *LatencyHistogram
	StoreLatency      *LatencyHistogram

	// Counters
	cyclesRun        uint64
	ticksProcessed   uint64
	signalsGenerated uint64
	tradesPlaced     uint64
	guardRejections  uint64
	streamReconnects uint64
	errorsCount      uint64

	started time.Time
}

// LatencyHistogram tracks latency samples with sliding window.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool         // Whether samples have changed since last Stats()
	cachedStats LatencyStats // Cached computed stats
}

// NewSystemMetrics creates a new metrics instance.
func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		CycleLatency:      NewLatencyHistogram(500),
		EvaluationLatency: NewLatencyHistogram(1000),
		OrderLatency:      NewLatencyHistogram(500),
		StoreLatency:      NewLatencyHistogram(1000),
		started:           time.Now(),
	}
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		// Shift window: remove oldest
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true // Mark as dirty for lazy recomputation
}

// RecordDuration converts duration to ms and records.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99.
// Uses lazy computation - only recomputes when samples have changed.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Return cached stats if samples haven't changed
	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	// Compute new stats
	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	min, max := sorted[0], sorted[n-1]
	for _, v := range sorted {
		sum += v
	}

	h.cachedStats = LatencyStats{
		Min:   min,
		Max:   max,
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n)*0.95)],
		P99:   sorted[int(float64(n)*0.99)],
		Count: n,
	}
	h.dirty = false

	return h.cachedStats
}

// LatencyStats holds computed latency statistics.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

func (m *SystemMetrics) IncrementCycles()           { atomic.AddUint64(&m.cyclesRun, 1) }
func (m *SystemMetrics) IncrementTicks()            { atomic.AddUint64(&m.ticksProcessed, 1) }
func (m *SystemMetrics) IncrementSignals()          { atomic.AddUint64(&m.signalsGenerated, 1) }
func (m *SystemMetrics) IncrementTrades()           { atomic.AddUint64(&m.tradesPlaced, 1) }
func (m *SystemMetrics) IncrementGuardRejections()  { atomic.AddUint64(&m.guardRejections, 1) }
func (m *SystemMetrics) IncrementStreamReconnects() { atomic.AddUint64(&m.streamReconnects, 1) }
func (m *SystemMetrics) IncrementErrors()           { atomic.AddUint64(&m.errorsCount, 1) }

// MetricsSnapshot is a point-in-time copy served by the dashboard.
type MetricsSnapshot struct {
	CycleLatency      LatencyStats `json:"cycle_latency"`
	EvaluationLatency LatencyStats `json:"evaluation_latency"`
	OrderLatency      LatencyStats `json:"order_latency"`
	StoreLatency      LatencyStats `json:"store_latency"`
	CyclesRun         uint64       `json:"cycles_run"`
	TicksProcessed    uint64       `json:"ticks_processed"`
	SignalsGenerated  uint64       `json:"signals_generated"`
	TradesPlaced      uint64       `json:"trades_placed"`
	GuardRejections   uint64       `json:"guard_rejections"`
	StreamReconnects  uint64       `json:"stream_reconnects"`
	ErrorsCount       uint64       `json:"errors_count"`
	GoroutineCount    int          `json:"goroutine_count"`
	HeapAlloc         uint64       `json:"heap_alloc_bytes"`
	Uptime            string       `json:"uptime"`
	Timestamp         time.Time    `json:"timestamp"`
}

// GetSnapshot returns a point-in-time metrics snapshot.
func (m *SystemMetrics) GetSnapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return MetricsSnapshot{
		CycleLatency:      m.CycleLatency.Stats(),
		EvaluationLatency: m.EvaluationLatency.Stats(),
		OrderLatency:      m.OrderLatency.Stats(),
		StoreLatency:      m.StoreLatency.Stats(),
		CyclesRun:         atomic.LoadUint64(&m.cyclesRun),
		TicksProcessed:    atomic.LoadUint64(&m.ticksProcessed),
		SignalsGenerated:  atomic.LoadUint64(&m.signalsGenerated),
		TradesPlaced:      atomic.LoadUint64(&m.tradesPlaced),
		GuardRejections:   atomic.LoadUint64(&m.guardRejections),
		StreamReconnects:  atomic.LoadUint64(&m.streamReconnects),
		ErrorsCount:       atomic.LoadUint64(&m.errorsCount),
		GoroutineCount:    runtime.NumGoroutine(),
		HeapAlloc:         memStats.HeapAlloc,
		Uptime:            time.Since(m.started).Round(time.Second).String(),
		Timestamp:         time.Now(),
	}
}

// Timer helps measure operation duration.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

// NewTimer creates a timer that records to the given histogram.
func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{
		start:     time.Now(),
		histogram: h,
	}
}

// Stop records elapsed time to histogram.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}
