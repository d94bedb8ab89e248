package monitor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Jorgeperez0825/botnext/internal/events"
)

func TestLatencyHistogramSlidingWindow(t *testing.T) {
	h := NewLatencyHistogram(3)
	for _, v := range []float64{10, 20, 30, 40} {
		h.Record(v)
	}
	s := h.Stats()
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, 20.0, s.Min)
	assert.Equal(t, 40.0, s.Max)
	assert.InDelta(t, 30.0, s.Avg, 1e-9)
}

func TestCountersAreConcurrentSafe(t *testing.T) {
	m := NewSystemMetrics()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncrementSignals()
			m.IncrementTicks()
		}()
	}
	wg.Wait()
	snap := m.GetSnapshot()
	assert.Equal(t, uint64(50), snap.SignalsGenerated)
	assert.Equal(t, uint64(50), snap.TicksProcessed)
}

func TestTimerRecords(t *testing.T) {
	h := NewLatencyHistogram(10)
	timer := NewTimer(h)
	time.Sleep(time.Millisecond)
	assert.Greater(t, timer.Stop(), time.Duration(0))
	assert.Equal(t, 1, h.Stats().Count)
}

type captureSink struct {
	mu   sync.Mutex
	msgs []string
}

func (c *captureSink) Send(msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func TestMonitorHandleCountsAndForwards(t *testing.T) {
	sink := &captureSink{}
	m := &Monitor{Metrics: NewSystemMetrics(), Sink: sink}

	m.handle(events.EventGuardRejected, events.Alert{Symbol: "BTCUSDT", Stage: "guard", Message: "below min notional"})
	m.handle(events.EventStreamState, events.StreamState{Symbol: "BTCUSDT", Connected: false, Error: "eof", Backoff: time.Second})

	snap := m.Metrics.GetSnapshot()
	assert.Equal(t, uint64(1), snap.GuardRejections)
	assert.Equal(t, uint64(1), snap.StreamReconnects)
	assert.Len(t, sink.msgs, 2)
	assert.Contains(t, sink.msgs[0], "below min notional")
	assert.Contains(t, sink.msgs[1], "retry in 1s")
}
