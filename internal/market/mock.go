package market

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// MockSource generates a synthetic random walk for local development and dry runs
// without network access.
type MockSource struct {
	StartPrice float64
	Step       float64 // max relative move per candle, e.g. 0.002
	Period     time.Duration
	TickEvery  time.Duration
	Levels     int

	mu    sync.Mutex
	rng   *rand.Rand
	price map[string]float64
}

func NewMockSource(seed int64) *MockSource {
	return &MockSource{
		StartPrice: 100,
		Step:       0.002,
		Period:     time.Minute,
		TickEvery:  time.Second,
		Levels:     20,
		rng:        rand.New(rand.NewSource(seed)),
		price:      make(map[string]float64),
	}
}

var _ DataSource = (*MockSource)(nil)

func (m *MockSource) next(symbol string) float64 {
	p, ok := m.price[symbol]
	if !ok {
		p = m.StartPrice
	}
	p *= 1 + (m.rng.Float64()*2-1)*m.Step
	m.price[symbol] = p
	return p
}

func (m *MockSource) candle(symbol string, open time.Time) Candle {
	o := m.price[symbol]
	if o == 0 {
		o = m.StartPrice
	}
	c := m.next(symbol)
	hi, lo := max(o, c), min(o, c)
	return Candle{
		OpenTime: open,
		Open:     o,
		High:     hi * (1 + m.Step/2),
		Low:      lo * (1 - m.Step/2),
		Close:    c,
		Volume:   50 + m.rng.Float64()*100,
	}
}

func (m *MockSource) GetCandles(_ context.Context, symbol, _ string, limit int) ([]Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := time.Now().Truncate(m.Period)
	out := make([]Candle, 0, limit)
	for i := limit; i > 0; i-- {
		out = append(out, m.candle(symbol, end.Add(-time.Duration(i)*m.Period)))
	}
	return out, nil
}

// StreamCandles emits a closed candle every TickEvery, each one Period after the last.
func (m *MockSource) StreamCandles(ctx context.Context, symbol, _ string) (<-chan CandleUpdate, func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan CandleUpdate, 16)
	go func() {
		defer close(out)
		t := time.NewTicker(m.TickEvery)
		defer t.Stop()
		open := time.Now().Truncate(m.Period)
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.mu.Lock()
				c := m.candle(symbol, open)
				m.mu.Unlock()
				open = open.Add(m.Period)
				select {
				case out <- CandleUpdate{Symbol: symbol, Candle: c, Closed: true}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, cancel, nil
}

// GetOrderBook builds a symmetric book around the current price with random sizes.
func (m *MockSource) GetOrderBook(_ context.Context, symbol string, depth int) ([]Level, []Level, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.price[symbol]
	if p == 0 {
		p = m.StartPrice
	}
	n := m.Levels
	if depth > 0 && depth < n {
		n = depth
	}
	tick := p * 0.0001
	bids := make([]Level, n)
	asks := make([]Level, n)
	for i := 0; i < n; i++ {
		bids[i] = Level{Price: p - tick*float64(i+1), Qty: 0.5 + m.rng.Float64()}
		asks[i] = Level{Price: p + tick*float64(i+1), Qty: 0.5 + m.rng.Float64()}
	}
	return bids, asks, nil
}
