package risk

import (
	"fmt"
	"sync"
	"time"
)

// ExitMonitor tracks open long positions and reports when price crosses the
// stop-loss or take-profit level derived from the entry.
type ExitMonitor struct {
	MaxLossPercent   float64
	MinProfitPercent float64

	positions map[string]*ExitPosition
	mu        sync.RWMutex
}

// ExitPosition is one tracked entry.
type ExitPosition struct {
	Symbol     string
	EntryPrice float64
	Quantity   float64
	StopLoss   float64
	TakeProfit float64
	OpenedAt   time.Time
}

// ExitDecision is returned when a level is crossed.
type ExitDecision struct {
	Symbol        string
	Reason        string
	Price         float64
	Quantity      float64
	ChangePercent float64
	StopLoss      bool
}

func NewExitMonitor(maxLossPercent, minProfitPercent float64) *ExitMonitor {
	return &ExitMonitor{
		MaxLossPercent:   maxLossPercent,
		MinProfitPercent: minProfitPercent,
		positions:        make(map[string]*ExitPosition),
	}
}

// Track starts monitoring a filled BUY, replacing any previous entry.
func (m *ExitMonitor) Track(symbol string, entry, qty float64, at time.Time) ExitPosition {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos := &ExitPosition{
		Symbol:     symbol,
		EntryPrice: entry,
		Quantity:   qty,
		StopLoss:   entry * (1 - m.MaxLossPercent/100),
		TakeProfit: entry * (1 + m.MinProfitPercent/100),
		OpenedAt:   at,
	}
	m.positions[symbol] = pos
	return *pos
}

// Check compares price against the tracked levels. It does not untrack; the
// caller does that once the exit order fills.
func (m *ExitMonitor) Check(symbol string, price float64) *ExitDecision {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pos, ok := m.positions[symbol]
	if !ok || pos.EntryPrice <= 0 || price <= 0 {
		return nil
	}
	change := (price - pos.EntryPrice) / pos.EntryPrice * 100

	switch {
	case m.MaxLossPercent > 0 && price <= pos.StopLoss:
		return &ExitDecision{
			Symbol: symbol, Price: price, Quantity: pos.Quantity, ChangePercent: change, StopLoss: true,
			Reason: fmt.Sprintf("stop loss at %.4f (%.2f%%)", price, change),
		}
	case m.MinProfitPercent > 0 && price >= pos.TakeProfit:
		return &ExitDecision{
			Symbol: symbol, Price: price, Quantity: pos.Quantity, ChangePercent: change,
			Reason: fmt.Sprintf("take profit at %.4f (%.2f%%)", price, change),
		}
	}
	return nil
}

func (m *ExitMonitor) Untrack(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, symbol)
}

func (m *ExitMonitor) Position(symbol string) (ExitPosition, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.positions[symbol]
	if !ok {
		return ExitPosition{}, false
	}
	return *pos, true
}

// Positions returns a copy of every tracked entry.
func (m *ExitMonitor) Positions() map[string]ExitPosition {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]ExitPosition, len(m.positions))
	for k, v := range m.positions {
		result[k] = *v
	}
	return result
}
