package risk

import "sync"

// TradeResult is a closed round trip. PnL is already net of fees.
type TradeResult struct {
	Symbol string
	Size   float64
	Price  float64
	PnL    float64
	Fee    float64
}

// Metrics aggregates realized performance.
type Metrics struct {
	Trades           int     `json:"trades"`
	Wins             int     `json:"wins"`
	Losses           int     `json:"losses"`
	TotalRealizedPnL float64 `json:"total_realized_pnl"`
	GrossProfit      float64 `json:"gross_profit"`
	GrossLoss        float64 `json:"gross_loss"`
	BestTrade        float64 `json:"best_trade"`
	WorstTrade       float64 `json:"worst_trade"`
	MaxProfit        float64 `json:"max_profit"`
	MaxDrawdown      float64 `json:"max_drawdown"`
}

func (m Metrics) WinRate() float64 {
	if m.Trades == 0 {
		return 0
	}
	return float64(m.Wins) / float64(m.Trades) * 100
}

func (m Metrics) AvgProfit() float64 {
	if m.Wins == 0 {
		return 0
	}
	return m.GrossProfit / float64(m.Wins)
}

func (m Metrics) AvgLoss() float64 {
	if m.Losses == 0 {
		return 0
	}
	return m.GrossLoss / float64(m.Losses)
}

// Tracker accumulates Metrics from closed trades.
type Tracker struct {
	mu      sync.RWMutex
	metrics Metrics
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Record adds one closed trade. Fee is informational; PnL is not reduced by it again.
func (t *Tracker) Record(r TradeResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := &t.metrics
	if m.Trades == 0 {
		m.BestTrade, m.WorstTrade = r.PnL, r.PnL
	}
	m.Trades++
	m.TotalRealizedPnL += r.PnL
	switch {
	case r.PnL > 0:
		m.Wins++
		m.GrossProfit += r.PnL
	case r.PnL < 0:
		m.Losses++
		m.GrossLoss += -r.PnL
	}
	m.BestTrade = max(m.BestTrade, r.PnL)
	m.WorstTrade = min(m.WorstTrade, r.PnL)

	if m.TotalRealizedPnL > m.MaxProfit {
		m.MaxProfit = m.TotalRealizedPnL
	}
	if dd := m.MaxProfit - m.TotalRealizedPnL; dd > m.MaxDrawdown {
		m.MaxDrawdown = dd
	}
}

func (t *Tracker) Snapshot() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.metrics
}
