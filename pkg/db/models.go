package db

import "time"

// Signal is one evaluation outcome, persisted whatever the action.
type Signal struct {
	ID                 string
	Symbol             string
	Action             string
	Confidence         float64
	Score              float64
	Threshold          float64
	Technical          float64
	Market             float64
	OrderBook          float64
	Sentiment          float64
	SentimentAvailable bool
	Volatility         float64
	Reason             string
	CreatedAt          time.Time
}

// Trade is an executed market order. Rows are never updated.
type Trade struct {
	ID              string
	SignalID        string
	Symbol          string
	Side            string
	Quantity        float64
	Price           float64
	TotalValue      float64
	Fee             float64
	ExchangeOrderID string
	Status          string
	// RealizedPnL and HoldSeconds are set on exits only.
	RealizedPnL float64
	HoldSeconds float64
	Reason      string
	CreatedAt   time.Time
}

// MarketCondition is an audit row of a classifier result.
type MarketCondition struct {
	Symbol       string
	Trend        string
	Strength     float64
	Volatility   float64
	VolumeRegime string
	Support      float64
	Resistance   float64
	Degraded     bool
	CreatedAt    time.Time
}

// Performance aggregates realized results over exit trades.
type Performance struct {
	TradeCount      int     `json:"tradeCount"`
	ClosedTrades    int     `json:"closedTrades"`
	Wins            int     `json:"wins"`
	TotalProfitLoss float64 `json:"totalProfitLoss"`
	BestTrade       float64 `json:"bestTrade"`
	WorstTrade      float64 `json:"worstTrade"`
	AvgHoldSeconds  float64 `json:"avgTradeDurationSeconds"`
	WinRate         float64 `json:"winRate"`
}
