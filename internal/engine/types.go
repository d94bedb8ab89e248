package engine

import (
	"context"
	"errors"
	"time"

	"github.com/Jorgeperez0825/botnext/internal/market"
	"github.com/Jorgeperez0825/botnext/internal/risk"
	"github.com/Jorgeperez0825/botnext/internal/state"
	"github.com/Jorgeperez0825/botnext/internal/strategy"
	"github.com/Jorgeperez0825/botnext/pkg/db"
)

var (
	ErrUnknownPair  = errors.New("pair is not configured")
	ErrNoMarketData = errors.New("no market data")
)

// Store is the signal and trade history the driver appends to.
type Store interface {
	AppendSignal(ctx context.Context, s db.Signal) error
	AppendTrade(ctx context.Context, t db.Trade) error
	RecentSignals(ctx context.Context, symbol string, n int) ([]db.Signal, error)
	RecentTrades(ctx context.Context, symbol string, n int) ([]db.Trade, error)
	Performance(ctx context.Context) (db.Performance, error)
}

// SnapshotCache mirrors pair snapshots outside the process.
type SnapshotCache interface {
	GetSnapshot(ctx context.Context, symbol string) (*market.Snapshot, error)
	PutSnapshot(ctx context.Context, snap *market.Snapshot) error
}

// ConditionWriter archives classifier output.
type ConditionWriter interface {
	Write(row db.MarketCondition)
}

// Timeouts bounds every external call made during a cycle.
type Timeouts struct {
	REST      time.Duration
	OrderBook time.Duration
	Order     time.Duration
	Sentiment time.Duration
	Store     time.Duration
}

// Config holds the driver parameters. Constants that differed between bot
// variants live here rather than in code.
type Config struct {
	Pairs               []string
	Interval            string
	CycleInterval       time.Duration
	WarmupCandles       int
	MaxCandles          int
	StaleAfter          time.Duration
	OrderBookDepth      int
	InvestmentAmount    float64
	MaxConcurrentTrades int
	MinConfidence       float64
	Stream              bool
	DryRun              bool
	Timeouts            Timeouts
}

// Status is the dashboard summary.
type Status struct {
	Running          bool                `json:"running"`
	Paused           bool                `json:"paused"`
	DryRun           bool                `json:"dryRun"`
	Pairs            []string            `json:"pairs"`
	Balance          map[string]float64  `json:"balance"`
	ActiveTrades     []state.ActiveTrade `json:"activeTrades"`
	WinRate          float64             `json:"winRate"`
	AvgTradeDuration float64             `json:"avgTradeDuration"`
	Session          risk.Metrics        `json:"session"`
	LastCycle        time.Time           `json:"lastCycle"`
	ServerTime       time.Time           `json:"serverTime"`
}

// PairStatus is the latest view of one pair.
type PairStatus struct {
	Symbol      string                `json:"symbol"`
	LastPrice   float64               `json:"lastPrice"`
	Candles     int                   `json:"candles"`
	LastUpdate  time.Time             `json:"lastUpdate"`
	LastSignal  *strategy.TradeSignal `json:"lastSignal,omitempty"`
	LastError   string                `json:"lastError,omitempty"`
	ActiveTrade *state.ActiveTrade    `json:"activeTrade,omitempty"`
}
