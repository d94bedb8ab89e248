// Package engine runs the per-pair trading cycle and exposes a read model
// for the control API.
package engine

import (
	"context"

	"github.com/Jorgeperez0825/botnext/internal/monitor"
	"github.com/Jorgeperez0825/botnext/internal/strategy"
	"github.com/Jorgeperez0825/botnext/pkg/db"
)

// Service is everything the API layer may do with the engine.
type Service interface {
	// Commands
	Pause()
	Resume()
	EvaluatePair(ctx context.Context, pair string) (strategy.TradeSignal, error)

	// Queries
	Status(ctx context.Context) Status
	Pairs() []PairStatus
	Prices() map[string]float64
	RecentSignals(ctx context.Context, symbol string, n int) ([]db.Signal, error)
	RecentTrades(ctx context.Context, symbol string, n int) ([]db.Trade, error)
	Performance(ctx context.Context) (db.Performance, error)
	MetricsSnapshot() monitor.MetricsSnapshot
}

var _ Service = (*Driver)(nil)
