package backtest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Jorgeperez0825/botnext/internal/market"
)

// MaxHistory is the largest single kline request the exchange serves.
const MaxHistory = 1000

// LoadHistory fetches the most recent limit candles for symbol.
func LoadHistory(ctx context.Context, src market.DataSource, symbol, interval string, limit int) ([]market.Candle, error) {
	if limit <= 0 || limit > MaxHistory {
		limit = MaxHistory
	}
	symbol = strings.ToUpper(symbol)
	candles, err := src.GetCandles(ctx, symbol, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("load %s %s history: %w", symbol, interval, err)
	}
	candles = market.Normalize(candles, limit)
	if len(candles) == 0 {
		return nil, fmt.Errorf("load %s %s history: %w", symbol, interval, ErrNotEnoughHistory)
	}
	return candles, nil
}

// RangeSource serves closed candles between two instants, paging as needed.
type RangeSource interface {
	GetCandlesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]market.Candle, error)
}

// LoadRange fetches every candle in [start, end).
func LoadRange(ctx context.Context, src RangeSource, symbol, interval string, start, end time.Time) ([]market.Candle, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("load %s range: end %s is not after start %s", symbol, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	symbol = strings.ToUpper(symbol)
	candles, err := src.GetCandlesRange(ctx, symbol, interval, start, end)
	if err != nil {
		return nil, fmt.Errorf("load %s %s range: %w", symbol, interval, err)
	}
	return market.Normalize(candles, 0), nil
}
