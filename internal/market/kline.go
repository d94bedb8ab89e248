package market

import (
	"context"
	"fmt"
	"time"

	marketpkg "github.com/Jorgeperez0825/botnext/pkg/market/binance"
)

// FromKline converts an exchange kline into a Candle.
func FromKline(k marketpkg.Kline) Candle {
	return Candle{
		OpenTime: time.UnixMilli(k.OpenTime).UTC(),
		Open:     k.Open,
		High:     k.High,
		Low:      k.Low,
		Close:    k.Close,
		Volume:   k.Volume,
	}
}

func toLevels(rows [][2]float64) []Level {
	out := make([]Level, len(rows))
	for i, r := range rows {
		out[i] = Level{Price: r[0], Qty: r[1]}
	}
	return out
}

// BinanceSource adapts the Binance REST and websocket clients to DataSource.
type BinanceSource struct {
	REST   *marketpkg.Client
	Stream *marketpkg.StreamClient
}

var _ DataSource = (*BinanceSource)(nil)

// GetCandles returns closed candles only; the forming bucket is left to the stream.
func (b *BinanceSource) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	klines, err := b.REST.GetKlines(ctx, symbol, interval, limit, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("get candles %s: %w", symbol, err)
	}
	out := make([]Candle, 0, len(klines))
	for _, k := range klines {
		if k.Closed {
			out = append(out, FromKline(k))
		}
	}
	return out, nil
}

// GetCandlesRange pages through closed candles between start and end, used for backtests.
func (b *BinanceSource) GetCandlesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]Candle, error) {
	const page = 1000
	var out []Candle
	cursor := start.UnixMilli()
	for cursor < end.UnixMilli() {
		klines, err := b.REST.GetKlines(ctx, symbol, interval, page, cursor, end.UnixMilli())
		if err != nil {
			return nil, fmt.Errorf("get candles %s: %w", symbol, err)
		}
		if len(klines) == 0 {
			break
		}
		for _, k := range klines {
			if k.Closed {
				out = append(out, FromKline(k))
			}
		}
		last := klines[len(klines)-1].OpenTime
		if last < cursor {
			break
		}
		cursor = last + 1
		if len(klines) < page {
			break
		}
	}
	return out, nil
}

func (b *BinanceSource) StreamCandles(ctx context.Context, symbol, interval string) (<-chan CandleUpdate, func(), error) {
	in, stop, err := b.Stream.SubscribeKlines(ctx, symbol, interval)
	if err != nil {
		return nil, nil, err
	}
	out := make(chan CandleUpdate, cap(in))
	go func() {
		defer close(out)
		for k := range in {
			select {
			case out <- CandleUpdate{Symbol: k.Symbol, Candle: FromKline(k), Closed: k.Closed}:
			case <-ctx.Done():
				stop()
				return
			}
		}
	}()
	return out, stop, nil
}

func (b *BinanceSource) GetOrderBook(ctx context.Context, symbol string, depth int) ([]Level, []Level, error) {
	d, err := b.REST.GetDepth(ctx, symbol, depth)
	if err != nil {
		return nil, nil, fmt.Errorf("order book %s: %w", symbol, err)
	}
	return toLevels(d.Bids), toLevels(d.Asks), nil
}
