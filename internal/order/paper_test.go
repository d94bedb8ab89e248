package order

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exchange "github.com/Jorgeperez0825/botnext/pkg/exchanges/common"
)

func fixedPrice(v float64) PriceFunc {
	return func(string) (float64, bool) { return v, true }
}

func TestPaperBuyThenSell(t *testing.T) {
	ctx := context.Background()
	p := NewPaperExchange(PaperConfig{InitialQuote: 1000, FeeRate: 0.001}, fixedPrice(100))

	res, err := p.PlaceMarketOrder(ctx, exchange.OrderRequest{Symbol: "BTCUSDT", Side: exchange.SideBuy, Qty: 2, ClientID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, exchange.StatusFilled, res.Status)
	assert.Equal(t, "c1", res.ClientID)
	assert.InDelta(t, 100, res.AvgPrice(), 1e-9)

	usdt, _ := p.GetBalance(ctx, "usdt")
	btc, _ := p.GetBalance(ctx, "BTC")
	assert.InDelta(t, 1000-200-0.2, usdt.Free, 1e-9)
	assert.InDelta(t, 2, btc.Free, 1e-12)

	_, err = p.PlaceMarketOrder(ctx, exchange.OrderRequest{Symbol: "BTCUSDT", Side: exchange.SideSell, Qty: 2})
	require.NoError(t, err)
	usdt, _ = p.GetBalance(ctx, "USDT")
	assert.InDelta(t, 999.6, usdt.Free, 1e-9)
	assert.NotContains(t, p.Balances(), "BTC")
}

func TestPaperSlippageMovesAgainstTaker(t *testing.T) {
	ctx := context.Background()
	p := NewPaperExchange(PaperConfig{InitialQuote: 1000, SlippageBps: 10}, fixedPrice(100))

	buy, err := p.PlaceMarketOrder(ctx, exchange.OrderRequest{Symbol: "ETHUSDT", Side: exchange.SideBuy, Qty: 1})
	require.NoError(t, err)
	assert.InDelta(t, 100.1, buy.AvgPrice(), 1e-9)

	sell, err := p.PlaceMarketOrder(ctx, exchange.OrderRequest{Symbol: "ETHUSDT", Side: exchange.SideSell, Qty: 1})
	require.NoError(t, err)
	assert.InDelta(t, 99.9, sell.AvgPrice(), 1e-9)
	assert.NotEqual(t, buy.ExchangeOrderID, sell.ExchangeOrderID)
}

func TestPaperRejections(t *testing.T) {
	ctx := context.Background()
	p := NewPaperExchange(PaperConfig{InitialQuote: 10}, fixedPrice(100))

	_, err := p.PlaceMarketOrder(ctx, exchange.OrderRequest{Symbol: "BTCUSDT", Side: exchange.SideBuy, Qty: 1})
	assert.ErrorIs(t, err, exchange.ErrInsufficientBalance)

	_, err = p.PlaceMarketOrder(ctx, exchange.OrderRequest{Symbol: "BTCUSDT", Side: exchange.SideSell, Qty: 1})
	assert.ErrorIs(t, err, exchange.ErrInsufficientBalance)

	_, err = p.PlaceMarketOrder(ctx, exchange.OrderRequest{Symbol: "BTCUSDT", Side: exchange.SideBuy, Qty: 0})
	assert.ErrorIs(t, err, exchange.ErrInvalidQuantity)

	noPrice := NewPaperExchange(PaperConfig{InitialQuote: 10}, nil)
	_, err = noPrice.PlaceMarketOrder(ctx, exchange.OrderRequest{Symbol: "BTCUSDT", Side: exchange.SideBuy, Qty: 0.01})
	assert.ErrorIs(t, err, exchange.ErrExchangeRejected)
}

func TestPaperRules(t *testing.T) {
	ctx := context.Background()
	p := NewPaperExchange(PaperConfig{}, nil)

	r, err := p.GetTradingRules(ctx, "solusdt")
	require.NoError(t, err)
	assert.Equal(t, "SOL", r.BaseAsset)
	assert.Equal(t, "USDT", r.QuoteAsset)

	p.SetRules(exchange.TradingRules{Symbol: "SOLUSDT", BaseAsset: "SOL", QuoteAsset: "USDT", MinQty: 0.1, StepSize: 0.1})
	r, _ = p.GetTradingRules(ctx, "SOLUSDT")
	assert.InDelta(t, 0.1, r.MinQty, 1e-12)
}
