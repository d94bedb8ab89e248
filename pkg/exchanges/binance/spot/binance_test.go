package spot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jorgeperez0825/botnext/pkg/exchanges/common"
	market "github.com/Jorgeperez0825/botnext/pkg/market/binance"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/time":
			_, _ = w.Write([]byte(`{"serverTime":1700000000000}`))
		case "/api/v3/exchangeInfo":
			_, _ = w.Write([]byte(`{"symbols":[{"symbol":"BTCUSDT","baseAsset":"BTC","quoteAsset":"USDT","filters":[{"filterType":"LOT_SIZE","minQty":"0.0001","maxQty":"100","stepSize":"0.0001"},{"filterType":"MIN_NOTIONAL","minNotional":"10"}]}]}`))
		case "/api/v3/account":
			assert.Equal(t, "key", r.Header.Get("X-MBX-APIKEY"))
			assert.NotEmpty(t, r.URL.Query().Get("signature"))
			_, _ = w.Write([]byte(`{"canTrade":true,"balances":[{"asset":"USDT","free":"25.5","locked":"1"},{"asset":"BTC","free":"0.01","locked":"0"}]}`))
		case "/api/v3/order":
			assert.NoError(t, r.ParseForm())
			if r.PostForm.Get("quantity") == "9" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"code":-2010,"msg":"Account has insufficient balance for requested action."}`))
				return
			}
			assert.Equal(t, "MARKET", r.PostForm.Get("type"))
			assert.Equal(t, "0.3", r.PostForm.Get("quantity"))
			_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","orderId":42,"clientOrderId":"abc","transactTime":1700000000000,"executedQty":"0.3","cummulativeQuoteQty":"30","status":"FILLED"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestGatewayOperations(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	c := New(Config{APIKey: "key", APISecret: "secret"}, market.NewClient(srv.URL, false))
	ctx := context.Background()

	rules, err := c.GetTradingRules(ctx, "btcusdt")
	require.NoError(t, err)
	assert.Equal(t, "USDT", rules.QuoteAsset)
	assert.InDelta(t, 0.0001, rules.StepSize, 1e-12)
	assert.InDelta(t, 10.0, rules.MinNotional, 1e-9)

	bal, err := c.GetBalance(ctx, "usdt")
	require.NoError(t, err)
	assert.InDelta(t, 25.5, bal.Free, 1e-9)
	assert.InDelta(t, 1.0, bal.Locked, 1e-9)

	missing, err := c.GetBalance(ctx, "ETH")
	require.NoError(t, err)
	assert.Zero(t, missing.Free)

	res, err := c.PlaceMarketOrder(ctx, common.OrderRequest{Symbol: "BTCUSDT", Side: common.SideBuy, Qty: 0.1 + 0.2})
	require.NoError(t, err)
	assert.Equal(t, "42", res.ExchangeOrderID)
	assert.Equal(t, common.StatusFilled, res.Status)
	assert.InDelta(t, 100.0, res.AvgPrice(), 1e-9)

	_, err = c.PlaceMarketOrder(ctx, common.OrderRequest{Symbol: "BTCUSDT", Side: common.SideBuy, Qty: 9})
	assert.ErrorIs(t, err, common.ErrInsufficientBalance)
}

func TestPlaceMarketOrderRequiresCredentials(t *testing.T) {
	c := New(Config{}, market.NewClient("http://127.0.0.1:0", false))
	_, err := c.PlaceMarketOrder(context.Background(), common.OrderRequest{Symbol: "BTCUSDT", Side: common.SideBuy, Qty: 1})
	assert.Error(t, err)

	c = New(Config{APIKey: "k", APISecret: "s"}, market.NewClient("http://127.0.0.1:0", false))
	_, err = c.PlaceMarketOrder(context.Background(), common.OrderRequest{Symbol: "BTCUSDT", Qty: 0})
	assert.ErrorIs(t, err, common.ErrInvalidQuantity)
}

func TestSignIsHexHMAC(t *testing.T) {
	sig := sign("symbol=BTCUSDT", "secret")
	assert.Len(t, sig, 64)
	assert.Equal(t, strings.ToLower(sig), sig)
}
