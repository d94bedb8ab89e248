package market

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jorgeperez0825/botnext/pkg/exchanges/common"
)

func TestParseKlineMessageClosedFlag(t *testing.T) {
	msg := []byte(`{"e":"kline","E":1,"s":"BTCUSDT","k":{"t":1700000000000,"T":1700000059999,"s":"BTCUSDT","i":"1m","o":"100.0","c":"101.5","h":"102","l":"99.5","v":"12.5","q":"1260","n":42,"x":true}}`)
	k, err := parseKlineMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", k.Symbol)
	assert.Equal(t, int64(1700000000000), k.OpenTime)
	assert.InDelta(t, 101.5, k.Close, 1e-9)
	assert.InDelta(t, 12.5, k.Volume, 1e-9)
	assert.Equal(t, 42, k.Trades)
	assert.True(t, k.Closed)

	_, err = parseKlineMessage([]byte(`{"e":"trade"}`))
	assert.Error(t, err)
}

func TestGetKlinesAndDepth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/klines":
			assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
			assert.Equal(t, "1m", r.URL.Query().Get("interval"))
			w.Header().Set("X-MBX-USED-WEIGHT-1M", "12")
			_, _ = w.Write([]byte(`[[1000,"1","2","0.5","1.5","10",59999,"15",3,"5","7","0"],[61000,"1.5","2","1","1.8","4",9999999999999,"7",1,"2","3","0"]]`))
		case "/api/v3/depth":
			_, _ = w.Write([]byte(`{"lastUpdateId":7,"bids":[["100.0","1.5"],["99.9","2"]],"asks":[["100.1","3"]]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, false)
	klines, err := c.GetKlines(context.Background(), "btcusdt", "1m", 2, 0, 0)
	require.NoError(t, err)
	require.Len(t, klines, 2)
	assert.True(t, klines[0].Closed)
	assert.False(t, klines[1].Closed)
	assert.InDelta(t, 1.5, klines[0].Close, 1e-9)
	used, _, _ := c.RateLimiter.GetUsage()
	assert.Equal(t, 12, used)

	depth, err := c.GetDepth(context.Background(), "BTCUSDT", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(7), depth.LastUpdateID)
	assert.Equal(t, [2]float64{100.0, 1.5}, depth.Bids[0])
	assert.Len(t, depth.Asks, 1)
}

func TestRateLimitedResponseIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"code":-1003,"msg":"Too many requests"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, false).GetDepth(context.Background(), "BTCUSDT", 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrRateLimited))
	assert.True(t, common.IsTransient(err))
}

func TestParseSymbolInfoFilters(t *testing.T) {
	body := []byte(`{"symbols":[{"symbol":"BTCUSDT","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDT","filters":[
		{"filterType":"PRICE_FILTER","tickSize":"0.01"},
		{"filterType":"LOT_SIZE","minQty":"0.00001","maxQty":"9000","stepSize":"0.00001"},
		{"filterType":"NOTIONAL","minNotional":"10.0"}]}]}`)
	info, err := parseSymbolInfo(body, "btcusdt")
	require.NoError(t, err)
	assert.Equal(t, "BTC", info.BaseAsset)
	assert.InDelta(t, 0.00001, info.StepSize, 1e-12)
	assert.InDelta(t, 10.0, info.MinNotional, 1e-9)

	_, err = parseSymbolInfo(body, "ETHUSDT")
	assert.Error(t, err)
}

func TestSubscribeKlinesStreamsUntilStopped(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/ws/btcusdt@kline_1m"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"e":"kline","k":{"t":60000,"T":119999,"s":"BTCUSDT","o":"1","c":"2","h":"2","l":"1","v":"3","x":false}}`))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := NewStreamClient(wsURL, false, nil)
	ch, stop, err := c.SubscribeKlines(context.Background(), "BTCUSDT", "1m")
	require.NoError(t, err)

	select {
	case k := <-ch:
		assert.Equal(t, int64(60000), k.OpenTime)
		assert.False(t, k.Closed)
	case <-time.After(2 * time.Second):
		t.Fatal("no kline received")
	}

	stop()
	for range ch {
	}
}
