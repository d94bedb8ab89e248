package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jorgeperez0825/botnext/internal/engine"
	"github.com/Jorgeperez0825/botnext/internal/events"
	"github.com/Jorgeperez0825/botnext/internal/monitor"
	"github.com/Jorgeperez0825/botnext/internal/strategy"
	"github.com/Jorgeperez0825/botnext/pkg/db"
)

type fakeEngine struct {
	mu         sync.Mutex
	paused     bool
	lastSymbol string
	lastLimit  int
	storeErr   error
	evaluated  []string
}

func (f *fakeEngine) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = true
}

func (f *fakeEngine) Resume() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = false
}

func (f *fakeEngine) isPaused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

func (f *fakeEngine) lastQuery() (string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSymbol, f.lastLimit
}

func (f *fakeEngine) failStore(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.storeErr = err
}

func (f *fakeEngine) evaluatedPairs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.evaluated...)
}

func (f *fakeEngine) EvaluatePair(_ context.Context, pair string) (strategy.TradeSignal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evaluated = append(f.evaluated, pair)
	switch pair {
	case "BTCUSDT":
		return strategy.TradeSignal{ID: "sig-1", Symbol: pair, Action: strategy.ActionBuy, Confidence: 0.7}, nil
	case "ETHUSDT":
		return strategy.ErrorSignal(pair, "no market data", time.Now()), engine.ErrNoMarketData
	}
	return strategy.TradeSignal{}, fmt.Errorf("%w: %s", engine.ErrUnknownPair, pair)
}

func (f *fakeEngine) Status(context.Context) engine.Status {
	return engine.Status{
		Running: true,
		Paused:  f.isPaused(),
		Pairs:   []string{"BTCUSDT", "ETHUSDT"},
		Balance: map[string]float64{"USDT": 1000},
		WinRate: 50,
	}
}

func (f *fakeEngine) Pairs() []engine.PairStatus {
	return []engine.PairStatus{{Symbol: "BTCUSDT", LastPrice: 100}}
}

func (f *fakeEngine) Prices() map[string]float64 {
	return map[string]float64{"BTCUSDT": 100}
}

func (f *fakeEngine) RecentSignals(_ context.Context, symbol string, n int) ([]db.Signal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSymbol, f.lastLimit = symbol, n
	if f.storeErr != nil {
		return nil, f.storeErr
	}
	return []db.Signal{{ID: "sig-1", Symbol: "BTCUSDT", Action: "BUY"}}, nil
}

func (f *fakeEngine) RecentTrades(_ context.Context, symbol string, n int) ([]db.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSymbol, f.lastLimit = symbol, n
	if f.storeErr != nil {
		return nil, f.storeErr
	}
	return []db.Trade{{ID: "t-1", Symbol: "BTCUSDT", Side: "BUY", Quantity: 0.5, Price: 100}}, nil
}

func (f *fakeEngine) Performance(context.Context) (db.Performance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storeErr != nil {
		return db.Performance{}, f.storeErr
	}
	return db.Performance{TradeCount: 4, ClosedTrades: 2, TotalProfitLoss: 1.5, BestTrade: 2, WorstTrade: -0.5, WinRate: 50}, nil
}

func (f *fakeEngine) MetricsSnapshot() monitor.MetricsSnapshot {
	return monitor.MetricsSnapshot{CyclesRun: 3, SignalsGenerated: 6}
}

const testSecret = "test-secret"

func newTestAPIServer(t *testing.T) (*httptest.Server, *fakeEngine, *events.Bus) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := HashPassword("hunter2")
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	eng := &fakeEngine{}
	bus := events.NewBus()
	server := NewServer(Options{
		Engine:            eng,
		Bus:               bus,
		Logger:            logger,
		JWTSecret:         testSecret,
		AdminUser:         "admin",
		AdminPasswordHash: hash,
		RequestsPerSecond: 1000,
		Version:           "test",
	})
	ts := httptest.NewServer(server.Router)
	t.Cleanup(ts.Close)
	return ts, eng, bus
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func login(t *testing.T, baseURL string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, baseURL+"/api/auth/login", "", map[string]string{
		"username": "admin",
		"password": "hunter2",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestHealthAndRequestID(t *testing.T) {
	ts, _, _ := newTestAPIServer(t)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestStatusAndPerformance(t *testing.T) {
	ts, _, _ := newTestAPIServer(t)

	resp, status := doJSON(t, http.MethodGet, ts.URL+"/api/status", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, status["running"])
	assert.Equal(t, false, status["paused"])
	assert.Equal(t, map[string]any{"USDT": 1000.0}, status["balance"])

	resp, perf := doJSON(t, http.MethodGet, ts.URL+"/api/performance", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, 1.5, perf["totalProfitLoss"], 1e-9)
	assert.InDelta(t, 4, perf["tradeCount"], 1e-9)
	assert.InDelta(t, 2, perf["bestTrade"], 1e-9)
	assert.InDelta(t, -0.5, perf["worstTrade"], 1e-9)
}

func TestRecentTradesNormalizesQuery(t *testing.T) {
	ts, eng, _ := newTestAPIServer(t)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/trades/recent?symbol=btcusdt&limit=9999", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, 1, body["count"], 1e-9)
	symbol, limit := eng.lastQuery()
	assert.Equal(t, "BTCUSDT", symbol)
	assert.Equal(t, 500, limit)

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/signals/recent", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["signals"], 1)
	symbol, limit = eng.lastQuery()
	assert.Equal(t, "", symbol)
	assert.Equal(t, 50, limit)

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/signals/recent?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_QUERY", body["code"])
}

func TestStoreErrorsMapTo500(t *testing.T) {
	ts, eng, _ := newTestAPIServer(t)
	eng.failStore(errors.New("disk full"))

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/trades/recent", "", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "STORE_ERROR", body["code"])

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/performance", "", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestPairsAndPrices(t *testing.T) {
	ts, _, _ := newTestAPIServer(t)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/pairs", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["pairs"], 1)

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/prices", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"BTCUSDT": 100.0}, body["prices"])
}

func TestMetricsFormats(t *testing.T) {
	ts, _, _ := newTestAPIServer(t)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, 3, body["cycles_run"], 1e-9)

	resp, err := http.Get(ts.URL + "/api/metrics?format=prom")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "botnext_cycles_total 3")
	assert.Contains(t, string(raw), "botnext_signals_generated_total 6")
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts, eng, _ := newTestAPIServer(t)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/bot/pause", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "MISSING_TOKEN", body["code"])

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/bot/pause", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Token abc")
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	raw.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, raw.StatusCode)

	resp, body = doJSON(t, http.MethodPost, ts.URL+"/api/bot/pause", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_TOKEN", body["code"])

	expired, err := generateToken("admin", testSecret, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/bot/pause", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	assert.False(t, eng.isPaused())
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ts, _, _ := newTestAPIServer(t)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/auth/login", "", map[string]string{
		"username": "admin",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_CREDENTIALS", body["code"])

	resp, body = doJSON(t, http.MethodPost, ts.URL+"/api/auth/login", "", map[string]string{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_PAYLOAD", body["code"])
}

func TestPauseResumeWithToken(t *testing.T) {
	ts, eng, _ := newTestAPIServer(t)
	token := login(t, ts.URL)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/bot/pause", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "paused", body["status"])
	assert.True(t, eng.isPaused())

	_, status := doJSON(t, http.MethodGet, ts.URL+"/api/status", "", nil)
	assert.Equal(t, true, status["paused"])

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/bot/resume", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, eng.isPaused())
}

func TestEvaluatePair(t *testing.T) {
	ts, eng, _ := newTestAPIServer(t)
	token := login(t, ts.URL)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/pairs/btcusdt/evaluate", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "BUY", body["action"])
	assert.Equal(t, "sig-1", body["id"])

	resp, body = doJSON(t, http.MethodPost, ts.URL+"/api/pairs/DOGEUSDT/evaluate", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "UNKNOWN_PAIR", body["code"])

	resp, body = doJSON(t, http.MethodPost, ts.URL+"/api/pairs/ETHUSDT/evaluate", token, nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "EVALUATION_FAILED", body["code"])
	sig, _ := body["signal"].(map[string]any)
	assert.Equal(t, "ERROR", sig["action"])

	assert.Equal(t, []string{"BTCUSDT", "DOGEUSDT", "ETHUSDT"}, eng.evaluatedPairs())
}

func TestRateLimiterRejectsBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewRateLimiter(0.001, 2).Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebsocketForwardsBusEvents(t *testing.T) {
	ts, _, bus := newTestAPIServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Publish until the handler's subscription is in place.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				bus.Publish(events.EventPriceTick, events.PriceTick{Symbol: "BTCUSDT", Price: 101})
			}
		}
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var env struct {
		Type    string           `json:"type"`
		Payload events.PriceTick `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, string(events.EventPriceTick), env.Type)
	assert.Equal(t, "BTCUSDT", env.Payload.Symbol)
	assert.InDelta(t, 101, env.Payload.Price, 1e-9)
}
