package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Jorgeperez0825/botnext/pkg/exchanges/common"
)

const (
	DefaultRESTURL = "https://api.binance.us"
	testnetRESTURL = "https://testnet.binance.vision"
)

// Client wraps public REST access to Binance market data.
type Client struct {
	BaseURL     string
	HTTPClient  *http.Client
	RateLimiter *common.RateLimiter
}

// NewClient builds a public REST client. An empty baseURL selects Binance.US,
// testnet overrides it.
func NewClient(baseURL string, testnet bool) *Client {
	if baseURL == "" {
		baseURL = DefaultRESTURL
	}
	if testnet {
		baseURL = testnetRESTURL
	}
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		HTTPClient:  &http.Client{Timeout: 10 * time.Second},
		RateLimiter: common.NewRateLimiter(10, 1200, time.Minute),
	}
}

// GetKlines fetches historical klines, oldest first.
// Set startTime/endTime to 0 to use default behavior (most recent klines).
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int, startTime, endTime int64) ([]Kline, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("interval", interval)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if startTime > 0 {
		params.Set("startTime", strconv.FormatInt(startTime, 10))
	}
	if endTime > 0 {
		params.Set("endTime", strconv.FormatInt(endTime, 10))
	}

	body, err := c.do(ctx, "/api/v3/klines", params)
	if err != nil {
		return nil, err
	}

	var raw [][]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}
	return parseKlineRows(symbol, raw, time.Now().UnixMilli()), nil
}

// parseKlineRows converts the REST array rows. A row whose close time is still
// in the future is the forming bucket and is marked not closed.
func parseKlineRows(symbol string, raw [][]any, nowMs int64) []Kline {
	klines := make([]Kline, 0, len(raw))
	for _, item := range raw {
		// Binance returns 12 fields per kline
		if len(item) < 9 {
			continue
		}
		k := Kline{
			Symbol:      strings.ToUpper(symbol),
			OpenTime:    toInt64(item[0]),
			Open:        toFloat(item[1]),
			High:        toFloat(item[2]),
			Low:         toFloat(item[3]),
			Close:       toFloat(item[4]),
			Volume:      toFloat(item[5]),
			CloseTime:   toInt64(item[6]),
			QuoteVolume: toFloat(item[7]),
			Trades:      toInt(item[8]),
		}
		k.Closed = k.CloseTime < nowMs
		klines = append(klines, k)
	}
	return klines
}

// GetServerTime fetches Binance server time in milliseconds.
func (c *Client) GetServerTime(ctx context.Context) (int64, error) {
	body, err := c.do(ctx, "/api/v3/time", nil)
	if err != nil {
		return 0, err
	}
	var resp struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, err
	}
	return resp.ServerTime, nil
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, "/api/v3/ping", nil)
	return err
}

func (c *Client) do(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if c.RateLimiter != nil {
		if err := c.RateLimiter.Wait(ctx); err != nil {
			return nil, common.WrapTransport("binance "+path, err)
		}
	}
	u := c.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, common.WrapTransport("binance "+path, err)
	}
	defer res.Body.Close()

	if c.RateLimiter != nil {
		c.RateLimiter.UpdateFromHeader(res.Header.Get("X-MBX-USED-WEIGHT-1M"))
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, common.WrapTransport("binance "+path, err)
	}
	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("binance %s: %w", path, DecodeAPIError(res.StatusCode, body))
	}
	return body, nil
}

// DecodeAPIError builds a common.APIError from a non-2xx response body.
func DecodeAPIError(status int, body []byte) *common.APIError {
	apiErr := &common.APIError{HTTPStatus: status}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case json.Number:
		f, _ := t.Float64()
		return f
	case float64:
		return t
	default:
		return 0
	}
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case int64:
		return t
	case json.Number:
		i, _ := t.Int64()
		return i
	default:
		return 0
	}
}

func toInt(v any) int {
	return int(toInt64(v))
}
