package spot

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Jorgeperez0825/botnext/pkg/exchanges/common"
	market "github.com/Jorgeperez0825/botnext/pkg/market/binance"
)

// Config holds Binance credentials.
type Config struct {
	APIKey     string
	APISecret  string
	BaseURL    string
	Testnet    bool
	RecvWindow int64 // ms
}

// Client is a signed Binance spot trading client implementing common.Gateway.
type Client struct {
	cfg         Config
	baseURL     string
	httpClient  *http.Client
	market      *market.Client
	timeSync    *common.TimeSync
	rateLimiter *common.RateLimiter

	rulesMu sync.RWMutex
	rules   map[string]common.TradingRules
}

var errMissingCredentials = errors.New("binance: API key/secret required")

func New(cfg Config, md *market.Client) *Client {
	if md == nil {
		md = market.NewClient(cfg.BaseURL, cfg.Testnet)
	}
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = 5000
	}
	client := &Client{
		cfg:         cfg,
		baseURL:     md.BaseURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		market:      md,
		rateLimiter: md.RateLimiter,
		rules:       make(map[string]common.TradingRules),
	}
	client.timeSync = common.NewTimeSync(md.GetServerTime)
	return client
}

var _ common.Gateway = (*Client)(nil)

// GetTradingRules returns the LOT_SIZE and notional filters, cached per symbol.
func (c *Client) GetTradingRules(ctx context.Context, symbol string) (common.TradingRules, error) {
	symbol = strings.ToUpper(symbol)
	c.rulesMu.RLock()
	r, ok := c.rules[symbol]
	c.rulesMu.RUnlock()
	if ok {
		return r, nil
	}

	info, err := c.market.GetSymbolInfo(ctx, symbol)
	if err != nil {
		return common.TradingRules{}, fmt.Errorf("trading rules %s: %w", symbol, err)
	}
	r = common.TradingRules{
		Symbol:      info.Symbol,
		BaseAsset:   info.BaseAsset,
		QuoteAsset:  info.QuoteAsset,
		MinQty:      info.MinQty,
		MaxQty:      info.MaxQty,
		StepSize:    info.StepSize,
		MinNotional: info.MinNotional,
	}
	c.rulesMu.Lock()
	c.rules[symbol] = r
	c.rulesMu.Unlock()
	return r, nil
}

// GetBalance returns free and locked amounts of one asset.
func (c *Client) GetBalance(ctx context.Context, asset string) (common.Balance, error) {
	info, err := c.GetAccountInfo(ctx)
	if err != nil {
		return common.Balance{}, err
	}
	for _, b := range info.Balances {
		if strings.EqualFold(b.Asset, asset) {
			free, _ := strconv.ParseFloat(b.Free, 64)
			locked, _ := strconv.ParseFloat(b.Locked, 64)
			return common.Balance{Asset: b.Asset, Free: free, Locked: locked}, nil
		}
	}
	return common.Balance{Asset: strings.ToUpper(asset)}, nil
}

// PlaceMarketOrder submits a MARKET order for a base quantity.
func (c *Client) PlaceMarketOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return common.OrderResult{}, errMissingCredentials
	}
	if req.Qty <= 0 {
		return common.OrderResult{}, fmt.Errorf("order %s qty %v: %w", req.Symbol, req.Qty, common.ErrInvalidQuantity)
	}

	params := url.Values{}
	params.Set("symbol", strings.ToUpper(req.Symbol))
	params.Set("side", strings.ToUpper(string(req.Side)))
	params.Set("type", string(common.OrderTypeMarket))
	params.Set("quantity", formatQty(req.Qty))
	params.Set("newOrderRespType", "RESULT")
	if req.ClientID != "" {
		params.Set("newClientOrderId", req.ClientID)
	}

	body, err := c.doSigned(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return common.OrderResult{}, err
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return common.OrderResult{}, fmt.Errorf("decode order response: %w", err)
	}
	executed, _ := strconv.ParseFloat(resp.ExecutedQty, 64)
	quote, _ := strconv.ParseFloat(resp.CummulativeQuoteQty, 64)
	return common.OrderResult{
		ExchangeOrderID: strconv.FormatInt(resp.OrderID, 10),
		Status:          mapStatus(resp.Status),
		ClientID:        resp.ClientOrderID,
		ExecutedQty:     executed,
		QuoteQty:        quote,
		TransactTime:    time.UnixMilli(resp.TransactTime),
	}, nil
}

// AccountInfo holds balances and permissions.
type AccountInfo struct {
	CanTrade   bool      `json:"canTrade"`
	UpdateTime int64     `json:"updateTime"`
	Balances   []Balance `json:"balances"`
}

// Balance represents an asset balance as returned by the API.
type Balance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

// GetAccountInfo returns account balances and basic flags.
func (c *Client) GetAccountInfo(ctx context.Context) (*AccountInfo, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return nil, errMissingCredentials
	}
	body, err := c.doSigned(ctx, http.MethodGet, "/api/v3/account", url.Values{})
	if err != nil {
		return nil, err
	}
	var info AccountInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode account info: %w", err)
	}
	return &info, nil
}

// doSigned signs the query and performs the HTTP request.
func (c *Client) doSigned(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, common.WrapTransport("binance "+path, err)
		}
	}
	params.Set("timestamp", strconv.FormatInt(c.timeSync.Now(ctx), 10))
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))
	params.Set("signature", sign(params.Encode(), c.cfg.APISecret))

	var (
		req *http.Request
		err error
	)
	endpoint := c.baseURL + path
	encoded := params.Encode()
	switch method {
	case http.MethodGet, http.MethodDelete:
		// For GET/DELETE Binance expects signed params in query string.
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+encoded, nil)
	default:
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(encoded))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, common.WrapTransport("binance "+path, err)
	}
	defer res.Body.Close()

	if c.rateLimiter != nil {
		c.rateLimiter.UpdateFromHeader(res.Header.Get("X-MBX-USED-WEIGHT-1M"))
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, common.WrapTransport("binance "+path, err)
	}
	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("binance %s %s: %w", method, path, market.DecodeAPIError(res.StatusCode, body))
	}
	return body, nil
}

type orderResponse struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"orderId"`
	ClientOrderID       string `json:"clientOrderId"`
	TransactTime        int64  `json:"transactTime"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Status              string `json:"status"`
}

func mapStatus(s string) common.OrderStatus {
	switch strings.ToUpper(s) {
	case "NEW":
		return common.StatusNew
	case "PARTIALLY_FILLED":
		return common.StatusPartial
	case "FILLED":
		return common.StatusFilled
	case "CANCELED":
		return common.StatusCanceled
	case "REJECTED":
		return common.StatusRejected
	case "EXPIRED":
		return common.StatusExpired
	default:
		return common.StatusUnknown
	}
}

func sign(data, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// formatQty renders a quantity at exchange precision without float noise.
func formatQty(v float64) string {
	return decimal.NewFromFloat(v).Round(8).String()
}
