package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// GetDepth returns an order book snapshot with at most limit levels per side.
func (c *Client) GetDepth(ctx context.Context, symbol string, limit int) (Depth, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	body, err := c.do(ctx, "/api/v3/depth", params)
	if err != nil {
		return Depth{}, err
	}
	return parseDepth(body)
}

func parseDepth(body []byte) (Depth, error) {
	var raw struct {
		LastUpdateID int64   `json:"lastUpdateId"`
		Bids         [][]any `json:"bids"`
		Asks         [][]any `json:"asks"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Depth{}, fmt.Errorf("decode depth: %w", err)
	}
	return Depth{
		LastUpdateID: raw.LastUpdateID,
		Bids:         toLevels(raw.Bids),
		Asks:         toLevels(raw.Asks),
	}, nil
}

func toLevels(rows [][]any) [][2]float64 {
	out := make([][2]float64, 0, len(rows))
	for _, r := range rows {
		if len(r) < 2 {
			continue
		}
		out = append(out, [2]float64{toFloat(r[0]), toFloat(r[1])})
	}
	return out
}

// GetTickerPrice returns the latest traded price.
func (c *Client) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	body, err := c.do(ctx, "/api/v3/ticker/price", params)
	if err != nil {
		return 0, err
	}
	var resp struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("decode ticker: %w", err)
	}
	return strconv.ParseFloat(resp.Price, 64)
}

// GetSymbolInfo fetches the LOT_SIZE and notional filters for a symbol.
func (c *Client) GetSymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	body, err := c.do(ctx, "/api/v3/exchangeInfo", params)
	if err != nil {
		return SymbolInfo{}, err
	}
	return parseSymbolInfo(body, symbol)
}

func parseSymbolInfo(body []byte, symbol string) (SymbolInfo, error) {
	var raw struct {
		Symbols []struct {
			Symbol     string           `json:"symbol"`
			Status     string           `json:"status"`
			BaseAsset  string           `json:"baseAsset"`
			QuoteAsset string           `json:"quoteAsset"`
			Filters    []map[string]any `json:"filters"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return SymbolInfo{}, fmt.Errorf("decode exchange info: %w", err)
	}
	for _, s := range raw.Symbols {
		if !strings.EqualFold(s.Symbol, symbol) {
			continue
		}
		info := SymbolInfo{
			Symbol:     s.Symbol,
			Status:     s.Status,
			BaseAsset:  s.BaseAsset,
			QuoteAsset: s.QuoteAsset,
		}
		for _, f := range s.Filters {
			switch f["filterType"] {
			case "LOT_SIZE":
				info.MinQty = toFloat(f["minQty"])
				info.MaxQty = toFloat(f["maxQty"])
				info.StepSize = toFloat(f["stepSize"])
			case "MIN_NOTIONAL", "NOTIONAL":
				if v := toFloat(f["minNotional"]); v > info.MinNotional {
					info.MinNotional = v
				}
			}
		}
		return info, nil
	}
	return SymbolInfo{}, fmt.Errorf("symbol %s not found in exchange info", symbol)
}
