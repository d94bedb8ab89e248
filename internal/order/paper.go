package order

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	exchange "github.com/Jorgeperez0825/botnext/pkg/exchanges/common"
)

// PriceFunc returns the last known price for a symbol.
type PriceFunc func(symbol string) (float64, bool)

// PaperConfig drives the simulated fills.
type PaperConfig struct {
	QuoteAsset   string
	InitialQuote float64
	FeeRate      float64 // decimal, e.g. 0.001 = 10 bps
	SlippageBps  float64 // applied against the taker on every fill
}

// PaperExchange simulates a spot venue for dry runs. Market orders fill in
// full at the last price plus slippage, and fees are charged in the quote asset.
type PaperExchange struct {
	cfg   PaperConfig
	price PriceFunc

	mu       sync.Mutex
	balances map[string]float64
	rules    map[string]exchange.TradingRules
	seq      int
	now      func() time.Time
}

func NewPaperExchange(cfg PaperConfig, price PriceFunc) *PaperExchange {
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	return &PaperExchange{
		cfg:      cfg,
		price:    price,
		balances: map[string]float64{strings.ToUpper(cfg.QuoteAsset): cfg.InitialQuote},
		rules:    make(map[string]exchange.TradingRules),
		now:      time.Now,
	}
}

// DefaultRules are loose spot filters used when no rules were registered.
func DefaultRules(symbol string) exchange.TradingRules {
	base, quote := exchange.SplitSymbol(symbol)
	return exchange.TradingRules{
		Symbol:      strings.ToUpper(symbol),
		BaseAsset:   base,
		QuoteAsset:  quote,
		MinQty:      0.000001,
		StepSize:    0.000001,
		MinNotional: 1,
	}
}

// SetRules overrides the filters for one symbol.
func (p *PaperExchange) SetRules(r exchange.TradingRules) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rules[strings.ToUpper(r.Symbol)] = r
}

// SetBalance sets the free amount of an asset.
func (p *PaperExchange) SetBalance(asset string, free float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balances[strings.ToUpper(asset)] = free
}

// Balances returns a copy of every non-zero balance.
func (p *PaperExchange) Balances() map[string]float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]float64, len(p.balances))
	for k, v := range p.balances {
		if v != 0 {
			out[k] = v
		}
	}
	return out
}

func (p *PaperExchange) GetTradingRules(_ context.Context, symbol string) (exchange.TradingRules, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.rules[strings.ToUpper(symbol)]; ok {
		return r, nil
	}
	return DefaultRules(symbol), nil
}

func (p *PaperExchange) GetBalance(_ context.Context, asset string) (exchange.Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := strings.ToUpper(asset)
	return exchange.Balance{Asset: a, Free: p.balances[a]}, nil
}

func (p *PaperExchange) PlaceMarketOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return exchange.OrderResult{}, exchange.WrapTransport("paper order", err)
	}
	if req.Qty <= 0 {
		return exchange.OrderResult{}, fmt.Errorf("paper order %s: %w: %v", req.Symbol, exchange.ErrInvalidQuantity, req.Qty)
	}
	last, ok := p.lastPrice(req.Symbol)
	if !ok {
		return exchange.OrderResult{}, fmt.Errorf("paper order %s: %w: no price", req.Symbol, exchange.ErrExchangeRejected)
	}

	rules, _ := p.GetTradingRules(ctx, req.Symbol)
	base, quote := rules.BaseAsset, rules.QuoteAsset

	p.mu.Lock()
	defer p.mu.Unlock()

	slip := p.cfg.SlippageBps / 10000
	var fill float64
	switch req.Side {
	case exchange.SideBuy:
		fill = last * (1 + slip)
		cost := req.Qty * fill
		fee := cost * p.cfg.FeeRate
		if p.balances[quote] < cost+fee {
			return exchange.OrderResult{}, fmt.Errorf("paper order %s: %w: need %.8f %s, have %.8f",
				req.Symbol, exchange.ErrInsufficientBalance, cost+fee, quote, p.balances[quote])
		}
		p.balances[quote] -= cost + fee
		p.balances[base] += req.Qty
	case exchange.SideSell:
		fill = last * (1 - slip)
		if p.balances[base] < req.Qty {
			return exchange.OrderResult{}, fmt.Errorf("paper order %s: %w: need %.8f %s, have %.8f",
				req.Symbol, exchange.ErrInsufficientBalance, req.Qty, base, p.balances[base])
		}
		proceeds := req.Qty * fill
		p.balances[base] -= req.Qty
		p.balances[quote] += proceeds - proceeds*p.cfg.FeeRate
	default:
		return exchange.OrderResult{}, fmt.Errorf("paper order %s: %w: side %q", req.Symbol, exchange.ErrExchangeRejected, req.Side)
	}

	p.seq++
	return exchange.OrderResult{
		ExchangeOrderID: "paper-" + strconv.Itoa(p.seq),
		Status:          exchange.StatusFilled,
		ClientID:        req.ClientID,
		ExecutedQty:     req.Qty,
		QuoteQty:        req.Qty * fill,
		TransactTime:    p.now(),
	}, nil
}

func (p *PaperExchange) lastPrice(symbol string) (float64, bool) {
	if p.price == nil {
		return 0, false
	}
	v, ok := p.price(strings.ToUpper(symbol))
	return v, ok && v > 0
}
