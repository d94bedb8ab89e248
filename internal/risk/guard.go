package risk

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	exchange "github.com/Jorgeperez0825/botnext/pkg/exchanges/common"
)

// RulesSource is the read-only part of the trading venue the guard needs.
type RulesSource interface {
	GetTradingRules(ctx context.Context, symbol string) (exchange.TradingRules, error)
	GetBalance(ctx context.Context, asset string) (exchange.Balance, error)
}

// Proposal is an order the driver would like to place.
type Proposal struct {
	Symbol   string
	Side     exchange.Side
	Quantity float64
	Price    float64
}

// Decision is the guard verdict. Quantity is floored to the lot step.
type Decision struct {
	Allowed  bool                  `json:"allowed"`
	Reason   string                `json:"reason,omitempty"`
	Quantity float64               `json:"quantity"`
	Notional float64               `json:"notional"`
	Rules    exchange.TradingRules `json:"rules"`
}

// Guard validates proposals against exchange filters and free balance. It
// never places orders.
type Guard struct {
	Source RulesSource
	// MinOrderValue is the bot's own floor on BUY notional, on top of the
	// exchange MIN_NOTIONAL. Exits are only held to the exchange filters.
	MinOrderValue float64
}

func NewGuard(src RulesSource, minOrderValue float64) *Guard {
	return &Guard{Source: src, MinOrderValue: minOrderValue}
}

// Check returns an error only when rules or balances could not be read.
// Validation failures come back as a Decision with Allowed=false.
func (g *Guard) Check(ctx context.Context, p Proposal) (Decision, error) {
	if p.Quantity <= 0 || p.Price <= 0 {
		return reject(Decision{}, "quantity and price must be positive"), nil
	}
	rules, err := g.Source.GetTradingRules(ctx, p.Symbol)
	if err != nil {
		return Decision{}, fmt.Errorf("trading rules %s: %w", p.Symbol, err)
	}
	if rules.BaseAsset == "" || rules.QuoteAsset == "" {
		rules.BaseAsset, rules.QuoteAsset = exchange.SplitSymbol(p.Symbol)
	}

	qty := FloorToStep(p.Quantity, rules.StepSize)
	price := decimal.NewFromFloat(p.Price)
	notional, _ := qty.Mul(price).Float64()
	d := Decision{Rules: rules, Notional: notional}
	d.Quantity, _ = qty.Float64()

	switch {
	case qty.Sign() <= 0 || qty.LessThan(decimal.NewFromFloat(rules.MinQty)):
		return reject(d, fmt.Sprintf("quantity %s below min qty %v", qty.String(), rules.MinQty)), nil
	case rules.MaxQty > 0 && qty.GreaterThan(decimal.NewFromFloat(rules.MaxQty)):
		return reject(d, fmt.Sprintf("quantity %s above max qty %v", qty.String(), rules.MaxQty)), nil
	case notional < rules.MinNotional:
		return reject(d, fmt.Sprintf("notional %.8f below min notional %v", notional, rules.MinNotional)), nil
	case p.Side == exchange.SideBuy && notional < g.MinOrderValue:
		return reject(d, fmt.Sprintf("notional %.8f below min order value %v", notional, g.MinOrderValue)), nil
	}

	switch p.Side {
	case exchange.SideBuy:
		bal, err := g.Source.GetBalance(ctx, rules.QuoteAsset)
		if err != nil {
			return Decision{}, fmt.Errorf("balance %s: %w", rules.QuoteAsset, err)
		}
		if bal.Free < notional {
			return reject(d, fmt.Sprintf("insufficient %s: free %.8f < %.8f", rules.QuoteAsset, bal.Free, notional)), nil
		}
	case exchange.SideSell:
		bal, err := g.Source.GetBalance(ctx, rules.BaseAsset)
		if err != nil {
			return Decision{}, fmt.Errorf("balance %s: %w", rules.BaseAsset, err)
		}
		if decimal.NewFromFloat(bal.Free).LessThan(qty) {
			return reject(d, fmt.Sprintf("insufficient %s: free %.8f < %s", rules.BaseAsset, bal.Free, qty.String())), nil
		}
	default:
		return reject(d, fmt.Sprintf("unsupported side %q", p.Side)), nil
	}

	d.Allowed = true
	return d, nil
}

func reject(d Decision, reason string) Decision {
	d.Allowed = false
	d.Reason = reason
	return d
}

// FloorToStep rounds qty down to a multiple of step. A zero step leaves qty
// unchanged.
func FloorToStep(qty, step float64) decimal.Decimal {
	q := decimal.NewFromFloat(qty)
	if step <= 0 {
		return q
	}
	s := decimal.NewFromFloat(step)
	return q.Div(s).Floor().Mul(s)
}
