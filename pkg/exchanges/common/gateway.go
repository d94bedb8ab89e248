package common

import "context"

// Gateway is the trading venue capability the bot consumes. Implementations
// report failures wrapped around ErrInsufficientBalance, ErrInvalidQuantity,
// ErrExchangeRejected or ErrTimeout.
type Gateway interface {
	GetTradingRules(ctx context.Context, symbol string) (TradingRules, error)
	GetBalance(ctx context.Context, asset string) (Balance, error)
	PlaceMarketOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
}
