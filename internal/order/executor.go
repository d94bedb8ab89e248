package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Jorgeperez0825/botnext/pkg/db"
	exchange "github.com/Jorgeperez0825/botnext/pkg/exchanges/common"
	"github.com/Jorgeperez0825/botnext/pkg/logging"
)

// Request is a guarded market order intent.
type Request struct {
	SignalID string
	Symbol   string
	Side     exchange.Side
	Quantity float64
	// Price is the reference price used when the venue reports no fill price.
	Price  float64
	Reason string
}

// Executor sends market orders to a gateway and turns acks into trade records.
type Executor struct {
	Gateway exchange.Gateway
	Timeout time.Duration
	// FeeRate estimates the commission recorded on each trade.
	FeeRate float64
	Logger  logrus.FieldLogger

	now func() time.Time
}

func NewExecutor(gw exchange.Gateway, timeout time.Duration, feeRate float64, logger logrus.FieldLogger) *Executor {
	return &Executor{Gateway: gw, Timeout: timeout, FeeRate: feeRate, Logger: logger, now: time.Now}
}

// Execute places the order. A gateway failure returns no trade. An ack that
// did not fill returns the trade record together with an error wrapping
// ErrExchangeRejected so the caller can still archive it.
func (e *Executor) Execute(ctx context.Context, req Request) (db.Trade, error) {
	if e.Gateway == nil {
		return db.Trade{}, fmt.Errorf("executor: %w: no gateway configured", exchange.ErrExchangeRejected)
	}
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	id := uuid.NewString()
	res, err := e.Gateway.PlaceMarketOrder(ctx, exchange.OrderRequest{
		Symbol:   req.Symbol,
		Side:     req.Side,
		Type:     exchange.OrderTypeMarket,
		Qty:      req.Quantity,
		ClientID: id,
	})
	if err != nil {
		return db.Trade{}, exchange.WrapTransport("place order "+req.Symbol, err)
	}

	qty := res.ExecutedQty
	if qty <= 0 {
		qty = req.Quantity
	}
	price := res.AvgPrice()
	if price <= 0 {
		price = req.Price
	}
	total := res.QuoteQty
	if total <= 0 {
		total = qty * price
	}
	created := res.TransactTime
	if created.IsZero() {
		created = e.clock()
	}

	trade := db.Trade{
		ID:              id,
		SignalID:        req.SignalID,
		Symbol:          req.Symbol,
		Side:            string(req.Side),
		Quantity:        qty,
		Price:           price,
		TotalValue:      total,
		Fee:             total * e.FeeRate,
		ExchangeOrderID: res.ExchangeOrderID,
		Status:          string(res.Status),
		Reason:          req.Reason,
		CreatedAt:       created,
	}

	logging.Stage(e.Logger, req.Symbol, "order").WithFields(logrus.Fields{
		"side":     req.Side,
		"quantity": qty,
		"price":    price,
		"status":   res.Status,
		"order_id": res.ExchangeOrderID,
	}).Info("order acknowledged")

	switch res.Status {
	case exchange.StatusFilled, exchange.StatusPartial:
		return trade, nil
	default:
		return trade, fmt.Errorf("order %s %s: %w: status %s", req.Symbol, res.ExchangeOrderID, exchange.ErrExchangeRejected, res.Status)
	}
}

func (e *Executor) clock() time.Time {
	if e.now == nil {
		return time.Now()
	}
	return e.now()
}
