package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("record not found")

// AppendSignal inserts a signal row.
func (d *Database) AppendSignal(ctx context.Context, s Signal) error {
	_, err := d.DB.ExecContext(ctx, d.rebind(`
		INSERT INTO signals (
			id, symbol, action, confidence, score, threshold, technical, market,
			order_book, sentiment, sentiment_available, volatility, reason, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		s.ID, s.Symbol, s.Action, s.Confidence, s.Score, s.Threshold, s.Technical, s.Market,
		s.OrderBook, s.Sentiment, s.SentimentAvailable, s.Volatility, s.Reason, utc(s.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

// AppendTrade inserts a trade row.
func (d *Database) AppendTrade(ctx context.Context, t Trade) error {
	_, err := d.DB.ExecContext(ctx, d.rebind(`
		INSERT INTO trades (
			id, signal_id, symbol, side, quantity, price, total_value, fee,
			exchange_order_id, status, realized_pnl, hold_seconds, reason, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		t.ID, t.SignalID, t.Symbol, t.Side, t.Quantity, t.Price, t.TotalValue, t.Fee,
		t.ExchangeOrderID, t.Status, t.RealizedPnL, t.HoldSeconds, t.Reason, utc(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// AppendConditions inserts audit rows in one transaction.
func (d *Database) AppendConditions(ctx context.Context, rows []MarketCondition) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, d.rebind(`
		INSERT INTO market_conditions (
			symbol, trend, strength, volatility, volume_regime, support, resistance, degraded, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range rows {
		if _, err := stmt.ExecContext(ctx,
			c.Symbol, c.Trend, c.Strength, c.Volatility, c.VolumeRegime, c.Support, c.Resistance, c.Degraded, utc(c.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert market condition %s: %w", c.Symbol, err)
		}
	}
	return tx.Commit()
}

// RecentSignals returns the newest n signals, newest first. An empty symbol
// matches every pair.
func (d *Database) RecentSignals(ctx context.Context, symbol string, n int) ([]Signal, error) {
	rows, err := d.DB.QueryContext(ctx, d.rebind(`
		SELECT id, symbol, action, confidence, score, threshold, technical, market,
		       order_book, sentiment, sentiment_available, volatility, reason, created_at
		FROM signals
		WHERE (? = '' OR symbol = ?)
		ORDER BY seq DESC
		LIMIT ?
	`), symbol, symbol, limit(n))
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var res []Signal
	for rows.Next() {
		var s Signal
		if err := rows.Scan(&s.ID, &s.Symbol, &s.Action, &s.Confidence, &s.Score, &s.Threshold, &s.Technical, &s.Market,
			&s.OrderBook, &s.Sentiment, &s.SentimentAvailable, &s.Volatility, &s.Reason, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

const tradeColumns = `id, signal_id, symbol, side, quantity, price, total_value, fee,
		       exchange_order_id, status, realized_pnl, hold_seconds, reason, created_at`

func scanTrade(row interface{ Scan(...any) error }) (Trade, error) {
	var t Trade
	err := row.Scan(&t.ID, &t.SignalID, &t.Symbol, &t.Side, &t.Quantity, &t.Price, &t.TotalValue, &t.Fee,
		&t.ExchangeOrderID, &t.Status, &t.RealizedPnL, &t.HoldSeconds, &t.Reason, &t.CreatedAt)
	return t, err
}

// RecentTrades returns the newest n trades, newest first. An empty symbol
// matches every pair.
func (d *Database) RecentTrades(ctx context.Context, symbol string, n int) ([]Trade, error) {
	rows, err := d.DB.QueryContext(ctx, d.rebind(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE (? = '' OR symbol = ?)
		ORDER BY seq DESC
		LIMIT ?
	`), symbol, symbol, limit(n))
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var res []Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// LastTrade returns the newest filled trade for symbol or ErrNotFound.
func (d *Database) LastTrade(ctx context.Context, symbol string) (Trade, error) {
	row := d.DB.QueryRowContext(ctx, d.rebind(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE symbol = ? AND status = 'FILLED'
		ORDER BY seq DESC
		LIMIT 1
	`), symbol)
	t, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Trade{}, ErrNotFound
	}
	if err != nil {
		return Trade{}, fmt.Errorf("query last trade: %w", err)
	}
	return t, nil
}

// Performance aggregates realized PnL over SELL fills.
func (d *Database) Performance(ctx context.Context) (Performance, error) {
	var p Performance
	if err := d.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades WHERE status = 'FILLED'`).Scan(&p.TradeCount); err != nil {
		return p, fmt.Errorf("count trades: %w", err)
	}

	var total, best, worst, hold sql.NullFloat64
	var wins sql.NullInt64
	err := d.DB.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       SUM(realized_pnl),
		       MAX(realized_pnl),
		       MIN(realized_pnl),
		       AVG(hold_seconds),
		       SUM(CASE WHEN realized_pnl > 0 THEN 1 ELSE 0 END)
		FROM trades
		WHERE side = 'SELL' AND status = 'FILLED'
	`).Scan(&p.ClosedTrades, &total, &best, &worst, &hold, &wins)
	if err != nil {
		return p, fmt.Errorf("aggregate trades: %w", err)
	}
	p.TotalProfitLoss = total.Float64
	p.BestTrade = best.Float64
	p.WorstTrade = worst.Float64
	p.AvgHoldSeconds = hold.Float64
	p.Wins = int(wins.Int64)
	if p.ClosedTrades > 0 {
		p.WinRate = float64(p.Wins) / float64(p.ClosedTrades) * 100
	}
	return p, nil
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func limit(n int) int {
	if n <= 0 || n > 1000 {
		return 100
	}
	return n
}
