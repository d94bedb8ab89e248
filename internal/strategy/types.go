package strategy

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Action is the discrete decision emitted for a pair each cycle.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
	// ActionError marks a cycle that could not be evaluated at all.
	ActionError Action = "ERROR"
)

func (a Action) Actionable() bool {
	return a == ActionBuy || a == ActionSell
}

// Components records the blended inputs behind a signal.
type Components struct {
	Technical          float64 `json:"technical"`
	Market             float64 `json:"market"`
	OrderBook          float64 `json:"order_book"`
	Sentiment          float64 `json:"sentiment"`
	SentimentAvailable bool    `json:"sentiment_available"`
	Volatility         float64 `json:"volatility"`
	Weights            Weights `json:"weights"`
}

// TradeSignal is produced once per pair per cycle and always persisted.
type TradeSignal struct {
	ID         string     `json:"id"`
	Symbol     string     `json:"symbol"`
	Action     Action     `json:"action"`
	Confidence float64    `json:"confidence"`
	Score      float64    `json:"score"`
	Threshold  float64    `json:"threshold"`
	Components Components `json:"components"`
	Reason     string     `json:"reason,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ErrorSignal records a cycle that failed before blending.
func ErrorSignal(symbol, reason string, at time.Time) TradeSignal {
	return TradeSignal{Symbol: symbol, Action: ActionError, Reason: reason, CreatedAt: at}
}

// NewSignalID returns a time-sortable id.
func NewSignalID(at time.Time) string {
	return ulid.MustNew(ulid.Timestamp(at), rand.Reader).String()
}
