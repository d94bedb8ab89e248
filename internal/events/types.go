package events

import "time"

// Event enumerates high-level topics inside the bot.
type Event string

const (
	EventPriceTick     Event = "price_tick"
	EventCandleClosed  Event = "candle_closed"
	EventSignal        Event = "signal"
	EventTrade         Event = "trade"
	EventGuardRejected Event = "guard_rejected"
	EventStreamState   Event = "stream_state"
	EventPairError     Event = "pair_error"
)

// Topics lists every event, used by subscribers that forward everything.
var Topics = []Event{
	EventPriceTick, EventCandleClosed, EventSignal, EventTrade,
	EventGuardRejected, EventStreamState, EventPairError,
}

// PriceTick is published on every stream update.
type PriceTick struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Time   time.Time `json:"time"`
}

// StreamState reports stream connectivity per pair.
type StreamState struct {
	Symbol    string        `json:"symbol"`
	Connected bool          `json:"connected"`
	Error     string        `json:"error,omitempty"`
	Backoff   time.Duration `json:"backoff,omitempty"`
}

// Alert is a human readable notice about a pair, for guard rejections and cycle failures.
type Alert struct {
	Symbol  string    `json:"symbol"`
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Envelope wraps a payload with its topic for transports that multiplex topics.
type Envelope struct {
	Type    Event `json:"type"`
	Payload any   `json:"payload"`
}
