package sentiment

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable means no provider is configured or it could not answer.
var ErrUnavailable = errors.New("sentiment unavailable")

// Context is the market summary sent to a provider.
type Context struct {
	Symbol        string         `json:"symbol"`
	LastPrice     float64        `json:"last_price"`
	LastVolume    float64        `json:"last_volume"`
	ChangePercent float64        `json:"change_percent"`
	RSI           float64        `json:"rsi,omitempty"`
	ADX           float64        `json:"adx,omitempty"`
	RecentSignals []RecentSignal `json:"recent_signals,omitempty"`
	RecentTrades  []RecentTrade  `json:"recent_trades,omitempty"`
	At            time.Time      `json:"at"`
}

type RecentSignal struct {
	Action     string    `json:"action"`
	Confidence float64   `json:"confidence"`
	At         time.Time `json:"at"`
}

type RecentTrade struct {
	Side  string    `json:"side"`
	Price float64   `json:"price"`
	Qty   float64   `json:"qty"`
	At    time.Time `json:"at"`
}

// Response is what a provider returns: either a bare Value or a structured
// Action with Confidence.
type Response struct {
	Value      *float64 `json:"value,omitempty"`
	Action     string   `json:"action,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// Provider is the external sentiment source.
type Provider interface {
	GetSentiment(ctx context.Context, in Context) (Response, error)
}

// Reading is the normalized sentiment in [-1, 1]. When Available is false
// Value is 0 and the blender uses the technical-only weights.
type Reading struct {
	Value     float64 `json:"value"`
	Available bool    `json:"available"`
	Action    string  `json:"action,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}
