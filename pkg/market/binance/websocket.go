package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	DefaultStreamURL = "wss://stream.binance.us:9443"
	testnetStreamURL = "wss://testnet.binance.vision"
)

// StreamClient manages lightweight streaming from Binance public websockets.
type StreamClient struct {
	StreamURL string
	dialer    *websocket.Dialer
	logger    logrus.FieldLogger
}

// NewStreamClient builds a websocket client. An empty baseURL selects
// Binance.US, testnet overrides it.
func NewStreamClient(baseURL string, testnet bool, logger logrus.FieldLogger) *StreamClient {
	if baseURL == "" {
		baseURL = DefaultStreamURL
	}
	if testnet {
		baseURL = testnetStreamURL
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &StreamClient{
		StreamURL: strings.TrimRight(baseURL, "/") + "/ws",
		dialer:    websocket.DefaultDialer,
		logger:    logger,
	}
}

// ErrStreamClosed is returned on the error channel when the server drops the connection.
var ErrStreamClosed = errors.New("binance stream closed")

// SubscribeKlines listens to the kline stream and pushes parsed klines into a
// channel. The channel closes when the connection drops or ctx ends; the
// returned stop function closes it early.
func (c *StreamClient) SubscribeKlines(ctx context.Context, symbol, interval string) (<-chan Kline, func(), error) {
	// Binance requires lowercase symbols for WebSocket streams
	stream := fmt.Sprintf("%s@kline_%s", strings.ToLower(symbol), interval)
	u := fmt.Sprintf("%s/%s", c.StreamURL, stream)

	conn, _, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial binance ws: %w", err)
	}

	out := make(chan Kline, 100)
	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			// Ignore errors; connection may already be closed.
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-done:
		}
	}()

	go func() {
		defer close(out)
		defer stop()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				select {
				case <-done:
				default:
					c.logger.WithError(err).WithField("stream", stream).Warn("binance ws read error")
				}
				return
			}

			parsed, err := parseKlineMessage(msg)
			if err != nil {
				c.logger.WithError(err).WithField("stream", stream).Debug("binance ws parse error")
				continue
			}
			select {
			case out <- parsed:
			case <-done:
				return
			}
		}
	}()

	return out, stop, nil
}

// parseKlineMessage decodes only the fields we need, including the closed flag.
func parseKlineMessage(msg []byte) (Kline, error) {
	var raw struct {
		Event string `json:"e"`
		Data  struct {
			StartTime int64  `json:"t"`
			CloseTime int64  `json:"T"`
			Symbol    string `json:"s"`
			Interval  string `json:"i"`
			Open      any    `json:"o"`
			Close     any    `json:"c"`
			High      any    `json:"h"`
			Low       any    `json:"l"`
			Volume    any    `json:"v"`
			Quote     any    `json:"q"`
			Trades    any    `json:"n"`
			Closed    bool   `json:"x"`
		} `json:"k"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return Kline{}, err
	}
	if raw.Event != "" && raw.Event != "kline" {
		return Kline{}, fmt.Errorf("unexpected event %q", raw.Event)
	}
	if raw.Data.StartTime == 0 {
		return Kline{}, errors.New("kline payload missing start time")
	}
	return Kline{
		Symbol:      raw.Data.Symbol,
		OpenTime:    raw.Data.StartTime,
		CloseTime:   raw.Data.CloseTime,
		Open:        toFloat(raw.Data.Open),
		Close:       toFloat(raw.Data.Close),
		High:        toFloat(raw.Data.High),
		Low:         toFloat(raw.Data.Low),
		Volume:      toFloat(raw.Data.Volume),
		QuoteVolume: toFloat(raw.Data.Quote),
		Trades:      toInt(raw.Data.Trades),
		Closed:      raw.Data.Closed,
	}, nil
}
