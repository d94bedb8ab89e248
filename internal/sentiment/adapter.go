package sentiment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Jorgeperez0825/botnext/pkg/logging"
)

// Adapter wraps a Provider with a timeout and normalizes its answer.
type Adapter struct {
	Provider Provider
	Timeout  time.Duration
	Logger   logrus.FieldLogger
}

func NewAdapter(p Provider, timeout time.Duration, logger logrus.FieldLogger) *Adapter {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Adapter{Provider: p, Timeout: timeout, Logger: logger}
}

// Sentiment never returns an error; failures produce an unavailable reading.
func (a *Adapter) Sentiment(ctx context.Context, in Context) (r Reading) {
	log := logging.Stage(a.logger(), in.Symbol, "sentiment")
	defer func() {
		if p := recover(); p != nil {
			log.WithField("panic", p).Error("sentiment provider panicked")
			r = unavailable(fmt.Sprintf("provider panic: %v", p))
		}
	}()

	if a == nil || a.Provider == nil {
		return unavailable("provider not configured")
	}
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	resp, err := a.Provider.GetSentiment(ctx, in)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "provider timeout"
		}
		log.WithError(err).Warn("sentiment unavailable")
		return unavailable(reason)
	}

	r, err = Normalize(resp)
	if err != nil {
		log.WithError(err).Warn("sentiment response rejected")
		return unavailable(err.Error())
	}
	log.WithFields(logrus.Fields{"value": r.Value, "label": Interpret(r.Value)}).Info("sentiment received")
	return r
}

func (a *Adapter) logger() logrus.FieldLogger {
	if a == nil || a.Logger == nil {
		return logging.Discard()
	}
	return a.Logger
}

func unavailable(reason string) Reading {
	return Reading{Reason: reason}
}

// Normalize maps either response shape onto [-1, 1]. Out-of-range or
// unparsable answers are errors.
func Normalize(resp Response) (Reading, error) {
	if resp.Value != nil {
		v := *resp.Value
		if math.IsNaN(v) || v < -1 || v > 1 {
			return Reading{}, fmt.Errorf("value %v out of range", v)
		}
		return Reading{Value: v, Available: true, Action: actionFor(v), Reason: resp.Reason}, nil
	}

	c := resp.Confidence
	if math.IsNaN(c) || c < 0 || c > 1 {
		return Reading{}, fmt.Errorf("confidence %v out of range", c)
	}
	action := strings.ToUpper(strings.TrimSpace(resp.Action))
	var v float64
	switch action {
	case "BUY":
		v = c
	case "SELL":
		v = -c
	case "HOLD":
		v = 0
	default:
		return Reading{}, fmt.Errorf("unknown action %q", resp.Action)
	}
	return Reading{Value: v, Available: true, Action: action, Reason: resp.Reason}, nil
}

func actionFor(v float64) string {
	switch {
	case v > 0:
		return "BUY"
	case v < 0:
		return "SELL"
	}
	return "HOLD"
}

// Interpret labels a sentiment value for logs and the dashboard.
func Interpret(v float64) string {
	switch {
	case v <= -0.7:
		return "strongly bearish"
	case v <= -0.3:
		return "very bearish"
	case v < 0:
		return "slightly bearish"
	case v == 0:
		return "neutral"
	case v <= 0.3:
		return "slightly bullish"
	case v <= 0.7:
		return "very bullish"
	}
	return "strongly bullish"
}
