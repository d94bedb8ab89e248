package sentiment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) GetSentiment(ctx context.Context, in Context) (Response, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(Response), args.Error(1)
}

type slowProvider struct{}

func (slowProvider) GetSentiment(ctx context.Context, _ Context) (Response, error) {
	<-ctx.Done()
	return Response{}, ctx.Err()
}

type panicProvider struct{}

func (panicProvider) GetSentiment(context.Context, Context) (Response, error) {
	panic("boom")
}

func ptr(v float64) *float64 { return &v }

func TestSentimentNumericAndStructured(t *testing.T) {
	in := Context{Symbol: "BTCUSDT", LastPrice: 100}
	m := new(mockProvider)
	m.On("GetSentiment", mock.Anything, in).Return(Response{Value: ptr(-0.4)}, nil).Once()
	m.On("GetSentiment", mock.Anything, in).Return(Response{Action: "buy", Confidence: 0.8, Reason: "breakout"}, nil).Once()
	a := NewAdapter(m, time.Second, nil)

	r := a.Sentiment(context.Background(), in)
	assert.Equal(t, Reading{Value: -0.4, Available: true, Action: "SELL"}, r)

	r = a.Sentiment(context.Background(), in)
	assert.Equal(t, Reading{Value: 0.8, Available: true, Action: "BUY", Reason: "breakout"}, r)
	m.AssertExpectations(t)
}

func TestSentimentUnavailableCases(t *testing.T) {
	in := Context{Symbol: "ETHUSDT"}
	cases := map[string]Provider{
		"nil provider": nil,
		"error": func() Provider {
			m := new(mockProvider)
			m.On("GetSentiment", mock.Anything, in).Return(Response{}, errors.New("connection reset"))
			return m
		}(),
		"out of range": func() Provider {
			m := new(mockProvider)
			m.On("GetSentiment", mock.Anything, in).Return(Response{Value: ptr(1.5)}, nil)
			return m
		}(),
		"bad action": func() Provider {
			m := new(mockProvider)
			m.On("GetSentiment", mock.Anything, in).Return(Response{Action: "MOON", Confidence: 0.5}, nil)
			return m
		}(),
		"bad confidence": func() Provider {
			m := new(mockProvider)
			m.On("GetSentiment", mock.Anything, in).Return(Response{Action: "SELL", Confidence: 2}, nil)
			return m
		}(),
		"panic": panicProvider{},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			r := NewAdapter(p, time.Second, nil).Sentiment(context.Background(), in)
			assert.False(t, r.Available)
			assert.Equal(t, 0.0, r.Value)
			assert.NotEmpty(t, r.Reason)
		})
	}
}

func TestSentimentTimeout(t *testing.T) {
	start := time.Now()
	r := NewAdapter(slowProvider{}, 20*time.Millisecond, nil).Sentiment(context.Background(), Context{Symbol: "BTCUSDT"})
	assert.False(t, r.Available)
	assert.Equal(t, "provider timeout", r.Reason)
	assert.Less(t, time.Since(start), time.Second)
}

func TestInterpret(t *testing.T) {
	assert.Equal(t, "strongly bearish", Interpret(-0.9))
	assert.Equal(t, "very bearish", Interpret(-0.5))
	assert.Equal(t, "slightly bearish", Interpret(-0.1))
	assert.Equal(t, "neutral", Interpret(0))
	assert.Equal(t, "slightly bullish", Interpret(0.3))
	assert.Equal(t, "very bullish", Interpret(0.7))
	assert.Equal(t, "strongly bullish", Interpret(0.71))
}
