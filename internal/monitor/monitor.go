package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/Jorgeperez0825/botnext/internal/events"
)

// Monitor watches alert-worthy events, counts them and forwards them to a sink.
type Monitor struct {
	Bus     *events.Bus
	Metrics *SystemMetrics
	Sink    AlertSink
}

func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil || m.Sink == nil {
		return
	}
	for _, topic := range []events.Event{events.EventGuardRejected, events.EventPairError, events.EventStreamState} {
		stream, unsub := m.Bus.Subscribe(topic, 50)
		go func(topic events.Event) {
			defer unsub()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-stream:
					if !ok {
						return
					}
					m.handle(topic, msg)
				}
			}
		}(topic)
	}
}

func (m *Monitor) handle(topic events.Event, msg any) {
	if m.Metrics != nil {
		switch topic {
		case events.EventGuardRejected:
			m.Metrics.IncrementGuardRejections()
		case events.EventPairError:
			m.Metrics.IncrementErrors()
		case events.EventStreamState:
			if s, ok := msg.(events.StreamState); ok && !s.Connected {
				m.Metrics.IncrementStreamReconnects()
			}
		}
	}
	_ = m.Sink.Send(formatAlert(topic, msg))
}

func formatAlert(topic events.Event, msg any) string {
	ts := time.Now().UTC().Format(time.RFC3339)
	switch t := msg.(type) {
	case events.Alert:
		return fmt.Sprintf("[%s] %s %s/%s: %s", ts, topic, t.Symbol, t.Stage, t.Message)
	case events.StreamState:
		if t.Connected {
			return fmt.Sprintf("[%s] %s %s: connected", ts, topic, t.Symbol)
		}
		return fmt.Sprintf("[%s] %s %s: disconnected (%s), retry in %s", ts, topic, t.Symbol, t.Error, t.Backoff)
	case string:
		return fmt.Sprintf("[%s] %s: %s", ts, topic, t)
	default:
		return fmt.Sprintf("[%s] %s", ts, topic)
	}
}
