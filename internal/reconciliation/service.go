package reconciliation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Jorgeperez0825/botnext/internal/events"
	"github.com/Jorgeperez0825/botnext/internal/risk"
	"github.com/Jorgeperez0825/botnext/internal/state"
	exchange "github.com/Jorgeperez0825/botnext/pkg/exchanges/common"
	"github.com/Jorgeperez0825/botnext/pkg/logging"
)

// DefaultTolerance absorbs fees taken in the base asset.
const DefaultTolerance = 0.01

// BalanceSource is the venue capability reconciliation needs.
type BalanceSource interface {
	GetBalance(ctx context.Context, asset string) (exchange.Balance, error)
}

// PairLocker serializes work on one pair with the trading cycle.
type PairLocker interface {
	WithPair(symbol string, fn func()) error
}

// Service compares active trades with what the venue actually holds.
type Service struct {
	venue    BalanceSource
	state    *state.Manager
	exits    *risk.ExitMonitor
	pairs    PairLocker
	bus      *events.Bus
	logger   logrus.FieldLogger
	interval time.Duration
	// Tolerance is the fraction of the local quantity that may be missing
	// before a trade counts as gone.
	Tolerance float64

	mu       sync.Mutex
	autoSync bool
	now      func() time.Time
}

// Report contains reconciliation results
type Report struct {
	Timestamp     time.Time      `json:"timestamp"`
	PositionDiffs []PositionDiff `json:"position_diffs"`
	HasDiffs      bool           `json:"has_diffs"`
	SyncedCount   int            `json:"synced_count"`
}

// PositionDiff represents an active trade the venue no longer backs.
type PositionDiff struct {
	Symbol      string  `json:"symbol"`
	LocalQty    float64 `json:"local_qty"`
	ExchangeQty float64 `json:"exchange_qty"`
	Difference  float64 `json:"difference"`
	Synced      bool    `json:"synced"`
}

func NewService(venue BalanceSource, st *state.Manager, exits *risk.ExitMonitor, bus *events.Bus, interval time.Duration, logger logrus.FieldLogger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		venue:     venue,
		state:     st,
		exits:     exits,
		bus:       bus,
		logger:    logger,
		interval:  interval,
		Tolerance: DefaultTolerance,
		autoSync:  true,
		now:       time.Now,
	}
}

// SetAutoSync enables or disables dropping orphaned trades.
func (s *Service) SetAutoSync(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoSync = enabled
}

// SetPairLocker makes each pair check run under the driver's pair lock.
func (s *Service) SetPairLocker(l PairLocker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairs = l
}

// Start reconciles every interval until ctx ends. A zero interval disables it.
func (s *Service) Start(ctx context.Context) {
	if s.interval <= 0 || s.venue == nil {
		return
	}
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				report, err := s.Reconcile(ctx)
				if err != nil {
					s.logger.WithError(err).WithField(logging.FieldStage, "reconcile").Warn("reconciliation incomplete")
				}
				s.handleReport(report)
			case <-ctx.Done():
				return
			}
		}
	}()
	s.logger.WithFields(logrus.Fields{
		logging.FieldStage: "reconcile",
		"interval":         s.interval.String(),
	}).Info("reconciliation started")
}

// Reconcile checks each active trade against the free plus locked base
// balance. A trade whose base asset was sold outside the bot is closed in
// state and no longer watched for exits when auto-sync is on.
func (s *Service) Reconcile(ctx context.Context) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := &Report{Timestamp: s.now().UTC(), PositionDiffs: []PositionDiff{}}
	if s.venue == nil || s.state == nil {
		return report, nil
	}

	var lastErr error
	for _, t := range s.state.All() {
		var (
			diff *PositionDiff
			err  error
		)
		check := func() { diff, err = s.check(ctx, t.Symbol, t.TradeID) }
		if s.pairs == nil || s.pairs.WithPair(t.Symbol, check) != nil {
			check()
		}
		if err != nil {
			lastErr = err
			continue
		}
		if diff == nil {
			continue
		}
		if diff.Synced {
			report.SyncedCount++
		}
		report.PositionDiffs = append(report.PositionDiffs, *diff)
		report.HasDiffs = true
	}

	// The report covers every pair that could be checked even when some failed.
	return report, lastErr
}

// check compares one active trade with the venue. The trade is re-read first
// and left alone when it is no longer tradeID, since the cycle closed or
// replaced it after the listing.
func (s *Service) check(ctx context.Context, symbol, tradeID string) (*PositionDiff, error) {
	t, ok := s.state.Get(symbol)
	if !ok || t.TradeID != tradeID {
		return nil, nil
	}
	base, _ := exchange.SplitSymbol(t.Symbol)
	bal, err := s.venue.GetBalance(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("balance %s: %w", base, err)
	}
	held := bal.Free + bal.Locked
	if held >= t.Quantity*(1-s.Tolerance) {
		return nil, nil
	}

	diff := &PositionDiff{
		Symbol:      t.Symbol,
		LocalQty:    t.Quantity,
		ExchangeQty: held,
		Difference:  t.Quantity - held,
	}
	if s.autoSync {
		if _, closed := s.state.CloseIf(t.Symbol, t.TradeID); !closed {
			return nil, nil
		}
		if s.exits != nil {
			s.exits.Untrack(t.Symbol)
		}
		diff.Synced = true
	}

	s.bus.Publish(events.EventPairError, events.Alert{
		Symbol:  t.Symbol,
		Stage:   "reconcile",
		Message: fmt.Sprintf("active trade holds %.8f but venue has %.8f %s", t.Quantity, held, base),
		Time:    s.now().UTC(),
	})
	return diff, nil
}

func (s *Service) handleReport(report *Report) {
	if !report.HasDiffs {
		s.logger.WithField(logging.FieldStage, "reconcile").Debug("reconciliation ok")
		return
	}
	for _, diff := range report.PositionDiffs {
		logging.Stage(s.logger, diff.Symbol, "reconcile").WithFields(logrus.Fields{
			"local_qty":    diff.LocalQty,
			"exchange_qty": diff.ExchangeQty,
			"difference":   diff.Difference,
			"synced":       diff.Synced,
		}).Warn("active trade not backed by venue balance")
	}
}
