package state

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Jorgeperez0825/botnext/pkg/db"
)

// ActiveTrade is an open long position opened by a filled BUY.
type ActiveTrade struct {
	Symbol     string    `json:"symbol"`
	TradeID    string    `json:"tradeId"`
	Quantity   float64   `json:"quantity"`
	EntryPrice float64   `json:"entryPrice"`
	OpenedAt   time.Time `json:"openedAt"`
}

// TradeStore is the read side of the trade history used for seeding.
type TradeStore interface {
	LastTrade(ctx context.Context, symbol string) (db.Trade, error)
}

// Manager keeps the active trade per pair in memory. The trade table stays
// the source of truth across restarts.
type Manager struct {
	mu     sync.RWMutex
	active map[string]ActiveTrade
	store  TradeStore
}

func NewManager(store TradeStore) *Manager {
	return &Manager{
		store:  store,
		active: make(map[string]ActiveTrade),
	}
}

// Load seeds state from the trade store: a pair whose newest filled trade is
// a BUY is still open.
func (m *Manager) Load(ctx context.Context, symbols []string) error {
	if m.store == nil {
		return nil
	}
	loaded := make(map[string]ActiveTrade)
	for _, s := range symbols {
		t, err := m.store.LastTrade(ctx, s)
		if errors.Is(err, db.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("load active trade %s: %w", s, err)
		}
		if t.Side != "BUY" {
			continue
		}
		loaded[key(s)] = ActiveTrade{
			Symbol:     key(s),
			TradeID:    t.ID,
			Quantity:   t.Quantity,
			EntryPrice: t.Price,
			OpenedAt:   t.CreatedAt,
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range loaded {
		m.active[k] = v
	}
	return nil
}

func (m *Manager) Get(symbol string) (ActiveTrade, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.active[key(symbol)]
	return t, ok
}

// Open records a filled BUY, replacing any previous entry for the pair.
func (m *Manager) Open(t ActiveTrade) {
	t.Symbol = key(t.Symbol)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[t.Symbol] = t
}

// Close removes the pair's active trade and returns it.
func (m *Manager) Close(symbol string) (ActiveTrade, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.active[key(symbol)]
	delete(m.active, key(symbol))
	return t, ok
}

// CloseIf removes the pair's active trade only while it is still tradeID.
func (m *Manager) CloseIf(symbol, tradeID string) (ActiveTrade, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.active[key(symbol)]
	if !ok || t.TradeID != tradeID {
		return ActiveTrade{}, false
	}
	delete(m.active, key(symbol))
	return t, true
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// All returns the active trades ordered by symbol.
func (m *Manager) All() []ActiveTrade {
	m.mu.RLock()
	res := make([]ActiveTrade, 0, len(m.active))
	for _, t := range m.active {
		res = append(res, t)
	}
	m.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool { return res[i].Symbol < res[j].Symbol })
	return res
}

func key(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
