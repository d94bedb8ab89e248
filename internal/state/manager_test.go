package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jorgeperez0825/botnext/pkg/db"
)

type fakeStore map[string]db.Trade

func (f fakeStore) LastTrade(_ context.Context, symbol string) (db.Trade, error) {
	if symbol == "BROKEN" {
		return db.Trade{}, errors.New("disk on fire")
	}
	t, ok := f[symbol]
	if !ok {
		return db.Trade{}, db.ErrNotFound
	}
	return t, nil
}

func TestLoadSeedsOpenBuys(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	m := NewManager(fakeStore{
		"BTCUSDT": {ID: "b1", Side: "BUY", Quantity: 0.01, Price: 40000, CreatedAt: at},
		"ETHUSDT": {ID: "s1", Side: "SELL", Quantity: 1, Price: 2000},
	})

	require.NoError(t, m.Load(context.Background(), []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}))
	assert.Equal(t, 1, m.Count())

	got, ok := m.Get("btcusdt")
	require.True(t, ok)
	assert.Equal(t, "b1", got.TradeID)
	assert.InDelta(t, 40000, got.EntryPrice, 1e-9)
	assert.True(t, got.OpenedAt.Equal(at))

	_, ok = m.Get("ETHUSDT")
	assert.False(t, ok)
}

func TestLoadFailsOnStoreError(t *testing.T) {
	m := NewManager(fakeStore{})
	assert.Error(t, m.Load(context.Background(), []string{"BROKEN"}))
	assert.NoError(t, NewManager(nil).Load(context.Background(), []string{"BROKEN"}))
}

func TestOpenCloseAll(t *testing.T) {
	m := NewManager(nil)
	m.Open(ActiveTrade{Symbol: "ethusdt", Quantity: 1, EntryPrice: 10})
	m.Open(ActiveTrade{Symbol: "BTCUSDT", Quantity: 2, EntryPrice: 20})

	all := m.All()
	require.Len(t, all, 2)
	assert.Equal(t, "BTCUSDT", all[0].Symbol)
	assert.Equal(t, "ETHUSDT", all[1].Symbol)

	closed, ok := m.Close("ETHUSDT")
	require.True(t, ok)
	assert.InDelta(t, 10, closed.EntryPrice, 1e-9)
	assert.Equal(t, 1, m.Count())

	_, ok = m.Close("ETHUSDT")
	assert.False(t, ok)
}

func TestCloseIfMatchesTradeID(t *testing.T) {
	m := NewManager(nil)
	m.Open(ActiveTrade{Symbol: "btcusdt", TradeID: "b2", Quantity: 0.2, EntryPrice: 41000})

	_, ok := m.CloseIf("BTCUSDT", "b1")
	assert.False(t, ok)
	assert.Equal(t, 1, m.Count())

	closed, ok := m.CloseIf(" btcusdt ", "b2")
	require.True(t, ok)
	assert.Equal(t, "b2", closed.TradeID)
	assert.Zero(t, m.Count())

	_, ok = m.CloseIf("BTCUSDT", "b2")
	assert.False(t, ok)
}
