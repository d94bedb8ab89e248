package market

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Jorgeperez0825/botnext/pkg/cache"
)

// SnapshotCache persists snapshots outside the process so a restart or a
// second reader can skip the REST warmup.
type SnapshotCache struct {
	Store cache.Store
	TTL   time.Duration
}

func snapshotKey(symbol string) string {
	return "snapshot:" + strings.ToUpper(symbol)
}

// GetSnapshot returns the cached snapshot or (nil, nil) when absent.
func (c *SnapshotCache) GetSnapshot(ctx context.Context, symbol string) (*Snapshot, error) {
	if c == nil || c.Store == nil {
		return nil, nil
	}
	var snap Snapshot
	if err := cache.GetJSON(ctx, c.Store, snapshotKey(symbol), &snap); err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, nil
		}
		return nil, err
	}
	return &snap, nil
}

func (c *SnapshotCache) PutSnapshot(ctx context.Context, snap *Snapshot) error {
	if c == nil || c.Store == nil || snap == nil {
		return nil
	}
	return cache.SetJSON(ctx, c.Store, snapshotKey(snap.Symbol), snap, c.TTL)
}
