package common

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TimeSync keeps the local clock offset against the exchange server for signed requests.
type TimeSync struct {
	getServerTime func(ctx context.Context) (int64, error)
	offset        int64 // milliseconds offset (server - local)
	lastSync      time.Time
	syncInterval  time.Duration
	mu            sync.RWMutex
}

func NewTimeSync(getServerTime func(ctx context.Context) (int64, error)) *TimeSync {
	return &TimeSync{
		getServerTime: getServerTime,
		syncInterval:  30 * time.Minute,
	}
}

// Sync synchronizes with server time.
func (ts *TimeSync) Sync(ctx context.Context) error {
	localBefore := time.Now().UnixMilli()
	serverTime, err := ts.getServerTime(ctx)
	if err != nil {
		return err
	}
	localAfter := time.Now().UnixMilli()

	// Assume network latency is symmetric
	localTime := localBefore + (localAfter-localBefore)/2

	ts.mu.Lock()
	ts.offset = serverTime - localTime
	ts.lastSync = time.Now()
	ts.mu.Unlock()

	logrus.WithField("offset_ms", serverTime-localTime).Debug("exchange time synced")
	return nil
}

// Now returns the current time in milliseconds adjusted for server offset,
// resyncing when the last sync is older than the sync interval.
func (ts *TimeSync) Now(ctx context.Context) int64 {
	ts.mu.RLock()
	stale := time.Since(ts.lastSync) > ts.syncInterval
	ts.mu.RUnlock()
	if stale {
		if err := ts.Sync(ctx); err != nil {
			logrus.WithError(err).Warn("exchange time sync failed")
		}
	}
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return time.Now().UnixMilli() + ts.offset
}

// Offset returns the current time offset in milliseconds.
func (ts *TimeSync) Offset() int64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.offset
}
