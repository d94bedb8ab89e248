package common

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimiter paces outgoing requests and tracks the exchange's reported weight usage.
type RateLimiter struct {
	limiter       *rate.Limiter
	usedWeight    int
	limit         int
	lastReset     time.Time
	resetInterval time.Duration
	logger        logrus.FieldLogger
	mu            sync.RWMutex
}

// NewRateLimiter creates a limiter allowing rps requests per second and
// tracking limit weight per resetInterval (1200 per minute for spot).
func NewRateLimiter(rps float64, limit int, resetInterval time.Duration) *RateLimiter {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiter:       rate.NewLimiter(rate.Limit(rps), burst),
		limit:         limit,
		resetInterval: resetInterval,
		lastReset:     time.Now(),
		logger:        logrus.StandardLogger(),
	}
}

// Wait blocks until a request may be sent. Near the weight ceiling it also
// waits for the window to roll over.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl.ShouldDelay() {
		rl.mu.RLock()
		remaining := rl.resetInterval - time.Since(rl.lastReset)
		rl.mu.RUnlock()
		if remaining > 0 {
			t := time.NewTimer(remaining)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
		}
	}
	return rl.limiter.Wait(ctx)
}

// UpdateFromHeader updates the used weight from the X-MBX-USED-WEIGHT-1M header.
func (rl *RateLimiter) UpdateFromHeader(headerValue string) {
	if headerValue == "" {
		return
	}
	weight, err := strconv.Atoi(headerValue)
	if err != nil {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Since(rl.lastReset) >= rl.resetInterval {
		rl.lastReset = time.Now()
	}
	rl.usedWeight = weight

	pct := float64(rl.usedWeight) / float64(rl.limit) * 100
	entry := rl.logger.WithFields(logrus.Fields{"used": rl.usedWeight, "limit": rl.limit, "pct": pct})
	if pct >= 95 {
		entry.Error("rate limit critical, approaching ban threshold")
	} else if pct >= 80 {
		entry.Warn("rate limit warning")
	}
}

// GetUsage returns current usage information.
func (rl *RateLimiter) GetUsage() (used int, limit int, percentage float64) {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	if time.Since(rl.lastReset) >= rl.resetInterval {
		return 0, rl.limit, 0
	}
	return rl.usedWeight, rl.limit, float64(rl.usedWeight) / float64(rl.limit) * 100
}

// ShouldDelay returns true if we should delay the next request.
func (rl *RateLimiter) ShouldDelay() bool {
	_, _, pct := rl.GetUsage()
	return pct >= 90
}
