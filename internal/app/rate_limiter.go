package app

import (
	"sync"
	"time"

	"github.com/dkeye/tileworld/internal/domain"
)

const DefaultThrottleInterval = 100 * time.Millisecond

// MoveRateLimiter accepts at most one move per interval per user.
// Rejected moves are dropped by the caller, never queued.
type MoveRateLimiter struct {
	mu       sync.Mutex
	last     map[domain.UserID]time.Time
	interval time.Duration
	now      func() time.Time
}

func NewMoveRateLimiter(interval time.Duration) *MoveRateLimiter {
	if interval <= 0 {
		interval = DefaultThrottleInterval
	}
	return &MoveRateLimiter{
		last:     make(map[domain.UserID]time.Time),
		interval: interval,
		now:      time.Now,
	}
}

// WithClock replaces the time source; used by tests.
func (rl *MoveRateLimiter) WithClock(now func() time.Time) *MoveRateLimiter {
	rl.now = now
	return rl
}

func (rl *MoveRateLimiter) Allow(uid domain.UserID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if last, ok := rl.last[uid]; ok && now.Sub(last) < rl.interval {
		return false
	}
	rl.last[uid] = now
	return true
}

// Forget drops the user's history so the map does not grow unbounded.
func (rl *MoveRateLimiter) Forget(uid domain.UserID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.last, uid)
}

func (rl *MoveRateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.last)
}
