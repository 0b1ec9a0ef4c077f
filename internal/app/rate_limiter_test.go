package app

import (
	"testing"
	"time"
)

func TestMoveRateLimiter(t *testing.T) {
	now := time.Unix(0, 0)
	rl := NewMoveRateLimiter(100 * time.Millisecond).WithClock(func() time.Time { return now })

	if !rl.Allow("alice") {
		t.Fatalf("expected first move accepted")
	}
	now = now.Add(50 * time.Millisecond)
	if rl.Allow("alice") {
		t.Fatalf("expected move at 50ms throttled")
	}
	if !rl.Allow("bob") {
		t.Fatalf("expected other users unaffected")
	}
	now = now.Add(100 * time.Millisecond)
	if !rl.Allow("alice") {
		t.Fatalf("expected move at 150ms accepted")
	}
	now = now.Add(100 * time.Millisecond)
	if !rl.Allow("alice") {
		t.Fatalf("expected move exactly one interval later accepted")
	}

	rl.Forget("alice")
	rl.Forget("bob")
	if n := rl.Tracked(); n != 0 {
		t.Fatalf("expected no tracked users, got %d", n)
	}
}

func TestMoveRateLimiterDefaultsInterval(t *testing.T) {
	rl := NewMoveRateLimiter(0)
	if rl.interval != DefaultThrottleInterval {
		t.Fatalf("expected %v, got %v", DefaultThrottleInterval, rl.interval)
	}
}
