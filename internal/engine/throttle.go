package engine

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Throttle spaces out requests within one pass. Every request except the
// first waits a uniform random delay from its host's range.
type Throttle struct {
	mu      sync.Mutex
	delays  func(host string) (time.Duration, time.Duration)
	sleep   SleepFunc
	jitter  func(n int64) int64
	started bool
}

// NewThrottle builds a Throttle over a per-host delay lookup.
func NewThrottle(delays func(host string) (time.Duration, time.Duration), sleep SleepFunc) *Throttle {
	if sleep == nil {
		sleep = Sleep
	}
	return &Throttle{delays: delays, sleep: sleep, jitter: rand.Int64N}
}

// Delay draws the wait before a request to host.
func (t *Throttle) Delay(host string) time.Duration {
	lo, hi := t.delays(host)
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(t.jitter(int64(hi-lo)+1))
}

// Wait blocks before a request to host. The first call returns at once.
func (t *Throttle) Wait(ctx context.Context, host string) error {
	t.mu.Lock()
	first := !t.started
	t.started = true
	t.mu.Unlock()

	if first {
		return ctx.Err()
	}
	return t.sleep(ctx, t.Delay(host))
}
