package retry

import (
	"fmt"
	"math"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// Backoff is an exponential backoff used when the queue transport fails while a
// subscriber is running (for example a peek that returns a database error).
//
// The delay doubles per attempt: delay = min(BaseDelay * 2^(attempt-1), MaxDelay)
//
// Example with defaults (250ms base, 30s max):
//
//	Attempt 1: 250ms
//	Attempt 2: 500ms
//	Attempt 3: 1s
//	...
//	Attempt 8: 30s (capped)
type Backoff struct {
	BaseDelay time.Duration // Delay of the first attempt
	MaxDelay  time.Duration // Maximum delay cap, 0 means uncapped
}

// DefaultBackoff returns the backoff used by subscribers unless configured otherwise.
func DefaultBackoff() Backoff {
	return Backoff{
		BaseDelay: 250 * time.Millisecond,
		MaxDelay:  30 * time.Second,
	}
}

// Delay calculates the wait before the given (1-based) attempt.
// Attempts <= 1 wait BaseDelay. A non-positive BaseDelay never waits.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.BaseDelay <= 0 {
		return 0
	}

	next := b.sequence()
	delay, _ := next.Next()
	for i := 1; i < attempt && !b.reachedCap(delay); i++ {
		delay, _ = next.Next()
	}
	return delay
}

// sequence returns a fresh go-retry backoff yielding the delays from attempt 1 on.
func (b Backoff) sequence() goretry.Backoff {
	next := goretry.NewExponential(b.BaseDelay)
	if b.MaxDelay > 0 {
		next = goretry.WithCappedDuration(b.MaxDelay, next)
	}
	return next
}

// reachedCap reports whether later attempts can no longer grow the delay.
func (b Backoff) reachedCap(delay time.Duration) bool {
	if delay == math.MaxInt64 {
		return true
	}
	return b.MaxDelay > 0 && delay >= b.MaxDelay
}

// Schedule returns a human-readable description of the first n delays.
func (b Backoff) Schedule(n int) string {
	schedule := "Backoff Schedule:\n"
	for i := 1; i <= n; i++ {
		schedule += fmt.Sprintf("  Attempt %d: after %v\n", i, b.Delay(i))
	}
	return schedule
}
