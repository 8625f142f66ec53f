package httpclient

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Backoff decides how many attempts a logical call gets and how long to wait
// after a failed attempt. attempt is 1-based and names the attempt that just
// failed.
type Backoff interface {
	MaxAttempts() int
	Delay(attempt int) time.Duration
}

// FixedBackoff waits the same interval between attempts, optionally plus a
// uniform random jitter in [0, Jitter).
type FixedBackoff struct {
	Attempts int
	Interval time.Duration
	Jitter   time.Duration
}

// DefaultBackoff is ten attempts two seconds apart.
var DefaultBackoff = FixedBackoff{Attempts: 10, Interval: 2 * time.Second}

func (b FixedBackoff) MaxAttempts() int {
	if b.Attempts < 1 {
		return 1
	}
	return b.Attempts
}

func (b FixedBackoff) Delay(int) time.Duration {
	return b.Interval + jitter(b.Jitter)
}

// ExponentialBackoff multiplies the delay after every failure, capped at Max.
type ExponentialBackoff struct {
	Attempts   int
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     time.Duration
}

func (b ExponentialBackoff) MaxAttempts() int {
	if b.Attempts < 1 {
		return 1
	}
	return b.Attempts
}

func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	multiplier := b.Multiplier
	if multiplier < 1 {
		multiplier = 2
	}
	delay := float64(b.Initial) * math.Pow(multiplier, float64(attempt-1))
	if b.Max > 0 && delay > float64(b.Max) {
		delay = float64(b.Max)
	}
	return time.Duration(delay) + jitter(b.Jitter)
}

func jitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(limit)))
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
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
