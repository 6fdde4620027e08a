// ABOUTME: Exponential backoff state for retrying transient backend failures.
// ABOUTME: Pure arithmetic; jitter and sleeping are injected by the gateway.

package llm

import (
	"context"
	"math/rand"
	"time"
)

const (
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 10 * time.Second
	backoffFactor  = 2
)

// RetryState tracks where a retry sequence stands. Attempt counts completed
// tries, Delay is the base wait before the next one.
type RetryState struct {
	Attempt int
	Delay   time.Duration
}

// NewRetryState returns the state before the first attempt.
func NewRetryState() RetryState {
	return RetryState{Attempt: 0, Delay: initialBackoff}
}

// Advance records a finished attempt and doubles the delay up to the cap.
func (s RetryState) Advance() RetryState {
	next := RetryState{Attempt: s.Attempt + 1, Delay: s.Delay * backoffFactor}
	if next.Delay > maxBackoff {
		next.Delay = maxBackoff
	}
	return next
}

// Jitter perturbs a base delay so colliding agents do not retry in lockstep.
type Jitter func(time.Duration) time.Duration

// defaultJitter picks a wait uniformly from [d/2, 3d/2).
func defaultJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d/2 + time.Duration(rand.Int63n(int64(d)))
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
