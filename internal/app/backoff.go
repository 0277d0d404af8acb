package app

import (
	"context"
	"math/rand"
	"time"
)

// Retry delays used between ResumeWorkflow attempts.
const (
	DefaultBackoffInitial = 500 * time.Millisecond
	DefaultBackoffMax     = 10 * time.Second

	jitterRatio = 0.2
)

// backoff doubles its delay after every wait, up to max. Each wait is
// spread by up to jitterRatio in either direction.
type backoff struct {
	delay time.Duration
	max   time.Duration
}

func newBackoff(initial, max time.Duration) *backoff {
	if max < initial {
		max = initial
	}
	return &backoff{delay: initial, max: max}
}

// Current is the unjittered delay the next Wait will use.
func (b *backoff) Current() time.Duration {
	return b.delay
}

// next returns the jittered delay for this attempt and advances the schedule.
func (b *backoff) next() time.Duration {
	d := b.delay
	spread := float64(d) * jitterRatio * (2*rand.Float64() - 1)
	b.delay = min(2*b.delay, b.max)
	return d + time.Duration(spread)
}

// Wait blocks for the next delay or until ctx is done.
func (b *backoff) Wait(ctx context.Context) error {
	t := time.NewTimer(b.next())
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
