package simplepublish

import (
	"context"
	"time"
)

// Clock abstracts wall time and sleeping so scheduling, retry backoff, and
// wave pacing are deterministic under test. All time reads and all sleeps in
// this package go through it.
type Clock interface {
	// Now returns the current time
	Now() time.Time

	// Sleep blocks for d or until the context is done, returning ctx.Err()
	// in that case
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// NewClock returns the wall-time clock used by default.
func NewClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
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
