package simplepublish

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeClock is a deterministic Clock for tests. Sleep records the requested
// duration and advances the clock instead of blocking.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

func TestRealClock_SleepReturnsImmediatelyForZeroDuration(t *testing.T) {
	clk := NewClock()

	start := time.Now()
	if err := clk.Sleep(context.Background(), 0); err != nil {
		t.Fatalf("Sleep(0) returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("Sleep(0) blocked for %s", elapsed)
	}
}

func TestRealClock_SleepHonorsCancelledContext(t *testing.T) {
	clk := NewClock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := clk.Sleep(ctx, time.Minute); err != context.Canceled {
		t.Fatalf("Sleep on cancelled context returned %v, want context.Canceled", err)
	}
}

func TestRealClock_SleepWaitsForDuration(t *testing.T) {
	clk := NewClock()

	start := time.Now()
	if err := clk.Sleep(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("Sleep returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Fatalf("Sleep returned after %s, want at least 10ms", elapsed)
	}
}
