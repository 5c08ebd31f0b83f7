package simplepublish

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// failNOp returns an operation that fails its first n invocations with err
// and succeeds afterwards, plus a counter of invocations.
func failNOp(n int, err error) (Operation, *int) {
	calls := 0
	op := func(ctx context.Context) (any, error) {
		calls++
		if calls <= n {
			return nil, err
		}
		return "ok", nil
	}
	return op, &calls
}

func newTestExecutor(policy RetryPolicy, breaker BreakerConfig, clk Clock) *Executor {
	return NewExecutor(policy, breaker, WithExecutorClock(clk), WithExecutorLogger(discardLogger()))
}

func TestExecutor_SuccessOnFirstAttempt(t *testing.T) {
	clk := newFakeClock(time.Now())
	exec := newTestExecutor(RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second, Exponential: true}, BreakerConfig{FailureThreshold: 5, ResetTimeout: time.Minute}, clk)
	op, calls := failNOp(0, nil)

	res := exec.Execute(context.Background(), "blog", op)

	if !res.Success {
		t.Fatalf("expected success, got error: %v", res.Err)
	}
	if res.Data != "ok" {
		t.Errorf("Data = %v, want ok", res.Data)
	}
	if res.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", res.Attempts)
	}
	if *calls != 1 {
		t.Errorf("operation invoked %d times, want 1", *calls)
	}
	if len(clk.Sleeps()) != 0 {
		t.Errorf("unexpected backoff sleeps: %v", clk.Sleeps())
	}
	if st, ok := exec.State("blog"); !ok || st.State != BreakerClosed {
		t.Errorf("breaker state = %+v (ok=%v), want closed", st, ok)
	}
}

func TestExecutor_RetriesTransientFailures(t *testing.T) {
	clk := newFakeClock(time.Now())
	exec := newTestExecutor(RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second, Exponential: true}, BreakerConfig{FailureThreshold: 10, ResetTimeout: time.Minute}, clk)
	op, calls := failNOp(2, &HTTPError{StatusCode: 503, Status: "503 Service Unavailable"})

	res := exec.Execute(context.Background(), "blog", op)

	if !res.Success {
		t.Fatalf("expected success after retries, got error: %v", res.Err)
	}
	if res.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", res.Attempts)
	}
	if *calls != 3 {
		t.Errorf("operation invoked %d times, want 3", *calls)
	}

	sleeps := clk.Sleeps()
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", sleeps, want)
	}
	for i := range want {
		if sleeps[i] != want[i] {
			t.Errorf("sleep %d = %s, want %s", i, sleeps[i], want[i])
		}
	}

	// Success resets the consecutive failure count.
	st, _ := exec.State("blog")
	if st.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d, want 0 after success", st.ConsecutiveFailures)
	}
}

func TestExecutor_NonRetryableErrorStopsImmediately(t *testing.T) {
	clk := newFakeClock(time.Now())
	exec := newTestExecutor(RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second, Exponential: true}, BreakerConfig{FailureThreshold: 10, ResetTimeout: time.Minute}, clk)
	op, calls := failNOp(10, &HTTPError{StatusCode: 400, Status: "400 Bad Request"})

	res := exec.Execute(context.Background(), "blog", op)

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1 for non-retryable error", res.Attempts)
	}
	if *calls != 1 {
		t.Errorf("operation invoked %d times, want 1", *calls)
	}
	if res.Kind != ErrorKindClient {
		t.Errorf("Kind = %s, want %s", res.Kind, ErrorKindClient)
	}
	var httpErr *HTTPError
	if !errors.As(res.Err, &httpErr) || httpErr.StatusCode != 400 {
		t.Errorf("Err = %v, want the original 400 HTTPError", res.Err)
	}
	if len(clk.Sleeps()) != 0 {
		t.Errorf("unexpected backoff sleeps: %v", clk.Sleeps())
	}
}

func TestExecutor_RetryExhaustion(t *testing.T) {
	clk := newFakeClock(time.Now())
	exec := newTestExecutor(RetryPolicy{MaxRetries: 2, BaseDelay: time.Second, MaxDelay: 30 * time.Second, Exponential: true}, BreakerConfig{FailureThreshold: 10, ResetTimeout: time.Minute}, clk)
	op, calls := failNOp(10, &HTTPError{StatusCode: 502, Status: "502 Bad Gateway"})

	res := exec.Execute(context.Background(), "blog", op)

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3 (1 initial + 2 retries)", res.Attempts)
	}
	if *calls != 3 {
		t.Errorf("operation invoked %d times, want 3", *calls)
	}
	if res.Kind != ErrorKindRetryExhausted {
		t.Errorf("Kind = %s, want %s", res.Kind, ErrorKindRetryExhausted)
	}
	if !errors.Is(res.Err, ErrRetryExhausted) {
		t.Errorf("Err = %v, want wrapped ErrRetryExhausted", res.Err)
	}
	if !strings.Contains(res.Err.Error(), "after 3 attempts") {
		t.Errorf("Err = %q, want attempt count in message", res.Err)
	}
	var httpErr *HTTPError
	if !errors.As(res.Err, &httpErr) {
		t.Errorf("Err = %v, want the underlying HTTPError preserved", res.Err)
	}
}

func TestExecutor_RetryDelays(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		attempt int
		want    time.Duration
	}{
		{"exponential second attempt", RetryPolicy{BaseDelay: time.Second, MaxDelay: 30 * time.Second, Exponential: true}, 2, time.Second},
		{"exponential third attempt", RetryPolicy{BaseDelay: time.Second, MaxDelay: 30 * time.Second, Exponential: true}, 3, 2 * time.Second},
		{"exponential fourth attempt", RetryPolicy{BaseDelay: time.Second, MaxDelay: 30 * time.Second, Exponential: true}, 4, 4 * time.Second},
		{"exponential sixth attempt", RetryPolicy{BaseDelay: time.Second, MaxDelay: 30 * time.Second, Exponential: true}, 6, 16 * time.Second},
		{"exponential capped at max", RetryPolicy{BaseDelay: time.Second, MaxDelay: 30 * time.Second, Exponential: true}, 7, 30 * time.Second},
		{"exponential stays capped", RetryPolicy{BaseDelay: time.Second, MaxDelay: 30 * time.Second, Exponential: true}, 12, 30 * time.Second},
		{"constant backoff", RetryPolicy{BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}, 5, 2 * time.Second},
		{"constant capped at max", RetryPolicy{BaseDelay: 10 * time.Second, MaxDelay: 5 * time.Second}, 2, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := newTestExecutor(tt.policy, BreakerConfig{}, newFakeClock(time.Now()))
			if got := exec.retryDelay(tt.attempt); got != tt.want {
				t.Errorf("retryDelay(%d) = %s, want %s", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestExecutor_JitterAddsToDelay(t *testing.T) {
	policy := RetryPolicy{BaseDelay: time.Second, MaxDelay: 30 * time.Second, Exponential: true, Jitter: 500 * time.Millisecond}
	exec := newTestExecutor(policy, BreakerConfig{}, newFakeClock(time.Now()))
	exec.jitterN = func(n int64) int64 { return n / 2 }

	if got, want := exec.retryDelay(2), time.Second+250*time.Millisecond; got != want {
		t.Errorf("retryDelay(2) = %s, want %s", got, want)
	}

	// Jitter never pushes the delay past MaxDelay.
	capped := RetryPolicy{BaseDelay: time.Second, MaxDelay: 1100 * time.Millisecond, Exponential: true, Jitter: 500 * time.Millisecond}
	exec = newTestExecutor(capped, BreakerConfig{}, newFakeClock(time.Now()))
	exec.jitterN = func(n int64) int64 { return n }
	if got, want := exec.retryDelay(2), 1100*time.Millisecond; got != want {
		t.Errorf("retryDelay(2) = %s, want capped %s", got, want)
	}
}

func TestExecutor_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	clk := newFakeClock(time.Now())

	var mu sync.Mutex
	var transitions []BreakerState
	exec := NewExecutor(
		RetryPolicy{MaxRetries: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		BreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute},
		WithExecutorClock(clk),
		WithExecutorLogger(discardLogger()),
		WithBreakerStateChange(func(target string, from, to BreakerState) {
			mu.Lock()
			transitions = append(transitions, to)
			mu.Unlock()
		}),
	)
	op, calls := failNOp(10, errors.New("connection refused"))

	res := exec.Execute(context.Background(), "twitter", op)

	if res.Success {
		t.Fatal("expected failure")
	}
	// The third failure trips the breaker, so the fourth attempt is refused
	// before the operation runs.
	if *calls != 3 {
		t.Errorf("operation invoked %d times, want 3", *calls)
	}
	if res.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", res.Attempts)
	}
	if res.Kind != ErrorKindBreakerOpen {
		t.Errorf("Kind = %s, want %s", res.Kind, ErrorKindBreakerOpen)
	}
	if !errors.Is(res.Err, ErrBreakerOpen) {
		t.Errorf("Err = %v, want wrapped ErrBreakerOpen", res.Err)
	}

	st, ok := exec.State("twitter")
	if !ok {
		t.Fatal("expected breaker state for twitter")
	}
	if st.State != BreakerOpen {
		t.Errorf("State = %s, want %s", st.State, BreakerOpen)
	}
	if st.ConsecutiveFailures != 3 {
		t.Errorf("ConsecutiveFailures = %d, want 3", st.ConsecutiveFailures)
	}
	if st.LastFailureAt.IsZero() {
		t.Error("LastFailureAt not recorded")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) == 0 || transitions[len(transitions)-1] != BreakerOpen {
		t.Errorf("transitions = %v, want final %s", transitions, BreakerOpen)
	}
}

func TestExecutor_OpenBreakerShortCircuits(t *testing.T) {
	clk := newFakeClock(time.Now())
	exec := newTestExecutor(RetryPolicy{MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour}, clk)

	failOp, _ := failNOp(1, errors.New("connection refused"))
	if res := exec.Execute(context.Background(), "twitter", failOp); res.Success {
		t.Fatal("expected tripping call to fail")
	}

	op, calls := failNOp(0, nil)
	res := exec.Execute(context.Background(), "twitter", op)

	if *calls != 0 {
		t.Errorf("operation invoked %d times, want 0 while breaker is open", *calls)
	}
	if res.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", res.Attempts)
	}
	if res.Kind != ErrorKindBreakerOpen {
		t.Errorf("Kind = %s, want %s", res.Kind, ErrorKindBreakerOpen)
	}
	if !errors.Is(res.Err, ErrBreakerOpen) {
		t.Errorf("Err = %v, want wrapped ErrBreakerOpen", res.Err)
	}
}

func TestExecutor_BreakersAreIndependentPerTarget(t *testing.T) {
	clk := newFakeClock(time.Now())
	exec := newTestExecutor(RetryPolicy{MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour}, clk)

	failOp, _ := failNOp(1, errors.New("connection refused"))
	exec.Execute(context.Background(), "twitter", failOp)

	op, calls := failNOp(0, nil)
	res := exec.Execute(context.Background(), "mastodon", op)
	if !res.Success || *calls != 1 {
		t.Fatalf("mastodon publish blocked by twitter breaker: %+v", res)
	}

	states := exec.States()
	if len(states) != 2 {
		t.Fatalf("States() returned %d entries, want 2", len(states))
	}
	if states[0].Target != "mastodon" || states[1].Target != "twitter" {
		t.Errorf("States() order = [%s %s], want sorted by target", states[0].Target, states[1].Target)
	}
	if states[0].State != BreakerClosed {
		t.Errorf("mastodon breaker = %s, want %s", states[0].State, BreakerClosed)
	}
	if states[1].State != BreakerOpen {
		t.Errorf("twitter breaker = %s, want %s", states[1].State, BreakerOpen)
	}
}

func TestExecutor_HalfOpenClosesAfterSuccesses(t *testing.T) {
	exec := NewExecutor(
		RetryPolicy{MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		BreakerConfig{FailureThreshold: 1, ResetTimeout: 20 * time.Millisecond},
		WithExecutorLogger(discardLogger()),
	)

	failOp, _ := failNOp(1, errors.New("connection refused"))
	exec.Execute(context.Background(), "blog", failOp)
	if st, _ := exec.State("blog"); st.State != BreakerOpen {
		t.Fatalf("State = %s, want %s after trip", st.State, BreakerOpen)
	}

	// Wait out the reset timeout so probe traffic is allowed again.
	time.Sleep(60 * time.Millisecond)

	for i := 1; i <= halfOpenSuccessesToClose; i++ {
		op, _ := failNOp(0, nil)
		if res := exec.Execute(context.Background(), "blog", op); !res.Success {
			t.Fatalf("probe %d failed: %v", i, res.Err)
		}
		st, _ := exec.State("blog")
		if i < halfOpenSuccessesToClose {
			if st.State != BreakerHalfOpen {
				t.Fatalf("State after %d probes = %s, want %s", i, st.State, BreakerHalfOpen)
			}
			if st.HalfOpenSuccesses != i {
				t.Errorf("HalfOpenSuccesses = %d, want %d", st.HalfOpenSuccesses, i)
			}
		} else if st.State != BreakerClosed {
			t.Fatalf("State after %d probes = %s, want %s", i, st.State, BreakerClosed)
		}
	}

	st, _ := exec.State("blog")
	if st.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d, want 0 after close", st.ConsecutiveFailures)
	}
}

func TestExecutor_HalfOpenFailureReopens(t *testing.T) {
	exec := NewExecutor(
		RetryPolicy{MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		BreakerConfig{FailureThreshold: 1, ResetTimeout: 20 * time.Millisecond},
		WithExecutorLogger(discardLogger()),
	)

	failOp, _ := failNOp(10, errors.New("connection refused"))
	exec.Execute(context.Background(), "blog", failOp)

	time.Sleep(60 * time.Millisecond)

	res := exec.Execute(context.Background(), "blog", failOp)
	if res.Success {
		t.Fatal("expected probe to fail")
	}
	if st, _ := exec.State("blog"); st.State != BreakerOpen {
		t.Errorf("State = %s, want %s after failed probe", st.State, BreakerOpen)
	}
}

func TestExecutor_ResetForcesBreakerClosed(t *testing.T) {
	clk := newFakeClock(time.Now())
	exec := newTestExecutor(RetryPolicy{MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour}, clk)

	failOp, _ := failNOp(1, errors.New("connection refused"))
	exec.Execute(context.Background(), "twitter", failOp)

	exec.Reset("twitter")

	st, ok := exec.State("twitter")
	if !ok || st.State != BreakerClosed {
		t.Fatalf("State = %+v (ok=%v), want closed after reset", st, ok)
	}
	if st.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d, want 0", st.ConsecutiveFailures)
	}

	op, calls := failNOp(0, nil)
	if res := exec.Execute(context.Background(), "twitter", op); !res.Success || *calls != 1 {
		t.Errorf("publish after reset blocked: %+v", res)
	}

	// Resetting an unknown target is a no-op.
	exec.Reset("nonexistent")
}

func TestExecutor_CancelledContextAbortsBackoff(t *testing.T) {
	clk := newFakeClock(time.Now())
	exec := newTestExecutor(RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second, Exponential: true}, BreakerConfig{FailureThreshold: 10, ResetTimeout: time.Minute}, clk)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	op := func(ctx context.Context) (any, error) {
		calls++
		cancel()
		return nil, &HTTPError{StatusCode: 503, Status: "503 Service Unavailable"}
	}

	res := exec.Execute(ctx, "blog", op)

	if calls != 1 {
		t.Errorf("operation invoked %d times, want 1", calls)
	}
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", res.Err)
	}
	if res.Kind != ErrorKindClient {
		t.Errorf("Kind = %s, want %s", res.Kind, ErrorKindClient)
	}
}

func TestExecutor_AppliesDefaults(t *testing.T) {
	exec := NewExecutor(RetryPolicy{MaxRetries: -1}, BreakerConfig{})

	if exec.policy.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want 0", exec.policy.MaxRetries)
	}
	if exec.policy.BaseDelay != DefaultRetryPolicy().BaseDelay {
		t.Errorf("BaseDelay = %s, want default %s", exec.policy.BaseDelay, DefaultRetryPolicy().BaseDelay)
	}
	if exec.policy.MaxDelay != DefaultRetryPolicy().MaxDelay {
		t.Errorf("MaxDelay = %s, want default %s", exec.policy.MaxDelay, DefaultRetryPolicy().MaxDelay)
	}
	if exec.breaker.FailureThreshold != DefaultBreakerConfig().FailureThreshold {
		t.Errorf("FailureThreshold = %d, want default %d", exec.breaker.FailureThreshold, DefaultBreakerConfig().FailureThreshold)
	}
	if exec.breaker.ResetTimeout != DefaultBreakerConfig().ResetTimeout {
		t.Errorf("ResetTimeout = %s, want default %s", exec.breaker.ResetTimeout, DefaultBreakerConfig().ResetTimeout)
	}

	if _, ok := exec.State("unknown"); ok {
		t.Error("State returned ok for a target that never published")
	}
}
