package simplepublish

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
)

// RetryPolicy controls per-call retry behavior inside the executor.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int

	// BaseDelay seeds the backoff before the second attempt
	BaseDelay time.Duration

	// MaxDelay caps every computed delay, jitter included
	MaxDelay time.Duration

	// Exponential doubles the delay per attempt; false keeps it at BaseDelay
	Exponential bool

	// Jitter adds a uniform random duration in [0, Jitter) to every delay
	Jitter time.Duration

	// RetryableErrors are substring fallbacks that mark otherwise
	// unclassified errors as retryable
	RetryableErrors []string
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Exponential: true,
		Jitter:      100 * time.Millisecond,
	}
}

// BreakerConfig controls the per-target circuit breakers.
type BreakerConfig struct {
	// FailureThreshold is the consecutive failure count that opens a breaker
	FailureThreshold int

	// ResetTimeout is how long an open breaker rejects calls before the
	// next call probes it half-open
	ResetTimeout time.Duration
}

// DefaultBreakerConfig returns the breaker settings used when none are
// configured.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, ResetTimeout: 30 * time.Second}
}

// halfOpenSuccessesToClose is how many consecutive half-open successes close
// a breaker again. A single half-open failure reopens it.
const halfOpenSuccessesToClose = 3

// Operation is a unit of work run through the executor. The executor knows
// nothing about what the operation does; it only classifies its errors.
type Operation func(ctx context.Context) (any, error)

// Result is the executor's account of one Execute call.
type Result struct {
	Success  bool
	Data     any
	Err      error
	Kind     ErrorKind
	Attempts int // operation invocations actually made
	Elapsed  time.Duration
}

// Executor runs operations with retry backoff and one circuit breaker per
// target. It is safe for concurrent use; calls against the same target share
// that target's breaker, which is intentional.
type Executor struct {
	policy  RetryPolicy
	breaker BreakerConfig
	clock   Clock
	logger  *slog.Logger
	onState func(target string, from, to BreakerState)
	jitterN func(int64) int64

	mu       sync.Mutex
	breakers map[string]*targetBreaker
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorClock sets the clock used for delays and elapsed accounting.
func WithExecutorClock(c Clock) ExecutorOption {
	return func(e *Executor) { e.clock = c }
}

// WithExecutorLogger sets the logger for retry and breaker activity.
func WithExecutorLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// WithBreakerStateChange registers a callback fired on every breaker
// transition. The callback must not call back into the executor.
func WithBreakerStateChange(fn func(target string, from, to BreakerState)) ExecutorOption {
	return func(e *Executor) { e.onState = fn }
}

// NewExecutor creates an executor with the given retry policy and breaker
// settings. Zero-valued fields fall back to the defaults.
func NewExecutor(policy RetryPolicy, breaker BreakerConfig, opts ...ExecutorOption) *Executor {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = DefaultRetryPolicy().BaseDelay
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = DefaultRetryPolicy().MaxDelay
	}
	if breaker.FailureThreshold <= 0 {
		breaker.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if breaker.ResetTimeout <= 0 {
		breaker.ResetTimeout = DefaultBreakerConfig().ResetTimeout
	}
	e := &Executor{
		policy:   policy,
		breaker:  breaker,
		clock:    NewClock(),
		logger:   slog.Default(),
		jitterN:  rand.Int63n,
		breakers: make(map[string]*targetBreaker),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs op with retries under the target's circuit breaker. The
// breaker gates every attempt, including the first; an open breaker fails
// the call immediately without invoking op.
func (e *Executor) Execute(ctx context.Context, target string, op Operation) Result {
	target = NormalizeTarget(target)
	start := e.clock.Now()
	br := e.breakerFor(target)

	var lastErr error
	var lastKind ErrorKind
	attempts := 0

	for attempt := 1; attempt <= e.policy.MaxRetries+1; attempt++ {
		if attempt > 1 {
			delay := e.retryDelay(attempt)
			e.logger.Debug("retrying publish call",
				"target", target, "attempt", attempt, "delay", delay, "last_error", lastErr)
			if err := e.clock.Sleep(ctx, delay); err != nil {
				return Result{
					Err:      err,
					Kind:     ClassifyError(err, nil),
					Attempts: attempts,
					Elapsed:  e.clock.Now().Sub(start),
				}
			}
		}

		if !br.cb.TryAcquirePermit() {
			return Result{
				Err:      fmt.Errorf("%w: target %s", ErrBreakerOpen, target),
				Kind:     ErrorKindBreakerOpen,
				Attempts: attempts,
				Elapsed:  e.clock.Now().Sub(start),
			}
		}

		data, err := op(ctx)
		attempts++
		if err == nil {
			br.recordSuccess()
			return Result{
				Success:  true,
				Data:     data,
				Attempts: attempts,
				Elapsed:  e.clock.Now().Sub(start),
			}
		}

		br.recordFailure(e.clock.Now())
		lastErr = err
		lastKind = ClassifyError(err, e.policy.RetryableErrors)
		if !lastKind.Retryable() {
			break
		}
	}

	if lastKind.Retryable() {
		lastErr = fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, lastErr)
		lastKind = ErrorKindRetryExhausted
	}
	return Result{
		Err:      lastErr,
		Kind:     lastKind,
		Attempts: attempts,
		Elapsed:  e.clock.Now().Sub(start),
	}
}

// retryDelay computes the sleep before attempt n (n >= 2): the deterministic
// backoff plus a uniform jitter, both capped at MaxDelay.
func (e *Executor) retryDelay(attempt int) time.Duration {
	d := backoffDelay(e.policy, attempt)
	if e.policy.Jitter > 0 {
		d += time.Duration(e.jitterN(int64(e.policy.Jitter)))
		if d > e.policy.MaxDelay {
			d = e.policy.MaxDelay
		}
	}
	return d
}

// backoffDelay is the deterministic part of the delay before attempt n:
// BaseDelay doubled per attempt past the first retry, capped at MaxDelay.
func backoffDelay(p RetryPolicy, attempt int) time.Duration {
	d := p.BaseDelay
	if p.Exponential {
		for i := 2; i < attempt; i++ {
			d *= 2
			if d >= p.MaxDelay {
				return p.MaxDelay
			}
		}
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// State returns the breaker snapshot for a target, if one exists yet.
func (e *Executor) State(target string) (CircuitState, bool) {
	e.mu.Lock()
	br, ok := e.breakers[NormalizeTarget(target)]
	e.mu.Unlock()
	if !ok {
		return CircuitState{}, false
	}
	return br.snapshot(), true
}

// States returns snapshots for every target the executor has seen, sorted by
// target name.
func (e *Executor) States() []CircuitState {
	e.mu.Lock()
	brs := make([]*targetBreaker, 0, len(e.breakers))
	for _, br := range e.breakers {
		brs = append(brs, br)
	}
	e.mu.Unlock()

	states := make([]CircuitState, 0, len(brs))
	for _, br := range brs {
		states = append(states, br.snapshot())
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Target < states[j].Target })
	return states
}

// Reset force-closes a target's breaker and clears its bookkeeping. Unknown
// targets are a no-op.
func (e *Executor) Reset(target string) {
	e.mu.Lock()
	br, ok := e.breakers[NormalizeTarget(target)]
	e.mu.Unlock()
	if !ok {
		return
	}
	br.reset()
}

func (e *Executor) breakerFor(target string) *targetBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	if br, ok := e.breakers[target]; ok {
		return br
	}

	br := &targetBreaker{target: target}
	br.cb = circuitbreaker.NewBuilder[any]().
		WithFailureThreshold(uint(e.breaker.FailureThreshold)).
		WithDelay(e.breaker.ResetTimeout).
		WithSuccessThreshold(halfOpenSuccessesToClose).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			from := convertBreakerState(event.OldState)
			to := convertBreakerState(event.NewState)
			br.onTransition(to)
			if to == BreakerOpen {
				e.logger.Warn("circuit breaker opened", "target", target)
			} else {
				e.logger.Info("circuit breaker state changed", "target", target, "from", from, "to", to)
			}
			if e.onState != nil {
				e.onState(target, from, to)
			}
		}).
		Build()
	e.breakers[target] = br
	return br
}

// targetBreaker pairs a failsafe circuit breaker with the snapshot
// bookkeeping the breaker does not expose. The executor is the only writer.
type targetBreaker struct {
	target string
	cb     circuitbreaker.CircuitBreaker[any]

	mu                  sync.Mutex
	consecutiveFailures int
	lastFailureAt       time.Time
	halfOpenSuccesses   int
}

// Lock order: never hold mu while calling into cb; cb's state change
// callback takes mu.

func (b *targetBreaker) recordSuccess() {
	half := b.cb.IsHalfOpen()
	b.mu.Lock()
	b.consecutiveFailures = 0
	if half {
		b.halfOpenSuccesses++
	}
	b.mu.Unlock()
	b.cb.RecordSuccess()
}

func (b *targetBreaker) recordFailure(now time.Time) {
	b.mu.Lock()
	b.consecutiveFailures++
	b.lastFailureAt = now
	b.halfOpenSuccesses = 0
	b.mu.Unlock()
	b.cb.RecordFailure()
}

func (b *targetBreaker) onTransition(to BreakerState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch to {
	case BreakerClosed:
		b.consecutiveFailures = 0
		b.halfOpenSuccesses = 0
	case BreakerHalfOpen:
		b.halfOpenSuccesses = 0
	}
}

func (b *targetBreaker) snapshot() CircuitState {
	state := convertBreakerState(b.cb.State())
	b.mu.Lock()
	defer b.mu.Unlock()
	return CircuitState{
		Target:              b.target,
		State:               state,
		ConsecutiveFailures: b.consecutiveFailures,
		LastFailureAt:       b.lastFailureAt,
		HalfOpenSuccesses:   b.halfOpenSuccesses,
	}
}

func (b *targetBreaker) reset() {
	b.cb.Close()
	b.mu.Lock()
	b.consecutiveFailures = 0
	b.lastFailureAt = time.Time{}
	b.halfOpenSuccesses = 0
	b.mu.Unlock()
}

func convertBreakerState(s circuitbreaker.State) BreakerState {
	switch s {
	case circuitbreaker.OpenState:
		return BreakerOpen
	case circuitbreaker.HalfOpenState:
		return BreakerHalfOpen
	default:
		return BreakerClosed
	}
}
