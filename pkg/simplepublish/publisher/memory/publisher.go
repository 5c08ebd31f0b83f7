package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tendant/simple-publish/pkg/simplepublish"
)

// Publisher implements simplepublish.Publisher entirely in memory. It is
// used in examples and tests, and doubles as a dry-run target: published
// payloads are kept and can be inspected afterwards.
type Publisher struct {
	target  string
	baseURL string
	latency time.Duration

	mu       sync.Mutex
	seq      int
	outcomes map[string]*simplepublish.PublishOutcome // idempotency key -> outcome
	requests []simplepublish.PublishRequest
	failures []error
}

// Option configures the publisher
type Option func(*Publisher)

// WithLatency makes every publish take at least d, honoring cancellation
func WithLatency(d time.Duration) Option {
	return func(p *Publisher) {
		p.latency = d
	}
}

// WithBaseURL sets the base for generated remote URLs
func WithBaseURL(base string) Option {
	return func(p *Publisher) {
		p.baseURL = base
	}
}

// New creates an in-memory publisher for the given target name
func New(target string, opts ...Option) *Publisher {
	p := &Publisher{
		target:   simplepublish.NormalizeTarget(target),
		baseURL:  "https://example.invalid",
		outcomes: make(map[string]*simplepublish.PublishOutcome),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Target returns the target name this publisher serves
func (p *Publisher) Target() string {
	return p.target
}

// FailNext queues err for the next n Publish calls. Replay of an already
// published idempotency key still succeeds.
func (p *Publisher) FailNext(err error, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < n; i++ {
		p.failures = append(p.failures, err)
	}
}

// Publish records the payload and returns a generated remote reference.
// Repeated calls with the same idempotency key return the first outcome.
func (p *Publisher) Publish(ctx context.Context, req simplepublish.PublishRequest) (*simplepublish.PublishOutcome, error) {
	if p.latency > 0 {
		timer := time.NewTimer(p.latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)

	if prev, ok := p.outcomes[req.IdempotencyKey]; ok {
		out := *prev
		return &out, nil
	}

	if len(p.failures) > 0 {
		err := p.failures[0]
		p.failures = p.failures[1:]
		return nil, err
	}

	p.seq++
	outcome := &simplepublish.PublishOutcome{
		Target:    p.target,
		Success:   true,
		RemoteID:  fmt.Sprintf("%s-%d", p.target, p.seq),
		RemoteURL: fmt.Sprintf("%s/%s/%d", p.baseURL, p.target, p.seq),
	}
	p.outcomes[req.IdempotencyKey] = outcome

	out := *outcome
	return &out, nil
}

// Requests returns every publish call seen so far, in order
func (p *Publisher) Requests() []simplepublish.PublishRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]simplepublish.PublishRequest(nil), p.requests...)
}

// Published returns the number of distinct idempotency keys delivered
func (p *Publisher) Published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.outcomes)
}
