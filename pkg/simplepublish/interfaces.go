package simplepublish

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Publisher defines the interface for publishing backends. Implementations
// are thin transport adapters; retries and circuit breaking happen in the
// executor that wraps every call.
type Publisher interface {
	// Target returns the target name this publisher serves
	Target() string

	// Publish delivers the payload to the target. Errors are classified by
	// the executor; return *HTTPError for remote status failures. The
	// request's IdempotencyKey is stable across retries of the same item.
	Publish(ctx context.Context, req PublishRequest) (*PublishOutcome, error)
}

// PublishRequest contains everything a publisher needs for one delivery.
type PublishRequest struct {
	ItemID         uuid.UUID `json:"item_id"`
	Target         string    `json:"target"`
	IdempotencyKey string    `json:"idempotency_key"`
	Payload        Payload   `json:"payload"`
}

// ItemStore defines the interface for item queue persistence. It is the
// injection point for a durable queue; implementations must serialize
// mutations and hand out copies, never internal pointers.
type ItemStore interface {
	// Put inserts a new item
	Put(ctx context.Context, item *Item) error

	// Get returns the item by ID
	Get(ctx context.Context, id uuid.UUID) (*Item, error)

	// Update replaces the stored item
	Update(ctx context.Context, item *Item) error

	// Delete removes the item
	Delete(ctx context.Context, id uuid.UUID) error

	// List returns items matching the filter, unordered
	List(ctx context.Context, filter ItemFilter) ([]*Item, error)

	// Transition performs a compare-and-set status change. It returns the
	// updated item, or ErrTransitionConflict when the item is no longer in
	// the from status. Exactly one concurrent caller wins.
	Transition(ctx context.Context, id uuid.UUID, from, to ItemStatus) (*Item, error)

	// CountByStatus returns item counts grouped by status
	CountByStatus(ctx context.Context) (map[ItemStatus]int, error)
}

// EventSink defines the interface for lifecycle event handling. Sink errors
// are logged and never propagated to callers.
type EventSink interface {
	// ItemSubmitted is fired when an item enters the queue
	ItemSubmitted(ctx context.Context, item *Item) error

	// ItemStateChanged is fired on every status transition
	ItemStateChanged(ctx context.Context, item *Item, from, to ItemStatus) error

	// ItemPublished is fired when an item reaches published
	ItemPublished(ctx context.Context, item *Item) error

	// ItemFailed is fired when an item parks as terminal failed
	ItemFailed(ctx context.Context, item *Item, reason string) error

	// BatchCompleted is fired after each batch publishing pass
	BatchCompleted(ctx context.Context, result *BatchResult) error

	// BreakerStateChanged is fired on circuit breaker transitions
	BreakerStateChanged(ctx context.Context, target string, from, to BreakerState) error
}

// MetricsRecorder receives operational measurements. The default is a no-op;
// the metrics subpackage provides a Prometheus implementation.
type MetricsRecorder interface {
	RecordPublish(target string, success bool, kind ErrorKind, attempts int, elapsed time.Duration)
	RecordTest(target string, score int, compatible bool)
	RecordBatch(result *BatchResult)
	RecordBreakerState(target string, state BreakerState)
	RecordQueueDepth(counts map[ItemStatus]int)
}

// RulesProvider resolves per-target publishing rules. The facade uses a
// static map by default; implement this to source rules dynamically.
type RulesProvider interface {
	// Rules returns the rules for a target, or ErrUnknownTarget
	Rules(target string) (TargetRules, error)

	// Targets returns all known target names
	Targets() []string
}

// StaticRules is a RulesProvider over a fixed map.
type StaticRules map[string]TargetRules

// Rules implements RulesProvider.
func (m StaticRules) Rules(target string) (TargetRules, error) {
	r, ok := m[target]
	if !ok {
		return TargetRules{}, ErrUnknownTarget
	}
	return r, nil
}

// Targets implements RulesProvider.
func (m StaticRules) Targets() []string {
	out := make([]string, 0, len(m))
	for t := range m {
		out = append(out, t)
	}
	return out
}
