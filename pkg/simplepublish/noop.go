package simplepublish

import (
	"context"
	"log/slog"
	"time"
)

// NoopEventSink is a no-operation implementation of EventSink
// Useful for production when you don't need event handling or for testing
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

// ItemSubmitted does nothing and returns nil
func (n *NoopEventSink) ItemSubmitted(ctx context.Context, item *Item) error {
	return nil
}

// ItemStateChanged does nothing and returns nil
func (n *NoopEventSink) ItemStateChanged(ctx context.Context, item *Item, from, to ItemStatus) error {
	return nil
}

// ItemPublished does nothing and returns nil
func (n *NoopEventSink) ItemPublished(ctx context.Context, item *Item) error {
	return nil
}

// ItemFailed does nothing and returns nil
func (n *NoopEventSink) ItemFailed(ctx context.Context, item *Item, reason string) error {
	return nil
}

// BatchCompleted does nothing and returns nil
func (n *NoopEventSink) BatchCompleted(ctx context.Context, result *BatchResult) error {
	return nil
}

// BreakerStateChanged does nothing and returns nil
func (n *NoopEventSink) BreakerStateChanged(ctx context.Context, target string, from, to BreakerState) error {
	return nil
}

// LoggingEventSink is an event sink that logs events but takes no other action
// Useful for development and debugging
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates a new logging event sink
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

// ItemSubmitted logs the submission
func (l *LoggingEventSink) ItemSubmitted(ctx context.Context, item *Item) error {
	l.logger.Info("item submitted",
		"item_id", item.ID, "kind", item.Payload.Kind, "targets", item.Targets, "priority", item.Priority)
	return nil
}

// ItemStateChanged logs the status transition
func (l *LoggingEventSink) ItemStateChanged(ctx context.Context, item *Item, from, to ItemStatus) error {
	l.logger.Info("item state changed", "item_id", item.ID, "from", from, "to", to)
	return nil
}

// ItemPublished logs the completed publication
func (l *LoggingEventSink) ItemPublished(ctx context.Context, item *Item) error {
	l.logger.Info("item published", "item_id", item.ID, "targets", item.Targets)
	return nil
}

// ItemFailed logs the terminal failure
func (l *LoggingEventSink) ItemFailed(ctx context.Context, item *Item, reason string) error {
	l.logger.Error("item failed", "item_id", item.ID, "retries", item.RetryCount, "reason", reason)
	return nil
}

// BatchCompleted logs the batch summary
func (l *LoggingEventSink) BatchCompleted(ctx context.Context, result *BatchResult) error {
	l.logger.Info("batch completed",
		"total", result.Total, "succeeded", result.Succeeded, "failed", result.Failed,
		"requeued", result.Requeued, "skipped", result.Skipped, "waves", result.Waves)
	return nil
}

// BreakerStateChanged logs the circuit breaker transition
func (l *LoggingEventSink) BreakerStateChanged(ctx context.Context, target string, from, to BreakerState) error {
	l.logger.Warn("breaker state changed", "target", target, "from", from, "to", to)
	return nil
}

// noopMetrics discards all measurements so the core can record
// unconditionally when no recorder is configured.
type noopMetrics struct{}

func (noopMetrics) RecordPublish(target string, success bool, kind ErrorKind, attempts int, elapsed time.Duration) {
}

func (noopMetrics) RecordTest(target string, score int, compatible bool) {}

func (noopMetrics) RecordBatch(result *BatchResult) {}

func (noopMetrics) RecordBreakerState(target string, state BreakerState) {}

func (noopMetrics) RecordQueueDepth(counts map[ItemStatus]int) {}
