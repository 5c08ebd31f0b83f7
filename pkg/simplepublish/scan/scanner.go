package scan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tendant/simple-publish/pkg/simplepublish"
)

const defaultStuckAfter = 10 * time.Minute

// Scanner runs maintenance passes over a publish queue. It talks to the
// store directly so it can repair items a crashed publishing pass left
// behind.
type Scanner struct {
	store  simplepublish.ItemStore
	clock  simplepublish.Clock
	logger *slog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithClock overrides the wall clock, mainly for tests.
func WithClock(clock simplepublish.Clock) Option {
	return func(s *Scanner) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger for sweep reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a new Scanner instance over the given store.
func New(store simplepublish.ItemStore, opts ...Option) *Scanner {
	s := &Scanner{
		store:  store,
		clock:  simplepublish.NewClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SweepOptions configures a maintenance sweep.
type SweepOptions struct {
	// StuckAfter is how long an item may sit in publishing (or parked in
	// failed with retry budget left) before the sweep treats the pass as
	// crashed and requeues it (default: 10 minutes)
	StuckAfter time.Duration

	// Retention is how long terminal items are kept after their last
	// update. Zero keeps them forever.
	Retention time.Duration

	// DryRun if true, doesn't change anything, just reports what a real
	// sweep would do
	DryRun bool
}

// SweepResult contains statistics about one sweep pass.
type SweepResult struct {
	// Scanned is the number of items examined
	Scanned int

	// Requeued is the number of items given back to the queue
	Requeued int

	// Purged is the number of terminal items deleted by retention
	Purged int

	// FailedIDs contains the IDs of items the sweep could not repair
	FailedIDs []string
}

// Sweep recovers items stranded by crashed publishing passes and applies
// the retention window to terminal items. Repair failures are recorded and
// the sweep continues with the next item.
func (s *Scanner) Sweep(ctx context.Context, opts SweepOptions) (*SweepResult, error) {
	if opts.StuckAfter <= 0 {
		opts.StuckAfter = defaultStuckAfter
	}

	result := &SweepResult{}
	now := s.clock.Now()

	// A pass that dies mid-publish leaves its item parked in publishing.
	// Anything sitting there longer than StuckAfter is abandoned.
	publishing, err := s.store.List(ctx, simplepublish.ItemFilter{
		Statuses: []simplepublish.ItemStatus{simplepublish.ItemStatusPublishing},
	})
	if err != nil {
		return result, fmt.Errorf("failed to list publishing items: %w", err)
	}
	result.Scanned += len(publishing)

	for _, item := range publishing {
		age := now.Sub(item.UpdatedAt)
		if age < opts.StuckAfter {
			continue
		}
		if opts.DryRun {
			s.logger.Info("would requeue stuck item", "item_id", item.ID, "age", age)
			result.Requeued++
			continue
		}
		reason := fmt.Sprintf("publish pass abandoned after %s in publishing", age.Truncate(time.Second))
		requeued, err := s.recoverStuck(ctx, item, reason)
		if err != nil {
			result.FailedIDs = append(result.FailedIDs, item.ID.String())
			s.logger.Error("failed to recover stuck item", "item_id", item.ID, "error", err)
			continue
		}
		if requeued {
			result.Requeued++
		}
	}

	// A crash between the failed transition and its requeue strands items
	// in failed with budget left; nothing else will ever pick them up.
	failed, err := s.store.List(ctx, simplepublish.ItemFilter{
		Statuses: []simplepublish.ItemStatus{simplepublish.ItemStatusFailed},
	})
	if err != nil {
		return result, fmt.Errorf("failed to list failed items: %w", err)
	}
	result.Scanned += len(failed)

	for _, item := range failed {
		age := now.Sub(item.UpdatedAt)
		if item.RetryCount < item.MaxRetries {
			if age < opts.StuckAfter {
				continue
			}
			if opts.DryRun {
				s.logger.Info("would requeue stranded item", "item_id", item.ID, "age", age)
				result.Requeued++
				continue
			}
			requeued, err := s.requeue(ctx, item)
			if err != nil {
				result.FailedIDs = append(result.FailedIDs, item.ID.String())
				s.logger.Error("failed to requeue stranded item", "item_id", item.ID, "error", err)
				continue
			}
			if requeued {
				result.Requeued++
			}
			continue
		}
		if opts.Retention > 0 && age >= opts.Retention {
			result.Purged += s.purge(ctx, item, opts.DryRun, result)
		}
	}

	if opts.Retention > 0 {
		published, err := s.store.List(ctx, simplepublish.ItemFilter{
			Statuses: []simplepublish.ItemStatus{simplepublish.ItemStatusPublished},
		})
		if err != nil {
			return result, fmt.Errorf("failed to list published items: %w", err)
		}
		result.Scanned += len(published)

		for _, item := range published {
			if now.Sub(item.UpdatedAt) < opts.Retention {
				continue
			}
			result.Purged += s.purge(ctx, item, opts.DryRun, result)
		}
	}

	return result, nil
}

// recoverStuck parks a stuck publishing item as failed with the abandonment
// reason, then requeues it if budget remains.
func (s *Scanner) recoverStuck(ctx context.Context, item *simplepublish.Item, reason string) (bool, error) {
	parked, err := s.store.Transition(ctx, item.ID, simplepublish.ItemStatusPublishing, simplepublish.ItemStatusFailed)
	if err != nil {
		return false, err
	}
	parked.LastError = reason
	return s.requeue(ctx, parked)
}

// requeue gives a failed item back to the queue when it has retry budget
// left; exhausted items keep their terminal state and the recorded reason.
func (s *Scanner) requeue(ctx context.Context, item *simplepublish.Item) (bool, error) {
	if item.RetryCount >= item.MaxRetries {
		return false, s.store.Update(ctx, item)
	}
	item.RetryCount++
	// Whatever schedule the item had has already passed; make it eligible
	// right away instead of re-applying backoff it did not earn.
	item.ScheduledFor = time.Time{}
	if err := s.store.Update(ctx, item); err != nil {
		return false, err
	}
	if _, err := s.store.Transition(ctx, item.ID, simplepublish.ItemStatusFailed, simplepublish.ItemStatusPending); err != nil {
		return false, err
	}
	return true, nil
}

// purge deletes one terminal item, returning 1 on success so callers can
// accumulate the count.
func (s *Scanner) purge(ctx context.Context, item *simplepublish.Item, dryRun bool, result *SweepResult) int {
	if dryRun {
		s.logger.Info("would purge item", "item_id", item.ID, "status", item.Status)
		return 1
	}
	if err := s.store.Delete(ctx, item.ID); err != nil {
		result.FailedIDs = append(result.FailedIDs, item.ID.String())
		s.logger.Error("failed to purge item", "item_id", item.ID, "error", err)
		return 0
	}
	return 1
}

// ScanOptions configures the scan operation.
type ScanOptions struct {
	// Filter specifies which items to process
	Filter simplepublish.ItemFilter

	// Processor defines the processing logic (required unless DryRun is true)
	Processor ItemProcessor

	// DryRun if true, doesn't process items, just reports what would be processed
	DryRun bool

	// OnProgress is called after each item is handled (optional)
	OnProgress func(processed, total int)
}

// ScanResult contains statistics about the scan operation.
type ScanResult struct {
	// TotalFound is the total number of items found matching the filter
	TotalFound int

	// TotalProcessed is the number of items successfully processed
	TotalProcessed int

	// TotalFailed is the number of items that failed processing
	TotalFailed int

	// FailedIDs contains the IDs of items that failed processing
	FailedIDs []string
}

// Scan queries items matching the filter and processes each one with the
// provided processor. If an item fails processing, the error is recorded
// but scanning continues with the next item.
func (s *Scanner) Scan(ctx context.Context, opts ScanOptions) (*ScanResult, error) {
	result := &ScanResult{}

	if !opts.DryRun && opts.Processor == nil {
		return result, fmt.Errorf("processor is required when DryRun is false")
	}

	items, err := s.store.List(ctx, opts.Filter)
	if err != nil {
		return result, fmt.Errorf("failed to list items: %w", err)
	}
	result.TotalFound = len(items)

	for _, item := range items {
		if opts.DryRun {
			s.logger.Info("would process item", "item_id", item.ID, "status", item.Status)
			result.TotalProcessed++
			continue
		}

		if err := opts.Processor.Process(ctx, item); err != nil {
			result.TotalFailed++
			result.FailedIDs = append(result.FailedIDs, item.ID.String())
			s.logger.Error("failed to process item", "item_id", item.ID, "error", err)
		} else {
			result.TotalProcessed++
		}

		if opts.OnProgress != nil {
			opts.OnProgress(result.TotalProcessed+result.TotalFailed, result.TotalFound)
		}
	}

	return result, nil
}

// ForEach is a convenience method that processes each item with a callback
// function. This is useful for simple inline processing without creating a
// separate processor type.
//
// Example:
//
//	scanner.ForEach(ctx, filter, func(ctx context.Context, item *simplepublish.Item) error {
//	    fmt.Printf("Processing %s\n", item.ID)
//	    return doSomething(item)
//	})
func (s *Scanner) ForEach(ctx context.Context, filter simplepublish.ItemFilter, fn func(context.Context, *simplepublish.Item) error) (*ScanResult, error) {
	processor := &funcProcessor{fn: fn}
	return s.Scan(ctx, ScanOptions{
		Filter:    filter,
		Processor: processor,
	})
}

// funcProcessor adapts a function to the ItemProcessor interface.
type funcProcessor struct {
	fn func(context.Context, *simplepublish.Item) error
}

func (p *funcProcessor) Process(ctx context.Context, item *simplepublish.Item) error {
	return p.fn(ctx, item)
}
