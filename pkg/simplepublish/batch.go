package simplepublish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// BatchOptions control how a publishing pass drains the ready queue.
type BatchOptions struct {
	// Concurrency is the number of items published in parallel per wave.
	Concurrency int
	// InterWaveDelay pauses between waves to ease load on downstream APIs.
	// No delay runs after the final wave.
	InterWaveDelay time.Duration
}

// DefaultBatchOptions returns the options used when none are given.
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{Concurrency: 3}
}

// batchOrchestrator publishes ready items in bounded waves. Each item is
// claimed with a compare-and-set before publishing so concurrent passes over
// the same queue never double-publish.
type batchOrchestrator struct {
	store      ItemStore
	exec       *Executor
	publishers map[string]Publisher
	sched      *scheduler
	hooks      *Hooks
	clock      Clock
	logger     *slog.Logger
	events     EventSink
	metrics    MetricsRecorder

	// notify reports status transitions to the facade for events/metrics.
	notify func(ctx context.Context, item *Item, from, to ItemStatus)
}

// itemReport is one goroutine's account of publishing one item.
type itemReport struct {
	processed  bool
	skipped    bool
	requeued   bool
	outcome    ItemOutcome
	scoreSum   float64
	scoreCount int
	err        error
}

// run publishes items in waves of opts.Concurrency, highest priority first.
// Cancellation is honored between waves; a cancelled run returns the partial
// result along with the context error.
func (b *batchOrchestrator) run(ctx context.Context, items []*Item, opts BatchOptions) (*BatchResult, error) {
	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultBatchOptions().Concurrency
	}

	start := b.clock.Now()
	res := &BatchResult{Total: len(items)}
	sortQueue(items)

	reports := make([]itemReport, len(items))
	var runErr error

	for waveStart := 0; waveStart < len(items); waveStart += opts.Concurrency {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if waveStart > 0 && opts.InterWaveDelay > 0 {
			if err := b.clock.Sleep(ctx, opts.InterWaveDelay); err != nil {
				runErr = err
				break
			}
		}

		waveEnd := waveStart + opts.Concurrency
		if waveEnd > len(items) {
			waveEnd = len(items)
		}
		res.Waves++

		var wg sync.WaitGroup
		for i := waveStart; i < waveEnd; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				reports[i] = b.publishItem(ctx, items[i])
			}(i)
		}
		wg.Wait()
	}

	var scoreSum float64
	var scoreCount int
	for _, r := range reports {
		if !r.processed {
			continue
		}
		if r.skipped {
			res.Skipped++
			continue
		}
		res.Items = append(res.Items, r.outcome)
		scoreSum += r.scoreSum
		scoreCount += r.scoreCount
		if r.err != nil {
			res.Errors = append(res.Errors, r.err.Error())
		}
		if r.outcome.Status == ItemStatusPublished {
			res.Succeeded++
		} else {
			res.Failed++
			if r.requeued {
				res.Requeued++
			}
		}
	}
	if scoreCount > 0 {
		res.MeanScore = scoreSum / float64(scoreCount)
	}
	res.Elapsed = b.clock.Now().Sub(start)
	return res, runErr
}

// publishItem claims one ready item and delivers it to every target. The
// item lands in published only when all targets succeed; otherwise it goes
// to failed and, while retry budget remains, back to pending.
func (b *batchOrchestrator) publishItem(ctx context.Context, queued *Item) itemReport {
	report := itemReport{processed: true}

	item, err := b.store.Transition(ctx, queued.ID, ItemStatusReady, ItemStatusPublishing)
	if err != nil {
		// Another pass claimed it first, or the item moved on.
		report.skipped = true
		return report
	}
	b.notify(ctx, item, ItemStatusReady, ItemStatusPublishing)

	for _, r := range item.TestResults {
		report.scoreSum += float64(r.Score)
		report.scoreCount++
	}

	if item.PublishResults == nil {
		item.PublishResults = make(map[string]PublishOutcome, len(item.Targets))
	}

	allOK := true
	var firstErr string
	for _, target := range item.Targets {
		if prev, ok := item.PublishResults[target]; ok && prev.Success {
			continue // delivered on an earlier pass, do not repeat
		}
		outcome := b.publishTarget(ctx, item, target)
		item.PublishResults[target] = outcome
		if !outcome.Success {
			allOK = false
			if firstErr == "" {
				firstErr = outcome.Error
			}
		}
	}

	item.LastError = firstErr
	item.UpdatedAt = b.clock.Now()
	if err := b.store.Update(ctx, item); err != nil {
		report.err = &ItemError{ItemID: item.ID, Op: "publish", Err: err}
	}

	to := ItemStatusFailed
	if allOK {
		to = ItemStatusPublished
	}
	final, err := b.store.Transition(ctx, item.ID, ItemStatusPublishing, to)
	if err != nil {
		report.err = &ItemError{ItemID: item.ID, Op: "publish", Err: err}
		report.outcome = ItemOutcome{ItemID: item.ID, Status: item.Status, Outcomes: item.PublishResults}
		return report
	}
	b.notify(ctx, final, ItemStatusPublishing, to)
	report.outcome = ItemOutcome{ItemID: final.ID, Status: final.Status, Outcomes: final.PublishResults}

	if allOK {
		if err := b.events.ItemPublished(ctx, final); err != nil {
			b.logger.Error("event sink error", "event", "item_published", "error", err)
		}
		return report
	}

	// Hand the failure back to the scheduler while retry budget remains.
	requeueErr := b.sched.requeue(ctx, final, firstErr)
	switch {
	case requeueErr == nil:
		report.requeued = true
		report.outcome.Status = ItemStatusPending
	case errors.Is(requeueErr, ErrRetryExhausted):
		b.logger.Warn("item failed permanently",
			"item_id", final.ID, "retries", final.RetryCount, "error", firstErr)
		if err := b.events.ItemFailed(ctx, final, firstErr); err != nil {
			b.logger.Error("event sink error", "event", "item_failed", "error", err)
		}
	default:
		report.err = requeueErr
	}
	return report
}

// publishTarget runs one delivery through the hooks and the executor.
func (b *batchOrchestrator) publishTarget(ctx context.Context, item *Item, target string) PublishOutcome {
	payload := item.Payload.Clone()
	if err := b.hooks.beforePublish(ctx, item, target, &payload); err != nil {
		b.logger.Info("publish vetoed by hook", "item_id", item.ID, "target", target, "error", err)
		outcome := PublishOutcome{
			Target:    target,
			ErrorKind: ErrorKindValidation,
			Error:     err.Error(),
		}
		if err := b.hooks.afterPublish(ctx, item, outcome); err != nil {
			b.logger.Error("after publish hook error", "item_id", item.ID, "error", err)
		}
		return outcome
	}

	pub, ok := b.publishers[target]
	if !ok {
		return PublishOutcome{
			Target:    target,
			ErrorKind: ErrorKindValidation,
			Error:     fmt.Sprintf("no publisher registered for target %s", target),
		}
	}

	req := PublishRequest{
		ItemID:         item.ID,
		Target:         target,
		IdempotencyKey: item.ID.String() + ":" + target,
		Payload:        payload,
	}
	res := b.exec.Execute(ctx, target, func(ctx context.Context) (any, error) {
		return pub.Publish(ctx, req)
	})

	outcome := outcomeFromResult(target, res, b.clock.Now())
	b.metrics.RecordPublish(target, outcome.Success, outcome.ErrorKind, outcome.Attempts, outcome.Elapsed)
	if err := b.hooks.afterPublish(ctx, item, outcome); err != nil {
		b.logger.Error("after publish hook error", "item_id", item.ID, "error", err)
	}
	if !outcome.Success {
		b.logger.Warn("publish failed",
			"item_id", item.ID, "target", target, "kind", outcome.ErrorKind,
			"attempts", outcome.Attempts, "error", outcome.Error)
	}
	return outcome
}

// outcomeFromResult maps an executor result onto the per-target outcome
// stored with the item.
func outcomeFromResult(target string, res Result, at time.Time) PublishOutcome {
	out := PublishOutcome{
		Target:   target,
		Success:  res.Success,
		Attempts: res.Attempts,
		Elapsed:  res.Elapsed,
	}
	if res.Success {
		out.PublishedAt = at
		if remote, ok := res.Data.(*PublishOutcome); ok && remote != nil {
			out.RemoteID = remote.RemoteID
			out.RemoteURL = remote.RemoteURL
		}
		return out
	}
	out.ErrorKind = res.Kind
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}
