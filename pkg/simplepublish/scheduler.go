package simplepublish

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Default requeue backoff for items that failed a publish pass. The delay
// doubles per requeue, independent of the executor's per-call retry delays.
const (
	defaultRequeueBase = time.Minute
	defaultRequeueMax  = 30 * time.Minute
)

// scheduler owns queue semantics over the ItemStore: eligibility, ordering,
// promotion of tested items, and requeue backoff for failed ones.
type scheduler struct {
	store       ItemStore
	tester      *Tester
	clock       Clock
	slots       map[string][]TimeSlot
	requeueBase time.Duration
	requeueMax  time.Duration

	// notify reports status transitions to the facade for events/metrics.
	notify func(ctx context.Context, item *Item, from, to ItemStatus)
}

// enqueue stores a new item after validating its schedule.
func (q *scheduler) enqueue(ctx context.Context, item *Item) error {
	if err := q.store.Put(ctx, item); err != nil {
		return &ItemError{ItemID: item.ID, Op: "enqueue", Err: err}
	}
	return nil
}

// readyNow returns every ready item whose time has come, ordered by priority
// descending, then scheduled time, then creation time ascending. The sort is
// stable so equal items keep FIFO order.
func (q *scheduler) readyNow(ctx context.Context, now time.Time) ([]*Item, error) {
	items, err := q.store.List(ctx, ItemFilter{
		Statuses:    []ItemStatus{ItemStatusReady},
		ScheduledBy: &now,
	})
	if err != nil {
		return nil, err
	}
	sortQueue(items)
	return items, nil
}

// sortQueue orders items for publishing: priority desc, then ScheduledFor,
// then CreatedAt ascending. Items without a schedule sort as always due.
func sortQueue(items []*Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if pi, pj := items[i].Priority.Rank(), items[j].Priority.Rank(); pi != pj {
			return pi > pj
		}
		if !items[i].ScheduledFor.Equal(items[j].ScheduledFor) {
			return items[i].ScheduledFor.Before(items[j].ScheduledFor)
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}

// promote runs one scheduler pass: every due pending item is re-tested and,
// when compatible with all its targets, moved to ready.
func (q *scheduler) promote(ctx context.Context) (*TickResult, error) {
	now := q.clock.Now()
	pending, err := q.store.List(ctx, ItemFilter{Statuses: []ItemStatus{ItemStatusPending}})
	if err != nil {
		return nil, err
	}

	res := &TickResult{Checked: len(pending), Time: now}
	for _, item := range pending {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if item.ScheduledFor.After(now) {
			res.Held++
			continue
		}

		results, err := q.tester.TestAll(item.Payload, item.Targets)
		if err != nil {
			return res, &ItemError{ItemID: item.ID, Op: "promote", Err: err}
		}
		item.TestResults = results
		item.UpdatedAt = now
		if err := q.store.Update(ctx, item); err != nil {
			return res, &ItemError{ItemID: item.ID, Op: "promote", Err: err}
		}

		if !allCompatible(results) {
			res.Held++
			continue
		}

		promoted, err := q.store.Transition(ctx, item.ID, ItemStatusPending, ItemStatusReady)
		if err != nil {
			// Someone else moved the item mid-pass; not this pass's problem.
			res.Held++
			continue
		}
		res.Promoted++
		if q.notify != nil {
			q.notify(ctx, promoted, ItemStatusPending, ItemStatusReady)
		}
	}
	return res, nil
}

// requeue returns a failed item to pending with an increased retry count and
// a backoff before it becomes eligible again. When the retry budget is
// exhausted the item stays failed and the error reports it.
func (q *scheduler) requeue(ctx context.Context, item *Item, cause string) error {
	if _, err := canRequeue(item); err != nil {
		return err
	}

	now := q.clock.Now()
	item.RetryCount++
	item.ScheduledFor = now.Add(q.requeueDelay(item.RetryCount))
	item.LastError = cause
	item.UpdatedAt = now
	if err := q.store.Update(ctx, item); err != nil {
		return &ItemError{ItemID: item.ID, Op: "requeue", Err: err}
	}

	requeued, err := q.store.Transition(ctx, item.ID, ItemStatusFailed, ItemStatusPending)
	if err != nil {
		return &ItemError{ItemID: item.ID, Op: "requeue", Err: err}
	}
	if q.notify != nil {
		q.notify(ctx, requeued, ItemStatusFailed, ItemStatusPending)
	}
	return nil
}

// requeueDelay doubles per retry: base, 2*base, 4*base, ... capped.
func (q *scheduler) requeueDelay(retryCount int) time.Duration {
	d := q.requeueBase
	for i := 1; i < retryCount; i++ {
		d *= 2
		if d >= q.requeueMax {
			return q.requeueMax
		}
	}
	if d > q.requeueMax {
		d = q.requeueMax
	}
	return d
}

// optimalFor picks the next optimal publish time for the targets from the
// configured engagement slots.
func (q *scheduler) optimalFor(targets []string) time.Time {
	return OptimalTime(q.clock.Now(), targets, q.slots)
}

func allCompatible(results map[string]TestResult) bool {
	for _, r := range results {
		if !r.Compatible {
			return false
		}
	}
	return true
}

// OptimalTime picks the future occurrence with the highest engagement score
// among the targets' time slots, ties going to the nearest occurrence. With
// no slots for any target it falls back to an hour from now.
func OptimalTime(now time.Time, targets []string, slots map[string][]TimeSlot) time.Time {
	var best time.Time
	bestEngagement := -1.0
	for _, target := range targets {
		for _, slot := range slots[NormalizeTarget(target)] {
			t := nextOccurrence(now, slot)
			switch {
			case slot.Engagement > bestEngagement:
				best, bestEngagement = t, slot.Engagement
			case slot.Engagement == bestEngagement && t.Before(best):
				best = t
			}
		}
	}
	if best.IsZero() {
		return now.Add(time.Hour)
	}
	return best
}

// nextOccurrence returns the next time strictly after now that falls on the
// slot's weekday at the top of its hour, in UTC.
func nextOccurrence(now time.Time, slot TimeSlot) time.Time {
	t := now.UTC()
	candidate := time.Date(t.Year(), t.Month(), t.Day(), slot.Hour, 0, 0, 0, time.UTC)
	days := (int(slot.Weekday) - int(t.Weekday()) + 7) % 7
	candidate = candidate.AddDate(0, 0, days)
	if !candidate.After(t) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}

// validateSubmit checks the parts of a submit request the scheduler owns.
func validateSubmit(req SubmitRequest) error {
	if len(req.Targets) == 0 {
		return fmt.Errorf("%w: at least one target is required", ErrInvalidItem)
	}
	if req.Priority != "" && !req.Priority.IsValid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidItem, req.Priority)
	}
	if req.Payload.Kind == "" {
		return fmt.Errorf("%w: payload kind is required", ErrInvalidItem)
	}
	if !req.Payload.Kind.IsValid() {
		return fmt.Errorf("%w: unknown content kind %q", ErrInvalidItem, req.Payload.Kind)
	}
	if req.MaxRetries != nil && *req.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries cannot be negative", ErrInvalidItem)
	}
	return nil
}
