package simplepublish

import "fmt"

// validTransitions enumerates the item lifecycle edges:
//
//	pending -> ready -> publishing -> published | failed
//	failed  -> pending (while the retry budget lasts; see canRequeue)
//	ready   -> pending (content changed, re-test required)
//
// published is terminal, and failed becomes terminal once retries run out.
var validTransitions = map[ItemStatus]map[ItemStatus]bool{
	ItemStatusPending:    {ItemStatusReady: true},
	ItemStatusReady:      {ItemStatusPublishing: true, ItemStatusPending: true},
	ItemStatusPublishing: {ItemStatusPublished: true, ItemStatusFailed: true},
	ItemStatusFailed:     {ItemStatusPending: true},
	ItemStatusPublished:  {},
}

// ValidTransition reports whether a status change is a legal lifecycle edge.
// Stores use it to reject transitions the state machine does not allow.
func ValidTransition(from, to ItemStatus) bool {
	ok, _ := canTransition(from, to)
	return ok
}

// canTransition checks a single lifecycle edge.
// Returns true if the transition is allowed, false with an error otherwise.
func canTransition(from, to ItemStatus) (bool, error) {
	if !from.IsValid() {
		return false, fmt.Errorf("%w: unknown status %s", ErrInvalidTransition, from)
	}
	if !to.IsValid() {
		return false, fmt.Errorf("%w: unknown status %s", ErrInvalidTransition, to)
	}
	if !validTransitions[from][to] {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return true, nil
}

// canRequeue checks whether a failed item may return to pending.
// Returns true if the retry budget allows it, false with an error otherwise.
func canRequeue(item *Item) (bool, error) {
	if item.Status != ItemStatusFailed {
		return false, fmt.Errorf("%w: only failed items can be re-queued (status: %s)", ErrInvalidTransition, item.Status)
	}
	if item.RetryCount >= item.MaxRetries {
		return false, fmt.Errorf("%w: item exhausted %d retries", ErrRetryExhausted, item.MaxRetries)
	}
	return true, nil
}

// canPublishNow checks if an item can enter an immediate publish pass based
// on its status. Failed items additionally need retry budget (canRequeue).
func canPublishNow(status ItemStatus) (bool, error) {
	switch status {
	case ItemStatusPending, ItemStatusReady, ItemStatusFailed:
		return true, nil
	case ItemStatusPublishing:
		return false, fmt.Errorf("%w: another publish is in flight (status: %s)", ErrItemBeingPublished, status)
	case ItemStatusPublished:
		return false, fmt.Errorf("%w: item is already published (status: %s)", ErrInvalidTransition, status)
	default:
		return false, fmt.Errorf("%w: unknown status %s", ErrInvalidTransition, status)
	}
}

// canUpdateContent checks if an item's payload may be replaced based on its
// status. Returns true if the update is allowed, false with an error otherwise.
func canUpdateContent(status ItemStatus) (bool, error) {
	switch status {
	case ItemStatusPending, ItemStatusReady, ItemStatusFailed:
		return true, nil
	case ItemStatusPublishing:
		return false, fmt.Errorf("%w: cannot change content mid-publish (status: %s)", ErrItemBeingPublished, status)
	case ItemStatusPublished:
		return false, fmt.Errorf("%w: item is already published (status: %s)", ErrInvalidTransition, status)
	default:
		return false, fmt.Errorf("%w: unknown status %s", ErrInvalidTransition, status)
	}
}

// canRemove checks if an item may be removed from the queue based on its
// status. Returns true if removal is allowed, false with an error otherwise.
func canRemove(status ItemStatus) (bool, error) {
	switch status {
	case ItemStatusPending, ItemStatusReady, ItemStatusPublished, ItemStatusFailed:
		return true, nil
	case ItemStatusPublishing:
		return false, fmt.Errorf("%w: cannot remove an item mid-publish (status: %s)", ErrItemBeingPublished, status)
	default:
		return false, fmt.Errorf("%w: unknown status %s", ErrInvalidTransition, status)
	}
}
