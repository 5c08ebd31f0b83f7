package simplepublish

import "time"

// SubmitRequest contains parameters for submitting an item to the queue.
type SubmitRequest struct {
	// Payload is the content to publish (required)
	Payload Payload

	// Targets are the target names to publish to (required, must all be known)
	Targets []string

	// Priority defaults to PriorityNormal
	Priority Priority

	// ScheduledFor is the earliest publish time. Zero means eligible
	// immediately; past times are accepted as already eligible.
	ScheduledFor time.Time

	// AtOptimalTime computes ScheduledFor from the targets' engagement
	// slots. Ignored when ScheduledFor is set.
	AtOptimalTime bool

	// MaxRetries overrides the service default retry budget for this item.
	MaxRetries *int
}
