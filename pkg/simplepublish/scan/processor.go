package scan

import (
	"context"

	"github.com/tendant/simple-publish/pkg/simplepublish"
)

// ItemProcessor processes individual queue items.
// External apps implement this to define custom processing logic.
//
// Example implementations:
//   - Event emitter (replays item events to a message queue)
//   - Re-tester (refreshes stale compatibility results in bulk)
//   - Reporter (generates queue reports/exports)
type ItemProcessor interface {
	// Process is called for each item found during scan.
	// Return error to mark this item as failed (scan continues with next item).
	Process(ctx context.Context, item *simplepublish.Item) error
}
