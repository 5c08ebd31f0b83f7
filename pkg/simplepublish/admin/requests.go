package admin

import (
	"time"

	"github.com/tendant/simple-publish/pkg/simplepublish"
)

// ListItemsRequest contains parameters for admin queue listing
type ListItemsRequest struct {
	Filters ItemFilters `json:"filters"`
}

// ListItemsResponse contains the paginated list of queue items
type ListItemsResponse struct {
	Items      []*simplepublish.Item `json:"items"`
	TotalCount int64                 `json:"total_count"`
	Limit      int                   `json:"limit"`
	Offset     int                   `json:"offset"`
	HasMore    bool                  `json:"has_more"`
}

// CountRequest contains parameters for counting queue items
type CountRequest struct {
	Filters ItemFilters `json:"filters"`
}

// CountResponse contains the count result
type CountResponse struct {
	Count int64 `json:"count"`
}

// StatisticsRequest contains parameters for retrieving queue statistics
type StatisticsRequest struct {
	Filters ItemFilters       `json:"filters"`
	Options StatisticsOptions `json:"options"`
}

// StatisticsResponse contains the statistics result
type StatisticsResponse struct {
	Statistics QueueStatistics `json:"statistics"`
	ComputedAt time.Time       `json:"computed_at"`
}

// ListItemsOption provides functional options for building item filters
type ListItemsOption func(*ItemFilters)

// WithStatus filters by lifecycle status
func WithStatus(status simplepublish.ItemStatus) ListItemsOption {
	return func(f *ItemFilters) {
		f.Status = &status
	}
}

// WithStatuses filters by multiple lifecycle statuses
func WithStatuses(statuses ...simplepublish.ItemStatus) ListItemsOption {
	return func(f *ItemFilters) {
		f.Statuses = statuses
	}
}

// WithTarget filters by destination target
func WithTarget(target string) ListItemsOption {
	return func(f *ItemFilters) {
		f.Target = &target
	}
}

// WithTargets filters by multiple destination targets
func WithTargets(targets ...string) ListItemsOption {
	return func(f *ItemFilters) {
		f.Targets = targets
	}
}

// WithPriority filters by queue priority
func WithPriority(priority simplepublish.Priority) ListItemsOption {
	return func(f *ItemFilters) {
		f.Priority = &priority
	}
}

// WithKind filters by content kind
func WithKind(kind simplepublish.ContentKind) ListItemsOption {
	return func(f *ItemFilters) {
		f.Kind = &kind
	}
}

// WithCreatedAfter filters by created after time
func WithCreatedAfter(t time.Time) ListItemsOption {
	return func(f *ItemFilters) {
		f.CreatedAfter = &t
	}
}

// WithCreatedBefore filters by created before time
func WithCreatedBefore(t time.Time) ListItemsOption {
	return func(f *ItemFilters) {
		f.CreatedBefore = &t
	}
}

// WithOnlyExhausted restricts results to items out of retry budget
func WithOnlyExhausted() ListItemsOption {
	return func(f *ItemFilters) {
		f.OnlyExhausted = true
	}
}

// WithOnlyWithErrors restricts results to items carrying a publish error
func WithOnlyWithErrors() ListItemsOption {
	return func(f *ItemFilters) {
		f.OnlyWithErrors = true
	}
}

// WithPagination sets both limit and offset
func WithPagination(limit, offset int) ListItemsOption {
	return func(f *ItemFilters) {
		f.Limit = &limit
		f.Offset = &offset
	}
}

// WithSort sets the sort field and order
func WithSort(sortBy, sortOrder string) ListItemsOption {
	return func(f *ItemFilters) {
		f.SortBy = &sortBy
		f.SortOrder = &sortOrder
	}
}

// NewFilters builds an ItemFilters from functional options
func NewFilters(opts ...ListItemsOption) ItemFilters {
	filters := ItemFilters{}
	for _, opt := range opts {
		opt(&filters)
	}
	return filters
}
