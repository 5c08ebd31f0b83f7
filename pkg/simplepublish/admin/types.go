package admin

import (
	"time"

	"github.com/tendant/simple-publish/pkg/simplepublish"
)

// QueueStatistics provides aggregated statistics about queue items
type QueueStatistics struct {
	TotalCount    int64            `json:"total_count"`
	Exhausted     int64            `json:"exhausted"`
	ByStatus      map[string]int64 `json:"by_status,omitempty"`
	ByTarget      map[string]int64 `json:"by_target,omitempty"`
	ByPriority    map[string]int64 `json:"by_priority,omitempty"`
	ByKind        map[string]int64 `json:"by_kind,omitempty"`
	OldestItem    *time.Time       `json:"oldest_item,omitempty"`
	NewestItem    *time.Time       `json:"newest_item,omitempty"`
	NextScheduled *time.Time       `json:"next_scheduled,omitempty"`
}

// ItemFilters defines flexible filtering options for admin operations
type ItemFilters struct {
	// Lifecycle filters
	Status   *simplepublish.ItemStatus  `json:"status,omitempty"`
	Statuses []simplepublish.ItemStatus `json:"statuses,omitempty"`

	// Destination filters; an item matches when it carries any of the targets
	Target  *string  `json:"target,omitempty"`
	Targets []string `json:"targets,omitempty"`

	// Payload filters
	Priority *simplepublish.Priority    `json:"priority,omitempty"`
	Kind     *simplepublish.ContentKind `json:"kind,omitempty"`

	// Time range filters
	CreatedAfter  *time.Time `json:"created_after,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`
	UpdatedAfter  *time.Time `json:"updated_after,omitempty"`
	UpdatedBefore *time.Time `json:"updated_before,omitempty"`

	// Retry filters
	OnlyExhausted  bool `json:"only_exhausted,omitempty"`
	OnlyWithErrors bool `json:"only_with_errors,omitempty"`

	// Pagination
	Limit  *int `json:"limit,omitempty"`
	Offset *int `json:"offset,omitempty"`

	// Sorting
	SortBy    *string `json:"sort_by,omitempty"`    // created_at, updated_at, scheduled_for
	SortOrder *string `json:"sort_order,omitempty"` // asc, desc
}

// StatisticsOptions defines what statistics to compute
type StatisticsOptions struct {
	IncludeStatusBreakdown   bool `json:"include_status_breakdown"`
	IncludeTargetBreakdown   bool `json:"include_target_breakdown"`
	IncludePriorityBreakdown bool `json:"include_priority_breakdown"`
	IncludeKindBreakdown     bool `json:"include_kind_breakdown"`
	IncludeTimeRange         bool `json:"include_time_range"`
}

// DefaultStatisticsOptions returns statistics options with all breakdowns enabled
func DefaultStatisticsOptions() StatisticsOptions {
	return StatisticsOptions{
		IncludeStatusBreakdown:   true,
		IncludeTargetBreakdown:   true,
		IncludePriorityBreakdown: true,
		IncludeKindBreakdown:     true,
		IncludeTimeRange:         true,
	}
}
