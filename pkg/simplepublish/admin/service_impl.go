package admin

import (
	"context"
	"sort"
	"time"

	"github.com/tendant/simple-publish/pkg/simplepublish"
)

// adminService implements the AdminService interface
type adminService struct {
	store simplepublish.ItemStore
}

// Ensure adminService implements AdminService
var _ AdminService = (*adminService)(nil)

const defaultLimit = 100

// ListAllItems returns a paginated list of queue items with optional filtering
func (s *adminService) ListAllItems(ctx context.Context, req ListItemsRequest) (*ListItemsResponse, error) {
	matched, err := s.collect(ctx, req.Filters)
	if err != nil {
		return nil, err
	}

	sortItems(matched, req.Filters)

	limit := defaultLimit
	if req.Filters.Limit != nil && *req.Filters.Limit > 0 {
		limit = *req.Filters.Limit
	}
	offset := 0
	if req.Filters.Offset != nil && *req.Filters.Offset > 0 {
		offset = *req.Filters.Offset
	}

	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	return &ListItemsResponse{
		Items:      matched[offset:end],
		TotalCount: int64(len(matched)),
		Limit:      limit,
		Offset:     offset,
		HasMore:    end < len(matched),
	}, nil
}

// CountItems returns the count of items matching the given filters
func (s *adminService) CountItems(ctx context.Context, req CountRequest) (*CountResponse, error) {
	matched, err := s.collect(ctx, req.Filters)
	if err != nil {
		return nil, err
	}
	return &CountResponse{Count: int64(len(matched))}, nil
}

// GetStatistics returns aggregated statistics about queue items
func (s *adminService) GetStatistics(ctx context.Context, req StatisticsRequest) (*StatisticsResponse, error) {
	matched, err := s.collect(ctx, req.Filters)
	if err != nil {
		return nil, err
	}

	computedAt := time.Now().UTC()
	stats := QueueStatistics{TotalCount: int64(len(matched))}
	if req.Options.IncludeStatusBreakdown {
		stats.ByStatus = map[string]int64{}
	}
	if req.Options.IncludeTargetBreakdown {
		stats.ByTarget = map[string]int64{}
	}
	if req.Options.IncludePriorityBreakdown {
		stats.ByPriority = map[string]int64{}
	}
	if req.Options.IncludeKindBreakdown {
		stats.ByKind = map[string]int64{}
	}

	for _, item := range matched {
		if item.Status == simplepublish.ItemStatusFailed && item.RetryCount >= item.MaxRetries {
			stats.Exhausted++
		}
		if stats.ByStatus != nil {
			stats.ByStatus[string(item.Status)]++
		}
		if stats.ByTarget != nil {
			for _, target := range item.Targets {
				stats.ByTarget[target]++
			}
		}
		if stats.ByPriority != nil {
			stats.ByPriority[string(item.Priority)]++
		}
		if stats.ByKind != nil {
			stats.ByKind[string(item.Payload.Kind)]++
		}

		if req.Options.IncludeTimeRange {
			created := item.CreatedAt
			if stats.OldestItem == nil || created.Before(*stats.OldestItem) {
				stats.OldestItem = &created
			}
			if stats.NewestItem == nil || created.After(*stats.NewestItem) {
				stats.NewestItem = &created
			}
			if scheduled := item.ScheduledFor; !scheduled.IsZero() && scheduled.After(computedAt) {
				if stats.NextScheduled == nil || scheduled.Before(*stats.NextScheduled) {
					stats.NextScheduled = &scheduled
				}
			}
		}
	}

	return &StatisticsResponse{
		Statistics: stats,
		ComputedAt: computedAt,
	}, nil
}

// collect lists candidates from the store and applies the filters the store
// cannot. Only the status filter is pushed down.
func (s *adminService) collect(ctx context.Context, filters ItemFilters) ([]*simplepublish.Item, error) {
	items, err := s.store.List(ctx, simplepublish.ItemFilter{
		Statuses: expandStatuses(filters),
	})
	if err != nil {
		return nil, err
	}

	var matched []*simplepublish.Item
	for _, item := range items {
		if matches(item, filters) {
			matched = append(matched, item)
		}
	}
	return matched, nil
}

func expandStatuses(f ItemFilters) []simplepublish.ItemStatus {
	statuses := append([]simplepublish.ItemStatus(nil), f.Statuses...)
	if f.Status != nil {
		statuses = append(statuses, *f.Status)
	}
	return statuses
}

func matches(item *simplepublish.Item, f ItemFilters) bool {
	if !matchesTargets(item, f) {
		return false
	}
	if f.Priority != nil && item.Priority != *f.Priority {
		return false
	}
	if f.Kind != nil && item.Payload.Kind != *f.Kind {
		return false
	}
	if f.CreatedAfter != nil && item.CreatedAt.Before(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && item.CreatedAt.After(*f.CreatedBefore) {
		return false
	}
	if f.UpdatedAfter != nil && item.UpdatedAt.Before(*f.UpdatedAfter) {
		return false
	}
	if f.UpdatedBefore != nil && item.UpdatedAt.After(*f.UpdatedBefore) {
		return false
	}
	if f.OnlyExhausted && (item.Status != simplepublish.ItemStatusFailed || item.RetryCount < item.MaxRetries) {
		return false
	}
	if f.OnlyWithErrors && item.LastError == "" {
		return false
	}
	return true
}

func matchesTargets(item *simplepublish.Item, f ItemFilters) bool {
	wanted := append([]string(nil), f.Targets...)
	if f.Target != nil {
		wanted = append(wanted, *f.Target)
	}
	if len(wanted) == 0 {
		return true
	}
	for _, want := range wanted {
		want = simplepublish.NormalizeTarget(want)
		for _, target := range item.Targets {
			if target == want {
				return true
			}
		}
	}
	return false
}

func sortItems(items []*simplepublish.Item, f ItemFilters) {
	sortBy := "created_at"
	if f.SortBy != nil {
		sortBy = *f.SortBy
	}
	desc := f.SortOrder != nil && *f.SortOrder == "desc"

	key := func(item *simplepublish.Item) time.Time {
		switch sortBy {
		case "updated_at":
			return item.UpdatedAt
		case "scheduled_for":
			return item.ScheduledFor
		default:
			return item.CreatedAt
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if desc {
			return key(items[i]).After(key(items[j]))
		}
		return key(items[i]).Before(key(items[j]))
	})
}
