package admin

import (
	"context"

	"github.com/tendant/simple-publish/pkg/simplepublish"
)

// AdminService defines the interface for administrative queue operations.
// It talks to the store directly, so it works with nothing but database
// access and sees every item regardless of lifecycle state.
//
// IMPORTANT: Endpoints using this service should be protected with
// appropriate authentication and authorization middleware to ensure only
// authorized operators can access these operations.
type AdminService interface {
	// ListAllItems returns a paginated list of queue items with optional
	// filtering. Unlike Service.ListItems this supports time ranges, retry
	// budget filters, and pagination.
	ListAllItems(ctx context.Context, req ListItemsRequest) (*ListItemsResponse, error)

	// CountItems returns the count of items matching the given filters.
	// This is useful for pagination and monitoring purposes.
	CountItems(ctx context.Context, req CountRequest) (*CountResponse, error)

	// GetStatistics returns aggregated statistics about queue items.
	// This provides breakdown by status, target, priority, and kind.
	GetStatistics(ctx context.Context, req StatisticsRequest) (*StatisticsResponse, error)
}

// New creates a new AdminService instance that uses the provided store.
func New(store simplepublish.ItemStore) AdminService {
	return &adminService{
		store: store,
	}
}
