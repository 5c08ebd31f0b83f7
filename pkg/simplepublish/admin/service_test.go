package admin_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-publish/pkg/simplepublish"
	"github.com/tendant/simple-publish/pkg/simplepublish/admin"
	memorystore "github.com/tendant/simple-publish/pkg/simplepublish/store/memory"
)

type seededQueue struct {
	svc       admin.AdminService
	pending   *simplepublish.Item
	ready     *simplepublish.Item
	exhausted *simplepublish.Item
	published *simplepublish.Item
	scheduled *simplepublish.Item
}

func seedQueue(t *testing.T) seededQueue {
	t.Helper()

	ctx := context.Background()
	st := memorystore.New()
	base := time.Now().UTC().Add(-3 * time.Hour)

	put := func(item *simplepublish.Item) *simplepublish.Item {
		item.ID = uuid.New()
		item.UpdatedAt = item.CreatedAt
		require.NoError(t, st.Put(ctx, item))
		return item
	}

	return seededQueue{
		svc: admin.New(st),
		pending: put(&simplepublish.Item{
			Payload:    simplepublish.Payload{Kind: simplepublish.KindPost, Body: "draft"},
			Targets:    []string{"blog"},
			Priority:   simplepublish.PriorityHigh,
			Status:     simplepublish.ItemStatusPending,
			MaxRetries: 3,
			CreatedAt:  base,
		}),
		ready: put(&simplepublish.Item{
			Payload:    simplepublish.Payload{Kind: simplepublish.KindArticle, Title: "Guide", Body: "text"},
			Targets:    []string{"docs"},
			Priority:   simplepublish.PriorityNormal,
			Status:     simplepublish.ItemStatusReady,
			MaxRetries: 3,
			CreatedAt:  base.Add(time.Hour),
		}),
		exhausted: put(&simplepublish.Item{
			Payload:    simplepublish.Payload{Kind: simplepublish.KindPost, Body: "doomed"},
			Targets:    []string{"blog"},
			Priority:   simplepublish.PriorityNormal,
			Status:     simplepublish.ItemStatusFailed,
			RetryCount: 2,
			MaxRetries: 2,
			LastError:  "remote returned 500",
			CreatedAt:  base.Add(2 * time.Hour),
		}),
		published: put(&simplepublish.Item{
			Payload:    simplepublish.Payload{Kind: simplepublish.KindImage, Images: []simplepublish.Image{{URL: "https://img.test/1.png", Alt: "one"}}},
			Targets:    []string{"blog", "docs"},
			Priority:   simplepublish.PriorityUrgent,
			Status:     simplepublish.ItemStatusPublished,
			MaxRetries: 3,
			CreatedAt:  base.Add(150 * time.Minute),
		}),
		scheduled: put(&simplepublish.Item{
			Payload:      simplepublish.Payload{Kind: simplepublish.KindPost, Body: "later"},
			Targets:      []string{"docs"},
			Priority:     simplepublish.PriorityLow,
			Status:       simplepublish.ItemStatusPending,
			MaxRetries:   3,
			ScheduledFor: time.Now().UTC().Add(time.Hour),
			CreatedAt:    base.Add(170 * time.Minute),
		}),
	}
}

func TestAdminService_ListAllItems(t *testing.T) {
	ctx := context.Background()
	q := seedQueue(t)

	t.Run("no filters returns everything oldest first", func(t *testing.T) {
		resp, err := q.svc.ListAllItems(ctx, admin.ListItemsRequest{})
		require.NoError(t, err)
		require.Len(t, resp.Items, 5)
		assert.Equal(t, int64(5), resp.TotalCount)
		assert.Equal(t, q.pending.ID, resp.Items[0].ID)
		assert.Equal(t, q.scheduled.ID, resp.Items[4].ID)
		assert.False(t, resp.HasMore)
	})

	t.Run("pagination", func(t *testing.T) {
		resp, err := q.svc.ListAllItems(ctx, admin.ListItemsRequest{
			Filters: admin.NewFilters(admin.WithPagination(2, 0)),
		})
		require.NoError(t, err)
		assert.Len(t, resp.Items, 2)
		assert.Equal(t, int64(5), resp.TotalCount)
		assert.True(t, resp.HasMore)

		resp, err = q.svc.ListAllItems(ctx, admin.ListItemsRequest{
			Filters: admin.NewFilters(admin.WithPagination(2, 4)),
		})
		require.NoError(t, err)
		assert.Len(t, resp.Items, 1)
		assert.False(t, resp.HasMore)
	})

	t.Run("sort descending", func(t *testing.T) {
		resp, err := q.svc.ListAllItems(ctx, admin.ListItemsRequest{
			Filters: admin.NewFilters(admin.WithSort("created_at", "desc")),
		})
		require.NoError(t, err)
		require.NotEmpty(t, resp.Items)
		assert.Equal(t, q.scheduled.ID, resp.Items[0].ID)
	})

	t.Run("status filter", func(t *testing.T) {
		resp, err := q.svc.ListAllItems(ctx, admin.ListItemsRequest{
			Filters: admin.NewFilters(admin.WithStatus(simplepublish.ItemStatusFailed)),
		})
		require.NoError(t, err)
		require.Len(t, resp.Items, 1)
		assert.Equal(t, q.exhausted.ID, resp.Items[0].ID)
	})

	t.Run("target filter matches membership", func(t *testing.T) {
		resp, err := q.svc.ListAllItems(ctx, admin.ListItemsRequest{
			Filters: admin.NewFilters(admin.WithTarget(" Blog ")),
		})
		require.NoError(t, err)
		assert.Len(t, resp.Items, 3)
	})

	t.Run("priority filter", func(t *testing.T) {
		resp, err := q.svc.ListAllItems(ctx, admin.ListItemsRequest{
			Filters: admin.NewFilters(admin.WithPriority(simplepublish.PriorityUrgent)),
		})
		require.NoError(t, err)
		require.Len(t, resp.Items, 1)
		assert.Equal(t, q.published.ID, resp.Items[0].ID)
	})

	t.Run("kind filter", func(t *testing.T) {
		resp, err := q.svc.ListAllItems(ctx, admin.ListItemsRequest{
			Filters: admin.NewFilters(admin.WithKind(simplepublish.KindArticle)),
		})
		require.NoError(t, err)
		require.Len(t, resp.Items, 1)
		assert.Equal(t, q.ready.ID, resp.Items[0].ID)
	})

	t.Run("only exhausted", func(t *testing.T) {
		resp, err := q.svc.ListAllItems(ctx, admin.ListItemsRequest{
			Filters: admin.NewFilters(admin.WithOnlyExhausted()),
		})
		require.NoError(t, err)
		require.Len(t, resp.Items, 1)
		assert.Equal(t, q.exhausted.ID, resp.Items[0].ID)
	})

	t.Run("only with errors", func(t *testing.T) {
		resp, err := q.svc.ListAllItems(ctx, admin.ListItemsRequest{
			Filters: admin.NewFilters(admin.WithOnlyWithErrors()),
		})
		require.NoError(t, err)
		require.Len(t, resp.Items, 1)
	})

	t.Run("created after", func(t *testing.T) {
		resp, err := q.svc.ListAllItems(ctx, admin.ListItemsRequest{
			Filters: admin.NewFilters(admin.WithCreatedAfter(q.exhausted.CreatedAt)),
		})
		require.NoError(t, err)
		assert.Len(t, resp.Items, 3)
	})
}

func TestAdminService_CountItems(t *testing.T) {
	ctx := context.Background()
	q := seedQueue(t)

	resp, err := q.svc.CountItems(ctx, admin.CountRequest{
		Filters: admin.NewFilters(admin.WithTarget("docs")),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), resp.Count)

	resp, err = q.svc.CountItems(ctx, admin.CountRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), resp.Count)
}

func TestAdminService_GetStatistics(t *testing.T) {
	ctx := context.Background()
	q := seedQueue(t)

	resp, err := q.svc.GetStatistics(ctx, admin.StatisticsRequest{
		Options: admin.DefaultStatisticsOptions(),
	})
	require.NoError(t, err)

	stats := resp.Statistics
	assert.Equal(t, int64(5), stats.TotalCount)
	assert.Equal(t, int64(1), stats.Exhausted)
	assert.Equal(t, int64(2), stats.ByStatus[string(simplepublish.ItemStatusPending)])
	assert.Equal(t, int64(1), stats.ByStatus[string(simplepublish.ItemStatusPublished)])
	assert.Equal(t, int64(3), stats.ByTarget["blog"])
	assert.Equal(t, int64(3), stats.ByTarget["docs"])
	assert.Equal(t, int64(1), stats.ByPriority[string(simplepublish.PriorityUrgent)])
	assert.Equal(t, int64(3), stats.ByKind[string(simplepublish.KindPost)])

	require.NotNil(t, stats.OldestItem)
	assert.True(t, stats.OldestItem.Equal(q.pending.CreatedAt))
	require.NotNil(t, stats.NewestItem)
	assert.True(t, stats.NewestItem.Equal(q.scheduled.CreatedAt))
	require.NotNil(t, stats.NextScheduled)
	assert.True(t, stats.NextScheduled.Equal(q.scheduled.ScheduledFor))

	assert.False(t, resp.ComputedAt.IsZero())
}

func TestAdminService_GetStatisticsWithoutBreakdowns(t *testing.T) {
	ctx := context.Background()
	q := seedQueue(t)

	resp, err := q.svc.GetStatistics(ctx, admin.StatisticsRequest{})
	require.NoError(t, err)

	stats := resp.Statistics
	assert.Equal(t, int64(5), stats.TotalCount)
	assert.Nil(t, stats.ByStatus)
	assert.Nil(t, stats.ByTarget)
	assert.Nil(t, stats.OldestItem)
}
