package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-publish/pkg/simplepublish"
)

// Store implements simplepublish.ItemStore using in-memory storage
type Store struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*simplepublish.Item
}

// New creates a new in-memory item store
func New() simplepublish.ItemStore {
	return &Store{
		items: make(map[uuid.UUID]*simplepublish.Item),
	}
}

func (s *Store) Put(ctx context.Context, item *simplepublish.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external modifications
	s.items[item.ID] = item.Clone()

	return nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*simplepublish.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.items[id]
	if !exists {
		return nil, simplepublish.ErrItemNotFound
	}

	// Return a copy to prevent external modifications
	return item.Clone(), nil
}

func (s *Store) Update(ctx context.Context, item *simplepublish.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[item.ID]; !exists {
		return simplepublish.ErrItemNotFound
	}

	// Store a copy to avoid external modifications
	s.items[item.ID] = item.Clone()

	return nil
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[id]; !exists {
		return simplepublish.ErrItemNotFound
	}

	delete(s.items, id)

	return nil
}

func (s *Store) List(ctx context.Context, filter simplepublish.ItemFilter) ([]*simplepublish.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*simplepublish.Item
	for _, item := range s.items {
		if matches(item, filter) {
			result = append(result, item.Clone())
		}
	}

	// Sort by created_at ascending so limits are deterministic
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

// Transition performs a compare-and-set status change under the write lock,
// so exactly one of any concurrent callers wins.
func (s *Store) Transition(ctx context.Context, id uuid.UUID, from, to simplepublish.ItemStatus) (*simplepublish.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.items[id]
	if !exists {
		return nil, simplepublish.ErrItemNotFound
	}
	if !simplepublish.ValidTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", simplepublish.ErrInvalidTransition, from, to)
	}
	if item.Status != from {
		return nil, fmt.Errorf("%w: item is %s, not %s", simplepublish.ErrTransitionConflict, item.Status, from)
	}

	item.Status = to
	item.UpdatedAt = time.Now().UTC()

	return item.Clone(), nil
}

func (s *Store) CountByStatus(ctx context.Context) (map[simplepublish.ItemStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[simplepublish.ItemStatus]int)
	for _, item := range s.items {
		counts[item.Status]++
	}

	return counts, nil
}

func matches(item *simplepublish.Item, filter simplepublish.ItemFilter) bool {
	if len(filter.Statuses) > 0 {
		found := false
		for _, status := range filter.Statuses {
			if item.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if filter.Target != "" {
		found := false
		for _, target := range item.Targets {
			if target == filter.Target {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	// Zero ScheduledFor means eligible immediately.
	if filter.ScheduledBy != nil && !item.ScheduledFor.IsZero() && item.ScheduledFor.After(*filter.ScheduledBy) {
		return false
	}

	return true
}
