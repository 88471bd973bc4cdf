package memory

import (
	"context"
	"sync"

	"queue-market-watch/internal/domain"
	"queue-market-watch/internal/storage"
)

// DefaultCapacity matches the feed depth the marketplace UI displays.
const DefaultCapacity = 100

// ActivityStore is an in-memory implementation of storage.ActivityStore.
// Newest-first, trimmed to capacity on every append.
type ActivityStore struct {
	mu       sync.RWMutex
	items    []*domain.Activity // index 0 is newest
	capacity int
}

// NewActivityStore creates an in-memory activity store. A non-positive
// capacity falls back to DefaultCapacity.
func NewActivityStore(capacity int) *ActivityStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &ActivityStore{capacity: capacity}
}

// Append prepends a batch and trims to capacity.
func (s *ActivityStore) Append(_ context.Context, batch []*domain.Activity) error {
	for _, a := range batch {
		if a == nil || a.ActivityID == "" || !a.Kind.Valid() {
			return storage.ErrInvalidInput
		}
	}
	if len(batch) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Batch order is detection order (oldest first); reverse so the last
	// detected activity ends up newest.
	merged := make([]*domain.Activity, 0, len(batch)+len(s.items))
	for i := len(batch) - 1; i >= 0; i-- {
		itemCopy := *batch[i]
		merged = append(merged, &itemCopy)
	}
	merged = append(merged, s.items...)

	if len(merged) > s.capacity {
		merged = merged[:s.capacity]
	}
	s.items = merged
	return nil
}

// All returns the current contents, newest first.
func (s *ActivityStore) All(_ context.Context) ([]*domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Activity, len(s.items))
	for i, a := range s.items {
		itemCopy := *a
		out[i] = &itemCopy
	}
	return out, nil
}

// Capacity returns the configured maximum.
func (s *ActivityStore) Capacity() int {
	return s.capacity
}

// Verify interface compliance at compile time.
var _ storage.ActivityStore = (*ActivityStore)(nil)
