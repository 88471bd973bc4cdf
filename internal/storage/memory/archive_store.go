package memory

import (
	"context"
	"sort"
	"sync"

	"queue-market-watch/internal/domain"
	"queue-market-watch/internal/storage"
)

// ArchiveStore is an in-memory implementation of storage.ArchiveStore.
type ArchiveStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Activity // keyed by activity_id
}

// NewArchiveStore creates a new in-memory archive store.
func NewArchiveStore() *ArchiveStore {
	return &ArchiveStore{
		data: make(map[string]*domain.Activity),
	}
}

// InsertBulk appends a batch. Fails the entire batch on any duplicate.
func (s *ArchiveStore) InsertBulk(_ context.Context, batch []*domain.Activity) error {
	if len(batch) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate whole batch before applying anything.
	seen := make(map[string]struct{}, len(batch))
	for _, a := range batch {
		if a == nil || a.ActivityID == "" || !a.Kind.Valid() {
			return storage.ErrInvalidInput
		}
		if _, dup := seen[a.ActivityID]; dup {
			return storage.ErrDuplicateKey
		}
		if _, dup := s.data[a.ActivityID]; dup {
			return storage.ErrDuplicateKey
		}
		seen[a.ActivityID] = struct{}{}
	}

	for _, a := range batch {
		itemCopy := *a
		s.data[a.ActivityID] = &itemCopy
	}
	return nil
}

// CountByKind tallies archived activities per queue and kind.
func (s *ArchiveStore) CountByKind(_ context.Context) ([]storage.KindCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type key struct {
		queueID uint32
		kind    domain.Kind
	}
	tally := make(map[key]uint64)
	for _, a := range s.data {
		tally[key{a.QueueID, a.Kind}]++
	}

	out := make([]storage.KindCount, 0, len(tally))
	for k, n := range tally {
		out = append(out, storage.KindCount{QueueID: k.queueID, Kind: k.kind, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QueueID != out[j].QueueID {
			return out[i].QueueID < out[j].QueueID
		}
		return out[i].Kind < out[j].Kind
	})
	return out, nil
}

// GetByTimeRange returns archived activities within [start, end], oldest first.
func (s *ArchiveStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Activity
	for _, a := range s.data {
		if a.Timestamp >= start && a.Timestamp <= end {
			itemCopy := *a
			out = append(out, &itemCopy)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].ActivityID < out[j].ActivityID
	})
	return out, nil
}

// Verify interface compliance at compile time.
var _ storage.ArchiveStore = (*ArchiveStore)(nil)
