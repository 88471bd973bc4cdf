package memory

import (
	"context"
	"sync"

	"queue-market-watch/internal/domain"
	"queue-market-watch/internal/storage"
)

// CheckpointStore is an in-memory implementation of storage.CheckpointStore.
type CheckpointStore struct {
	mu        sync.RWMutex
	snapshots map[uint32]domain.Snapshot
	queues    map[uint32]domain.Queue
}

// NewCheckpointStore creates a new in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{
		snapshots: make(map[uint32]domain.Snapshot),
		queues:    make(map[uint32]domain.Queue),
	}
}

// SaveSnapshot replaces the stored snapshot for a queue in full.
func (s *CheckpointStore) SaveSnapshot(_ context.Context, queue domain.Queue, tokens domain.Snapshot) error {
	if queue.Name == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[queue.QueueID] = tokens.Clone()
	s.queues[queue.QueueID] = queue
	return nil
}

// LoadSnapshots returns all stored snapshots and queue metadata.
func (s *CheckpointStore) LoadSnapshots(_ context.Context) (map[uint32]domain.Snapshot, map[uint32]domain.Queue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snaps := make(map[uint32]domain.Snapshot, len(s.snapshots))
	for id, snap := range s.snapshots {
		snaps[id] = snap.Clone()
	}
	queues := make(map[uint32]domain.Queue, len(s.queues))
	for id, q := range s.queues {
		queues[id] = q
	}
	return snaps, queues, nil
}

// Verify interface compliance at compile time.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)
