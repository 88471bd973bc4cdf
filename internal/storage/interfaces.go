package storage

import (
	"context"

	"queue-market-watch/internal/domain"
)

// ActivityStore is the capacity-bounded feed of detected activities.
// Only the detection engine appends; any number of consumers read.
type ActivityStore interface {
	// Append prepends a batch of activities (oldest of the batch last) and
	// trims the store to its capacity. The batch is applied atomically.
	Append(ctx context.Context, batch []*domain.Activity) error

	// All returns the current contents, newest first, at most capacity items.
	All(ctx context.Context) ([]*domain.Activity, error)

	// Capacity returns the maximum number of retained activities.
	Capacity() int
}

// CheckpointStore persists the last-observed snapshot per queue so a
// restarted watcher can resume without a fresh seeding pass.
type CheckpointStore interface {
	// SaveSnapshot replaces the stored snapshot for a queue in full.
	SaveSnapshot(ctx context.Context, queue domain.Queue, tokens domain.Snapshot) error

	// LoadSnapshots returns all stored snapshots keyed by queue id, together
	// with the queue metadata recorded at save time.
	LoadSnapshots(ctx context.Context) (map[uint32]domain.Snapshot, map[uint32]domain.Queue, error)
}

// KindCount is one row of a per-queue, per-kind activity tally.
type KindCount struct {
	QueueID uint32
	Kind    domain.Kind
	Count   uint64
}

// ArchiveStore is the append-only long-term archive of every detected
// activity, used for marketplace analytics. Unlike the ActivityStore it is
// not capacity-bounded.
type ArchiveStore interface {
	// InsertBulk appends a batch of activities. Fails the entire batch on a
	// duplicate activity id.
	InsertBulk(ctx context.Context, batch []*domain.Activity) error

	// CountByKind tallies archived activities per queue and kind.
	CountByKind(ctx context.Context) ([]KindCount, error)

	// GetByTimeRange returns archived activities detected within
	// [start, end] (inclusive, Unix ms), oldest first.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Activity, error)
}
