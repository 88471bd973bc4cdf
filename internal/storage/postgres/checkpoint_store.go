package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"queue-market-watch/internal/domain"
	"queue-market-watch/internal/storage"
)

// CheckpointStore implements storage.CheckpointStore using PostgreSQL.
// One row per queue holding the full last-observed snapshot as jsonb.
type CheckpointStore struct {
	pool *Pool
}

// NewCheckpointStore creates a new CheckpointStore.
func NewCheckpointStore(pool *Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)

// SaveSnapshot replaces the stored snapshot for a queue in full.
func (s *CheckpointStore) SaveSnapshot(ctx context.Context, queue domain.Queue, tokens domain.Snapshot) error {
	if queue.Name == "" {
		return storage.ErrInvalidInput
	}

	payload, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	query := `
		INSERT INTO snapshot_checkpoints (queue_id, queue_name, creator, tokens, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (queue_id) DO UPDATE SET
			queue_name = EXCLUDED.queue_name,
			creator = EXCLUDED.creator,
			tokens = EXCLUDED.tokens,
			updated_at = NOW()
	`

	if _, err := s.pool.Exec(ctx, query, queue.QueueID, queue.Name, queue.Creator, payload); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshots returns all stored snapshots keyed by queue id, together
// with the queue metadata recorded at save time.
func (s *CheckpointStore) LoadSnapshots(ctx context.Context) (map[uint32]domain.Snapshot, map[uint32]domain.Queue, error) {
	query := `
		SELECT queue_id, queue_name, creator, tokens
		FROM snapshot_checkpoints
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("load snapshots: %w", err)
	}
	defer rows.Close()

	snaps := make(map[uint32]domain.Snapshot)
	queues := make(map[uint32]domain.Queue)
	for rows.Next() {
		var (
			q       domain.Queue
			payload []byte
		)
		if err := rows.Scan(&q.QueueID, &q.Name, &q.Creator, &payload); err != nil {
			return nil, nil, fmt.Errorf("scan snapshot: %w", err)
		}

		var snap domain.Snapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return nil, nil, fmt.Errorf("unmarshal snapshot for queue %d: %w", q.QueueID, err)
		}

		q.TokenCount = uint32(len(snap))
		snaps[q.QueueID] = snap
		queues[q.QueueID] = q
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snaps, queues, nil
}
