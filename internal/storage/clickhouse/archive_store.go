package clickhouse

import (
	"context"
	"fmt"

	"queue-market-watch/internal/domain"
	"queue-market-watch/internal/storage"
)

// ArchiveStore implements storage.ArchiveStore using ClickHouse. Every
// detected activity lands here unbounded, feeding marketplace analytics.
type ArchiveStore struct {
	conn *Conn
}

// NewArchiveStore creates a new ArchiveStore.
func NewArchiveStore(conn *Conn) *ArchiveStore {
	return &ArchiveStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ArchiveStore = (*ArchiveStore)(nil)

// InsertBulk appends a batch of activities. Fails the entire batch on a
// duplicate activity id.
func (s *ArchiveStore) InsertBulk(ctx context.Context, batch []*domain.Activity) error {
	for _, a := range batch {
		if a == nil || a.ActivityID == "" || !a.Kind.Valid() {
			return storage.ErrInvalidInput
		}
	}
	if len(batch) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[string]struct{}, len(batch))
	for _, a := range batch {
		if _, exists := seen[a.ActivityID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[a.ActivityID] = struct{}{}
	}

	// MergeTree does not enforce uniqueness, so check against existing rows
	for _, a := range batch {
		exists, err := s.exists(ctx, a.ActivityID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	prepared, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO activities (
			activity_id, kind, detected_at, queue_id, queue_name, token_id, owner, price, buyer
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, a := range batch {
		var price uint64
		hasPrice := uint8(0)
		if a.Price != nil {
			price = *a.Price
			hasPrice = 1
		}
		var buyer string
		if a.Buyer != nil {
			buyer = *a.Buyer
		}
		err = prepared.Append(
			a.ActivityID, string(a.Kind), uint64(a.Timestamp),
			a.QueueID, a.QueueName, a.TokenID, a.Owner,
			price, hasPrice, buyer,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := prepared.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

func (s *ArchiveStore) exists(ctx context.Context, activityID string) (bool, error) {
	query := `SELECT count() FROM activities WHERE activity_id = ?`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, activityID).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// CountByKind tallies archived activities per queue and kind.
func (s *ArchiveStore) CountByKind(ctx context.Context) ([]storage.KindCount, error) {
	query := `
		SELECT queue_id, kind, count() AS cnt
		FROM activities
		GROUP BY queue_id, kind
		ORDER BY queue_id ASC, kind ASC
	`

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count by kind: %w", err)
	}
	defer rows.Close()

	var out []storage.KindCount
	for rows.Next() {
		var (
			kc   storage.KindCount
			kind string
		)
		if err := rows.Scan(&kc.QueueID, &kind, &kc.Count); err != nil {
			return nil, fmt.Errorf("scan kind count: %w", err)
		}
		kc.Kind = domain.Kind(kind)
		out = append(out, kc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kind counts: %w", err)
	}
	return out, nil
}

// GetByTimeRange returns archived activities detected within [start, end]
// (inclusive, Unix ms), oldest first.
func (s *ArchiveStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Activity, error) {
	query := `
		SELECT activity_id, kind, detected_at, queue_id, queue_name, token_id, owner, price, has_price, buyer
		FROM activities
		WHERE detected_at >= ? AND detected_at <= ?
		ORDER BY detected_at ASC, activity_id ASC
	`

	rows, err := s.conn.Query(ctx, query, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("get by time range: %w", err)
	}
	defer rows.Close()

	var out []*domain.Activity
	for rows.Next() {
		var (
			a          domain.Activity
			kind       string
			detectedAt uint64
			price      uint64
			hasPrice   uint8
			buyer      string
		)
		if err := rows.Scan(
			&a.ActivityID, &kind, &detectedAt,
			&a.QueueID, &a.QueueName, &a.TokenID, &a.Owner,
			&price, &hasPrice, &buyer,
		); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.Kind = domain.Kind(kind)
		a.Timestamp = int64(detectedAt)
		if hasPrice == 1 {
			p := price
			a.Price = &p
		}
		if buyer != "" {
			b := buyer
			a.Buyer = &b
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}
	return out, nil
}
