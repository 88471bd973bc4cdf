package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"queue-market-watch/internal/domain"
	"queue-market-watch/internal/storage"
)

// DefaultCapacity mirrors the in-memory feed depth.
const DefaultCapacity = 100

// ActivityStore implements storage.ActivityStore using PostgreSQL. The
// durable feed survives restarts while keeping the same bounded newest-
// first contract as the in-memory store.
type ActivityStore struct {
	pool     *Pool
	capacity int
}

// NewActivityStore creates a new ActivityStore. A non-positive capacity
// falls back to DefaultCapacity.
func NewActivityStore(pool *Pool, capacity int) *ActivityStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &ActivityStore{pool: pool, capacity: capacity}
}

// Compile-time interface check.
var _ storage.ActivityStore = (*ActivityStore)(nil)

// Append inserts a batch in detection order and trims the feed to its
// capacity. The batch is applied in one transaction; a duplicate
// activity_id fails the whole batch with ErrDuplicateKey.
func (s *ActivityStore) Append(ctx context.Context, batch []*domain.Activity) error {
	for _, a := range batch {
		if a == nil || a.ActivityID == "" || !a.Kind.Valid() {
			return storage.ErrInvalidInput
		}
	}
	if len(batch) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO activities (
			activity_id, kind, detected_at, queue_id, queue_name, token_id, owner, price, buyer
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	for _, a := range batch {
		var price *int64
		if a.Price != nil {
			p := int64(*a.Price)
			price = &p
		}
		if _, err := tx.Exec(ctx, query,
			a.ActivityID,
			string(a.Kind),
			a.Timestamp,
			a.QueueID,
			a.QueueName,
			a.TokenID,
			a.Owner,
			price,
			a.Buyer,
		); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert activity: %w", err)
		}
	}

	trim := `
		DELETE FROM activities
		WHERE seq NOT IN (SELECT seq FROM activities ORDER BY seq DESC LIMIT $1)
	`
	if _, err := tx.Exec(ctx, trim, s.capacity); err != nil {
		return fmt.Errorf("trim activities: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

// All returns the retained feed, newest first.
func (s *ActivityStore) All(ctx context.Context) ([]*domain.Activity, error) {
	query := `
		SELECT activity_id, kind, detected_at, queue_id, queue_name, token_id, owner, price, buyer
		FROM activities
		ORDER BY seq DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, s.capacity)
	if err != nil {
		return nil, fmt.Errorf("get activities: %w", err)
	}
	defer rows.Close()

	return scanActivities(rows)
}

// Capacity returns the configured maximum.
func (s *ActivityStore) Capacity() int {
	return s.capacity
}

func scanActivities(rows pgx.Rows) ([]*domain.Activity, error) {
	var out []*domain.Activity
	for rows.Next() {
		var (
			a     domain.Activity
			kind  string
			price *int64
		)
		if err := rows.Scan(
			&a.ActivityID,
			&kind,
			&a.Timestamp,
			&a.QueueID,
			&a.QueueName,
			&a.TokenID,
			&a.Owner,
			&price,
			&a.Buyer,
		); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.Kind = domain.Kind(kind)
		if price != nil {
			p := uint64(*price)
			a.Price = &p
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}
	return out, nil
}
