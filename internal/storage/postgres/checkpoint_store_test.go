package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queue-market-watch/internal/domain"
	"queue-market-watch/internal/storage"
)

func TestCheckpointStore_SaveAndLoad(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCheckpointStore(pool)
	ctx := context.Background()

	queue := domain.Queue{QueueID: 1, Name: "coffee-truck", Creator: "creator1"}
	snap := domain.Snapshot{
		{TokenID: 0, Owner: "alice", Price: 50_000_000},
		{TokenID: 1, Owner: "bob", Price: 0},
	}
	require.NoError(t, store.SaveSnapshot(ctx, queue, snap))

	snaps, queues, err := store.LoadSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	require.Len(t, queues, 1)

	got := snaps[1]
	require.Len(t, got, 2)
	assert.Equal(t, "alice", got[0].Owner)
	assert.Equal(t, uint64(50_000_000), got[0].Price)

	q := queues[1]
	assert.Equal(t, "coffee-truck", q.Name)
	assert.Equal(t, uint32(2), q.TokenCount)
}

func TestCheckpointStore_ReplacesInFull(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCheckpointStore(pool)
	ctx := context.Background()

	queue := domain.Queue{QueueID: 1, Name: "coffee-truck", Creator: "creator1"}
	require.NoError(t, store.SaveSnapshot(ctx, queue, domain.Snapshot{
		{TokenID: 0, Owner: "alice", Price: 10},
	}))

	// Second save replaces, never merges.
	require.NoError(t, store.SaveSnapshot(ctx, queue, domain.Snapshot{
		{TokenID: 0, Owner: "bob", Price: 0},
		{TokenID: 1, Owner: "carol", Price: 7},
	}))

	snaps, _, err := store.LoadSnapshots(ctx)
	require.NoError(t, err)
	got := snaps[1]
	require.Len(t, got, 2)
	assert.Equal(t, "bob", got[0].Owner)
	assert.Equal(t, uint64(0), got[0].Price)
}

func TestCheckpointStore_EmptySnapshot(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCheckpointStore(pool)
	ctx := context.Background()

	queue := domain.Queue{QueueID: 2, Name: "visa-office", Creator: "creator2"}
	require.NoError(t, store.SaveSnapshot(ctx, queue, domain.Snapshot{}))

	snaps, queues, err := store.LoadSnapshots(ctx)
	require.NoError(t, err)
	assert.Len(t, snaps[2], 0)
	assert.Equal(t, uint32(0), queues[2].TokenCount)
}

func TestCheckpointStore_Validation(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCheckpointStore(pool)
	err := store.SaveSnapshot(context.Background(), domain.Queue{QueueID: 1}, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
