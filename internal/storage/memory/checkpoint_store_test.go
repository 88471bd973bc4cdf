package memory

import (
	"context"
	"testing"

	"queue-market-watch/internal/domain"
)

func TestCheckpointStore_SaveAndLoad(t *testing.T) {
	store := NewCheckpointStore()
	ctx := context.Background()

	queue := domain.Queue{QueueID: 1, Name: "coffee-truck", Creator: "creator1"}
	snap := domain.Snapshot{
		{TokenID: 0, Owner: "alice", Price: 10},
		{TokenID: 1, Owner: "bob", Price: 0},
	}
	if err := store.SaveSnapshot(ctx, queue, snap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	snaps, queues, err := store.LoadSnapshots(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshots: %v", err)
	}
	if len(snaps) != 1 || len(queues) != 1 {
		t.Fatalf("expected 1 entry, got %d/%d", len(snaps), len(queues))
	}
	if snaps[1][0].Owner != "alice" {
		t.Errorf("expected owner alice, got %s", snaps[1][0].Owner)
	}
	if queues[1].Name != "coffee-truck" {
		t.Errorf("expected queue name preserved, got %s", queues[1].Name)
	}
}

func TestCheckpointStore_ReplacesInFull(t *testing.T) {
	store := NewCheckpointStore()
	ctx := context.Background()

	queue := domain.Queue{QueueID: 1, Name: "coffee-truck", Creator: "creator1"}
	store.SaveSnapshot(ctx, queue, domain.Snapshot{{TokenID: 0, Owner: "alice", Price: 10}})
	store.SaveSnapshot(ctx, queue, domain.Snapshot{
		{TokenID: 0, Owner: "bob", Price: 0},
		{TokenID: 1, Owner: "carol", Price: 7},
	})

	snaps, _, err := store.LoadSnapshots(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshots: %v", err)
	}
	if len(snaps[1]) != 2 {
		t.Fatalf("expected replaced snapshot of 2 tokens, got %d", len(snaps[1]))
	}
	if snaps[1][0].Owner != "bob" {
		t.Errorf("expected owner bob, got %s", snaps[1][0].Owner)
	}
}

func TestCheckpointStore_Isolation(t *testing.T) {
	store := NewCheckpointStore()
	ctx := context.Background()

	queue := domain.Queue{QueueID: 1, Name: "coffee-truck", Creator: "creator1"}
	snap := domain.Snapshot{{TokenID: 0, Owner: "alice", Price: 10}}
	store.SaveSnapshot(ctx, queue, snap)

	// Mutating the saved snapshot must not reach the store.
	snap[0].Owner = "mallory"

	snaps, _, _ := store.LoadSnapshots(ctx)
	if snaps[1][0].Owner != "alice" {
		t.Errorf("save did not copy: owner %s", snaps[1][0].Owner)
	}

	// Mutating a loaded snapshot must not reach the store either.
	snaps[1][0].Owner = "mallory"
	again, _, _ := store.LoadSnapshots(ctx)
	if again[1][0].Owner != "alice" {
		t.Errorf("load did not copy: owner %s", again[1][0].Owner)
	}
}
