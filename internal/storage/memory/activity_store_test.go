package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"queue-market-watch/internal/domain"
	"queue-market-watch/internal/storage"
)

func testActivity(n int) *domain.Activity {
	return &domain.Activity{
		ActivityID: fmt.Sprintf("act-1700000000000-%d", n),
		Kind:       domain.KindJoin,
		Timestamp:  1700000000000 + int64(n),
		QueueID:    1,
		QueueName:  "coffee-truck",
		TokenID:    uint32(n),
		Owner:      "alice",
	}
}

func TestActivityStore_NewestFirst(t *testing.T) {
	store := NewActivityStore(0)
	ctx := context.Background()

	if err := store.Append(ctx, []*domain.Activity{testActivity(0), testActivity(1)}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append(ctx, []*domain.Activity{testActivity(2)}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}

	for i, want := range []uint32{2, 1, 0} {
		if got[i].TokenID != want {
			t.Errorf("position %d: expected token %d, got %d", i, want, got[i].TokenID)
		}
	}
}

func TestActivityStore_CapacityEviction(t *testing.T) {
	store := NewActivityStore(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := store.Append(ctx, []*domain.Activity{testActivity(i)}); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	got, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 items after eviction, got %d", len(got))
	}
	if got[0].TokenID != 4 || got[2].TokenID != 2 {
		t.Errorf("expected tokens 4..2 newest first, got %d..%d", got[0].TokenID, got[2].TokenID)
	}
	if store.Capacity() != 3 {
		t.Errorf("expected capacity 3, got %d", store.Capacity())
	}
}

func TestActivityStore_OversizedBatch(t *testing.T) {
	store := NewActivityStore(2)
	ctx := context.Background()

	batch := []*domain.Activity{testActivity(0), testActivity(1), testActivity(2)}
	if err := store.Append(ctx, batch); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, _ := store.All(ctx)
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
	// The most recently detected survive.
	if got[0].TokenID != 2 || got[1].TokenID != 1 {
		t.Errorf("expected tokens 2,1, got %d,%d", got[0].TokenID, got[1].TokenID)
	}
}

func TestActivityStore_Validation(t *testing.T) {
	store := NewActivityStore(0)
	ctx := context.Background()

	if err := store.Append(ctx, []*domain.Activity{nil}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for nil item, got %v", err)
	}

	bad := testActivity(0)
	bad.ActivityID = ""
	if err := store.Append(ctx, []*domain.Activity{bad}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for missing id, got %v", err)
	}

	bad = testActivity(0)
	bad.Kind = domain.Kind("bogus")
	if err := store.Append(ctx, []*domain.Activity{bad}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for bad kind, got %v", err)
	}

	if err := store.Append(ctx, nil); err != nil {
		t.Errorf("expected nil for empty batch, got %v", err)
	}
}

func TestActivityStore_CopyOnReadAndWrite(t *testing.T) {
	store := NewActivityStore(0)
	ctx := context.Background()

	original := testActivity(0)
	if err := store.Append(ctx, []*domain.Activity{original}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Mutating the appended item must not reach the store.
	original.Owner = "mallory"

	got, _ := store.All(ctx)
	if got[0].Owner != "alice" {
		t.Errorf("append did not copy: owner %s", got[0].Owner)
	}

	// Mutating a read result must not reach the store either.
	got[0].Owner = "mallory"
	again, _ := store.All(ctx)
	if again[0].Owner != "alice" {
		t.Errorf("read did not copy: owner %s", again[0].Owner)
	}
}

func TestActivityStore_ConcurrentAccess(t *testing.T) {
	store := NewActivityStore(50)
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				store.Append(ctx, []*domain.Activity{testActivity(g*100 + i)})
				store.All(ctx)
			}
		}(g)
	}
	wg.Wait()

	got, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(got) != 50 {
		t.Errorf("expected store full at capacity 50, got %d", len(got))
	}
}
