package detect

import (
	"testing"

	"queue-market-watch/internal/domain"
)

var testQueue = domain.Queue{QueueID: 3, Name: "coffee-truck", Creator: "creator1"}

func token(id uint32, owner string, price uint64) domain.Token {
	return domain.Token{TokenID: id, Owner: owner, Price: price}
}

func TestDiffSnapshots_Joins(t *testing.T) {
	prev := domain.Snapshot{token(0, "alice", 0)}
	cur := domain.Snapshot{
		token(0, "alice", 0),
		token(1, "bob", 0),
		token(2, "carol", 0),
	}

	acts := DiffSnapshots(testQueue, prev, cur)

	if len(acts) != 2 {
		t.Fatalf("expected 2 activities, got %d", len(acts))
	}

	for i, want := range []struct {
		tokenID uint32
		owner   string
	}{{1, "bob"}, {2, "carol"}} {
		a := acts[i]
		if a.Kind != domain.KindJoin {
			t.Errorf("activity %d: expected join, got %s", i, a.Kind)
		}
		if a.TokenID != want.tokenID {
			t.Errorf("activity %d: expected token %d, got %d", i, want.tokenID, a.TokenID)
		}
		if a.Owner != want.owner {
			t.Errorf("activity %d: expected owner %s, got %s", i, want.owner, a.Owner)
		}
		if a.Price != nil {
			t.Errorf("activity %d: join must not carry a price", i)
		}
		if a.QueueName != "coffee-truck" {
			t.Errorf("activity %d: expected queue name denormalized, got %q", i, a.QueueName)
		}
	}
}

func TestDiffSnapshots_JoinsFromEmpty(t *testing.T) {
	cur := domain.Snapshot{token(0, "alice", 0), token(1, "bob", 0)}

	acts := DiffSnapshots(testQueue, domain.Snapshot{}, cur)

	if len(acts) != 2 {
		t.Fatalf("expected 2 joins, got %d", len(acts))
	}
	if acts[0].TokenID != 0 || acts[1].TokenID != 1 {
		t.Errorf("expected ascending token ids, got %d then %d", acts[0].TokenID, acts[1].TokenID)
	}
}

func TestDiffSnapshots_List(t *testing.T) {
	prev := domain.Snapshot{token(0, "alice", 0)}
	cur := domain.Snapshot{token(0, "alice", 7)}

	acts := DiffSnapshots(testQueue, prev, cur)

	if len(acts) != 1 {
		t.Fatalf("expected 1 activity, got %d", len(acts))
	}
	a := acts[0]
	if a.Kind != domain.KindList {
		t.Fatalf("expected list, got %s", a.Kind)
	}
	if a.Owner != "alice" {
		t.Errorf("expected owner alice, got %s", a.Owner)
	}
	if a.Price == nil || *a.Price != 7 {
		t.Errorf("expected price 7, got %v", a.Price)
	}
	if a.Buyer != nil {
		t.Error("list must not carry a buyer")
	}
}

func TestDiffSnapshots_Cancel(t *testing.T) {
	prev := domain.Snapshot{token(0, "alice", 5)}
	cur := domain.Snapshot{token(0, "alice", 0)}

	acts := DiffSnapshots(testQueue, prev, cur)

	if len(acts) != 1 {
		t.Fatalf("expected 1 activity, got %d", len(acts))
	}
	a := acts[0]
	if a.Kind != domain.KindCancel {
		t.Fatalf("expected cancel, got %s", a.Kind)
	}
	if a.Owner != "alice" {
		t.Errorf("expected owner alice, got %s", a.Owner)
	}
	if a.Price == nil || *a.Price != 5 {
		t.Errorf("expected listed price 5, got %v", a.Price)
	}
}

func TestDiffSnapshots_Sale(t *testing.T) {
	prev := domain.Snapshot{token(0, "alice", 9)}
	cur := domain.Snapshot{token(0, "bob", 0)}

	acts := DiffSnapshots(testQueue, prev, cur)

	if len(acts) != 1 {
		t.Fatalf("expected 1 activity, got %d", len(acts))
	}
	a := acts[0]
	if a.Kind != domain.KindSale {
		t.Fatalf("expected sale, got %s", a.Kind)
	}
	if a.Owner != "alice" {
		t.Errorf("expected seller alice as owner, got %s", a.Owner)
	}
	if a.Buyer == nil || *a.Buyer != "bob" {
		t.Errorf("expected buyer bob, got %v", a.Buyer)
	}
	if a.Price == nil || *a.Price != 9 {
		t.Errorf("expected listed price 9, got %v", a.Price)
	}
}

func TestDiffSnapshots_SalePrecedence(t *testing.T) {
	// Ownership change with any sale-flag combination must yield exactly
	// one sale and never a list or cancel for the same index.
	cases := []struct {
		name       string
		prevPrice  uint64
		curPrice   uint64
		wantListed uint64
	}{
		{"listed to unlisted", 9, 0, 9},
		{"listed to relisted", 9, 12, 9},
		{"unlisted to unlisted", 0, 0, 0},
		{"unlisted to listed", 0, 4, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prev := domain.Snapshot{token(0, "alice", tc.prevPrice)}
			cur := domain.Snapshot{token(0, "bob", tc.curPrice)}

			acts := DiffSnapshots(testQueue, prev, cur)

			if len(acts) != 1 {
				t.Fatalf("expected exactly 1 activity, got %d", len(acts))
			}
			if acts[0].Kind != domain.KindSale {
				t.Fatalf("expected sale, got %s", acts[0].Kind)
			}
			if acts[0].Price == nil || *acts[0].Price != tc.wantListed {
				t.Errorf("expected listed price %d, got %v", tc.wantListed, acts[0].Price)
			}
		})
	}
}

func TestDiffSnapshots_NoOp(t *testing.T) {
	snap := domain.Snapshot{
		token(0, "alice", 0),
		token(1, "bob", 5),
	}

	if acts := DiffSnapshots(testQueue, snap, snap.Clone()); len(acts) != 0 {
		t.Errorf("expected no activities for identical snapshots, got %d", len(acts))
	}
}

func TestDiffSnapshots_OrderingJoinsFirst(t *testing.T) {
	prev := domain.Snapshot{token(0, "alice", 0)}
	cur := domain.Snapshot{
		token(0, "alice", 6),
		token(1, "bob", 0),
	}

	acts := DiffSnapshots(testQueue, prev, cur)

	if len(acts) != 2 {
		t.Fatalf("expected 2 activities, got %d", len(acts))
	}
	if acts[0].Kind != domain.KindJoin {
		t.Errorf("expected join first, got %s", acts[0].Kind)
	}
	if acts[1].Kind != domain.KindList {
		t.Errorf("expected list second, got %s", acts[1].Kind)
	}
}

func TestDiffSnapshots_NetTransitionOnly(t *testing.T) {
	// List then immediate sale within one interval is observed only as
	// the net owner change.
	prev := domain.Snapshot{token(0, "alice", 0)}
	cur := domain.Snapshot{token(0, "bob", 0)}

	acts := DiffSnapshots(testQueue, prev, cur)

	if len(acts) != 1 || acts[0].Kind != domain.KindSale {
		t.Fatalf("expected single sale, got %v", acts)
	}
}

func TestDiffSnapshots_ShorterCurrent(t *testing.T) {
	// Not expected from the contract, but the comparison must stay in
	// bounds and only cover the overlap.
	prev := domain.Snapshot{token(0, "alice", 0), token(1, "bob", 3)}
	cur := domain.Snapshot{token(0, "alice", 2)}

	acts := DiffSnapshots(testQueue, prev, cur)

	if len(acts) != 1 {
		t.Fatalf("expected 1 activity, got %d", len(acts))
	}
	if acts[0].Kind != domain.KindList || acts[0].TokenID != 0 {
		t.Errorf("expected list for token 0, got %+v", acts[0])
	}
}
